package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventFunc receives liveness transition events. Callbacks must not block;
// they are invoked inline from registry operations and the monitor sweep.
type EventFunc func(Event)

// Registry is the authoritative set of known SUTs.
//
// It wraps a Repository and adds an in-memory cache for fast lookups.
// The cache is populated on startup via RefreshCache() and kept in sync
// by the mutating operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
	onEvent EventFunc
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEventFunc sets the callback invoked on every liveness transition.
func (r *Registry) SetEventFunc(fn EventFunc) {
	r.onEvent = fn
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.Clone()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// RegisterOrHeartbeat upserts a device from agent-supplied info.
//
// Semantics required by the liveness protocol:
//   - last-write-wins on name, address and capabilities
//   - monotonic on LastSeen (a late-arriving heartbeat never rewinds it)
//   - any status returns the device to online, preserving its ID
//
// Concurrent heartbeats for the same ID are idempotent.
func (r *Registry) RegisterOrHeartbeat(ctx context.Context, info Info) (*Device, error) {
	if err := ValidateInfo(info); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	r.cacheMu.Lock()

	var (
		d     *Device
		event *Event
	)

	if info.ID != "" {
		if cached, ok := r.cache[info.ID]; ok {
			d = cached.Clone()
		}
	}

	if d == nil {
		id := info.ID
		if id == "" {
			id = GenerateID()
		}
		d = &Device{
			ID:           id,
			Status:       StatusOnline,
			RegisteredAt: now,
			LastSeen:     now,
		}
		r.logger.Info("device registered", "id", d.ID, "name", info.Name, "host", info.Host)
	} else if d.Status != StatusOnline {
		event = &Event{DeviceID: d.ID, Name: info.Name, From: d.Status, To: StatusOnline, At: now}
	}

	d.Name = info.Name
	d.Host = info.Host
	d.Port = info.Port
	d.Capabilities = append([]Capability(nil), info.Capabilities...)
	d.Status = StatusOnline
	if now.After(d.LastSeen) {
		d.LastSeen = now
	}
	d.UpdatedAt = now

	r.cache[d.ID] = d.Clone()
	r.cacheMu.Unlock()

	if err := r.repo.Upsert(ctx, d); err != nil {
		return nil, fmt.Errorf("persisting device: %w", err)
	}

	if event != nil {
		r.logger.Info("device back online", "id", d.ID, "from", event.From)
		r.emit(*event)
	}

	return d.Clone(), nil
}

// Get retrieves a device by ID.
// Returns ErrNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.Clone(), nil
	}

	// Fall back to repository (might be a device not yet cached)
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.Clone()
	r.cacheMu.Unlock()

	return d, nil
}

// List retrieves all devices.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.Clone())
		}
		return devices, nil
	}

	return r.repo.List(ctx)
}

// ListByStatus retrieves all devices with a specific liveness status.
func (r *Registry) ListByStatus(_ context.Context, status Status) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var devices []Device
	for _, d := range r.cache {
		if d.Status == status {
			devices = append(devices, *d.Clone())
		}
	}
	return devices, nil
}

// ListPaired retrieves all paired (priority) devices.
func (r *Registry) ListPaired(_ context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var devices []Device
	for _, d := range r.cache {
		if d.Paired {
			devices = append(devices, *d.Clone())
		}
	}
	return devices, nil
}

// SetPaired marks or unmarks a device as a priority device.
func (r *Registry) SetPaired(ctx context.Context, id string, paired bool) error {
	if err := r.repo.SetPaired(ctx, id, paired); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.Clone()
		updated.Paired = paired
		updated.UpdatedAt = time.Now().UTC()
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Info("device pairing updated", "id", id, "paired", paired)
	return nil
}

// MarkOffline forces a device to offline, e.g. on operator request.
func (r *Registry) MarkOffline(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusOffline)
}

// setStatus transitions a device to the given status, persisting the change,
// updating the cache and emitting a transition event.
func (r *Registry) setStatus(ctx context.Context, id string, status Status) error {
	if err := r.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}

	var event *Event

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok && cached.Status != status {
		updated := cached.Clone()
		event = &Event{
			DeviceID: id,
			Name:     updated.Name,
			From:     updated.Status,
			To:       status,
			At:       time.Now().UTC(),
		}
		updated.Status = status
		updated.UpdatedAt = event.At
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	if event != nil {
		r.logger.Info("device status changed", "id", id, "from", event.From, "to", event.To)
		r.emit(*event)
	}
	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Exists reports whether a device ID is already registered.
func (r *Registry) Exists(id string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	_, ok := r.cache[id]
	return ok
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int
	ByStatus     map[Status]int
	Paired       int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByStatus:     make(map[Status]int),
	}

	for _, d := range r.cache {
		stats.ByStatus[d.Status]++
		if d.Paired {
			stats.Paired++
		}
	}

	return stats
}

// emit delivers an event to the registered callback, if any.
func (r *Registry) emit(e Event) {
	if r.onEvent != nil {
		r.onEvent(e)
	}
}
