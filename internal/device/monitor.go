package device

import (
	"context"
	"time"
)

// MonitorConfig holds the liveness timer settings.
type MonitorConfig struct {
	// StaleAfter is how long without a heartbeat before online -> stale.
	StaleAfter time.Duration

	// OfflineAfter is the total silence before stale -> offline.
	// Must be greater than StaleAfter.
	OfflineAfter time.Duration

	// Interval is how often the monitor sweeps the registry.
	Interval time.Duration
}

// Monitor drives the liveness state machine over every registered device.
//
// It periodically sweeps the registry and demotes devices whose LastSeen
// has fallen outside the configured windows. Promotions back to online
// happen synchronously in Registry.RegisterOrHeartbeat, never here.
type Monitor struct {
	registry *Registry
	cfg      MonitorConfig
	logger   Logger
}

// NewMonitor creates a liveness monitor for the given registry.
func NewMonitor(registry *Registry, cfg MonitorConfig) *Monitor {
	return &Monitor{
		registry: registry,
		cfg:      cfg,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// Run sweeps the registry at the configured interval until ctx is cancelled.
// It is intended to be launched as a goroutine from main.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep performs a single liveness pass. Exposed separately so tests can
// drive transitions without waiting on the ticker.
func (m *Monitor) Sweep(ctx context.Context) {
	devices, err := m.registry.List(ctx)
	if err != nil {
		m.logger.Error("liveness sweep: listing devices", "error", err)
		return
	}

	now := time.Now().UTC()
	for i := range devices {
		d := &devices[i]
		silence := now.Sub(d.LastSeen)

		var target Status
		switch {
		case d.Status != StatusOffline && silence > m.cfg.OfflineAfter:
			target = StatusOffline
		case d.Status == StatusOnline && silence > m.cfg.StaleAfter:
			target = StatusStale
		default:
			continue
		}

		if err := m.registry.setStatus(ctx, d.ID, target); err != nil {
			m.logger.Error("liveness sweep: updating status",
				"id", d.ID,
				"target", target,
				"error", err,
			)
		}
	}
}
