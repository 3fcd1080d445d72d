package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	// For testing error paths
	upsertErr       error
	updateStatusErr error
	setPairedErr    error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.Clone())
	}
	return devices, nil
}

func (m *MockRepository) Upsert(_ context.Context, device *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.devices[device.ID] = device.Clone()
	return nil
}

func (m *MockRepository) UpdateStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	return nil
}

func (m *MockRepository) SetPaired(_ context.Context, id string, paired bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setPairedErr != nil {
		return m.setPairedErr
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Paired = paired
	return nil
}

func testInfo() Info {
	return Info{
		Name:         "bench-pc-01",
		Host:         "10.1.2.3",
		Port:         9123,
		Capabilities: []Capability{CapScreenshot, CapInput, CapLaunch},
	}
}

func TestRegisterOrHeartbeat_NewDevice(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	d, err := reg.RegisterOrHeartbeat(ctx, testInfo())
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	if d.ID == "" {
		t.Error("expected generated ID")
	}
	if d.Status != StatusOnline {
		t.Errorf("Status = %q, want online", d.Status)
	}
	if d.Name != "bench-pc-01" {
		t.Errorf("Name = %q", d.Name)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegisterOrHeartbeat_InvalidInfo(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	tests := []struct {
		name    string
		mutate  func(*Info)
		wantErr error
	}{
		{"empty name", func(i *Info) { i.Name = "" }, ErrInvalidName},
		{"empty host", func(i *Info) { i.Host = "" }, ErrInvalidAddress},
		{"bad port", func(i *Info) { i.Port = 0 }, ErrInvalidAddress},
		{"unknown capability", func(i *Info) { i.Capabilities = []Capability{"teleport"} }, ErrInvalidCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := testInfo()
			tt.mutate(&info)
			_, err := reg.RegisterOrHeartbeat(ctx, info)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterOrHeartbeat_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	d, err := reg.RegisterOrHeartbeat(ctx, testInfo())
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	// Device reconnects on a new address with fewer capabilities
	info := testInfo()
	info.ID = d.ID
	info.Host = "10.1.2.99"
	info.Capabilities = []Capability{CapScreenshot}

	updated, err := reg.RegisterOrHeartbeat(ctx, info)
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	if updated.ID != d.ID {
		t.Errorf("ID changed on heartbeat: %q != %q", updated.ID, d.ID)
	}
	if updated.Host != "10.1.2.99" {
		t.Errorf("Host = %q, want updated address", updated.Host)
	}
	if len(updated.Capabilities) != 1 {
		t.Errorf("Capabilities = %v, want last-write-wins", updated.Capabilities)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (no duplicate)", reg.Count())
	}
}

func TestRegisterOrHeartbeat_ReturnsToOnline(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	var events []Event
	reg.SetEventFunc(func(e Event) { events = append(events, e) })

	d, err := reg.RegisterOrHeartbeat(ctx, testInfo())
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	if err := reg.MarkOffline(ctx, d.ID); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}

	got, err := reg.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusOffline {
		t.Fatalf("Status = %q, want offline", got.Status)
	}

	// Heartbeat from offline must restore online and preserve the ID
	info := testInfo()
	info.ID = d.ID
	restored, err := reg.RegisterOrHeartbeat(ctx, info)
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}
	if restored.ID != d.ID {
		t.Errorf("ID not preserved across offline: %q != %q", restored.ID, d.ID)
	}
	if restored.Status != StatusOnline {
		t.Errorf("Status = %q, want online", restored.Status)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 (offline, online)", len(events))
	}
	if events[0].To != StatusOffline || events[1].To != StatusOnline {
		t.Errorf("event transitions = %v -> %v", events[0].To, events[1].To)
	}
}

func TestRegisterOrHeartbeat_ConcurrentHeartbeats(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	d, err := reg.RegisterOrHeartbeat(ctx, testInfo())
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	const goroutines = 20
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info := testInfo()
			info.ID = d.ID
			if _, err := reg.RegisterOrHeartbeat(ctx, info); err != nil {
				t.Errorf("concurrent heartbeat error = %v", err)
			}
		}()
	}
	wg.Wait()

	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1 after concurrent heartbeats", reg.Count())
	}
}

func TestGet_NotFound(t *testing.T) {
	reg := NewRegistry(NewMockRepository())

	_, err := reg.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	d, err := reg.RegisterOrHeartbeat(ctx, testInfo())
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	first, _ := reg.Get(ctx, d.ID)
	first.Name = "mutated"
	first.Capabilities[0] = "corrupted"

	second, _ := reg.Get(ctx, d.ID)
	if second.Name == "mutated" {
		t.Error("cache was mutated through a returned copy")
	}
	if second.Capabilities[0] == "corrupted" {
		t.Error("cached capability slice was shared with caller")
	}
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	a, _ := reg.RegisterOrHeartbeat(ctx, testInfo())
	info := testInfo()
	info.Name = "bench-pc-02"
	if _, err := reg.RegisterOrHeartbeat(ctx, info); err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	if err := reg.MarkOffline(ctx, a.ID); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}

	online, _ := reg.ListByStatus(ctx, StatusOnline)
	offline, _ := reg.ListByStatus(ctx, StatusOffline)

	if len(online) != 1 || len(offline) != 1 {
		t.Errorf("online = %d, offline = %d; want 1 and 1", len(online), len(offline))
	}
}

func TestSetPaired(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	d, _ := reg.RegisterOrHeartbeat(ctx, testInfo())

	if err := reg.SetPaired(ctx, d.ID, true); err != nil {
		t.Fatalf("SetPaired() error = %v", err)
	}

	paired, _ := reg.ListPaired(ctx)
	if len(paired) != 1 {
		t.Fatalf("ListPaired() = %d devices, want 1", len(paired))
	}

	if err := reg.SetPaired(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetPaired(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	a, _ := reg.RegisterOrHeartbeat(ctx, testInfo())
	info := testInfo()
	info.Name = "bench-pc-02"
	b, _ := reg.RegisterOrHeartbeat(ctx, info)

	_ = reg.MarkOffline(ctx, a.ID)
	_ = reg.SetPaired(ctx, b.ID, true)

	stats := reg.GetStats()
	if stats.TotalDevices != 2 {
		t.Errorf("TotalDevices = %d, want 2", stats.TotalDevices)
	}
	if stats.ByStatus[StatusOffline] != 1 || stats.ByStatus[StatusOnline] != 1 {
		t.Errorf("ByStatus = %v", stats.ByStatus)
	}
	if stats.Paired != 1 {
		t.Errorf("Paired = %d, want 1", stats.Paired)
	}
}

func TestMonitor_LivenessTransitions(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	d, err := reg.RegisterOrHeartbeat(ctx, testInfo())
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	mon := NewMonitor(reg, MonitorConfig{
		StaleAfter:   40 * time.Millisecond,
		OfflineAfter: 100 * time.Millisecond,
		Interval:     10 * time.Millisecond,
	})

	// Fresh heartbeat: sweep must not demote
	mon.Sweep(ctx)
	got, _ := reg.Get(ctx, d.ID)
	if got.Status != StatusOnline {
		t.Fatalf("Status = %q after immediate sweep, want online", got.Status)
	}

	// Past StaleAfter but before OfflineAfter: stale
	time.Sleep(60 * time.Millisecond)
	mon.Sweep(ctx)
	got, _ = reg.Get(ctx, d.ID)
	if got.Status != StatusStale {
		t.Fatalf("Status = %q after stale window, want stale", got.Status)
	}

	// Past OfflineAfter total: offline
	time.Sleep(60 * time.Millisecond)
	mon.Sweep(ctx)
	got, _ = reg.Get(ctx, d.ID)
	if got.Status != StatusOffline {
		t.Fatalf("Status = %q after offline window, want offline", got.Status)
	}

	// A heartbeat restores online with the original ID
	info := testInfo()
	info.ID = d.ID
	restored, err := reg.RegisterOrHeartbeat(ctx, info)
	if err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}
	if restored.ID != d.ID || restored.Status != StatusOnline {
		t.Errorf("restored = (%q, %q), want original ID online", restored.ID, restored.Status)
	}
}

func TestMonitor_SkipsFreshDevices(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMockRepository())

	var events []Event
	var mu sync.Mutex
	reg.SetEventFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	if _, err := reg.RegisterOrHeartbeat(ctx, testInfo()); err != nil {
		t.Fatalf("RegisterOrHeartbeat() error = %v", err)
	}

	mon := NewMonitor(reg, MonitorConfig{
		StaleAfter:   time.Minute,
		OfflineAfter: 2 * time.Minute,
		Interval:     time.Millisecond,
	})

	for i := 0; i < 5; i++ {
		mon.Sweep(ctx)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 0 {
		t.Errorf("events = %v, want none for fresh device", events)
	}
}
