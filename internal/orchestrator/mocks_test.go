package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
	"github.com/ShreyX24/Raptor-X-sub001/internal/workflow"
)

// MockRepository is an in-memory Repository for tests.
type MockRepository struct {
	mu        sync.Mutex
	runs      map[string]*Run
	logs      map[string][]LogEntry
	campaigns map[string]*Campaign
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		runs:      make(map[string]*Run),
		logs:      make(map[string][]LogEntry),
		campaigns: make(map[string]*Campaign),
	}
}

func (m *MockRepository) CreateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run.Clone()
	return nil
}

func (m *MockRepository) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

func (m *MockRepository) ListRuns(_ context.Context) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, *run.Clone())
	}
	return out, nil
}

func (m *MockRepository) UpdateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	m.runs[run.ID] = run.Clone()
	return nil
}

func (m *MockRepository) AppendLog(_ context.Context, entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	e.ID = int64(len(m.logs[entry.RunID]) + 1)
	m.logs[entry.RunID] = append(m.logs[entry.RunID], e)
	return nil
}

func (m *MockRepository) ListLogs(_ context.Context, runID string) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.logs[runID]...), nil
}

func (m *MockRepository) CreateCampaign(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *c
	m.campaigns[c.ID] = &cpy
	return nil
}

func (m *MockRepository) GetCampaign(_ context.Context, id string) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	cpy := *c
	cpy.RunIDs = nil
	for _, run := range m.runs {
		if run.CampaignID == id {
			cpy.RunIDs = append(cpy.RunIDs, run.ID)
		}
	}
	return &cpy, nil
}

func (m *MockRepository) UpdateCampaign(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; !ok {
		return ErrCampaignNotFound
	}
	cpy := *c
	m.campaigns[c.ID] = &cpy
	return nil
}

// mockGateway records every SUT-bound call.
type mockGateway struct {
	mu          sync.Mutex
	screenshots int
	inputs      []gateway.InputAction
	launches    []gateway.LaunchRequest
	kills       []string
	modeSets    []gateway.DisplayMode

	image   []byte
	display gateway.DisplayState
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		image: []byte("screenshot"),
		display: gateway.DisplayState{
			Current: gateway.DisplayMode{Width: 2560, Height: 1440, RefreshHz: 144},
			Supported: []gateway.DisplayMode{
				{Width: 2560, Height: 1440, RefreshHz: 144},
				{Width: 1920, Height: 1080, RefreshHz: 60},
			},
		},
	}
}

func (g *mockGateway) Screenshot(context.Context, string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.screenshots++
	return g.image, nil
}

func (g *mockGateway) SendInput(_ context.Context, _ string, action gateway.InputAction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, action)
	return nil
}

func (g *mockGateway) Launch(_ context.Context, _ string, req gateway.LaunchRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.launches = append(g.launches, req)
	return nil
}

func (g *mockGateway) CheckProcess(_ context.Context, _, name string) (*gateway.ProcessStatus, error) {
	return &gateway.ProcessStatus{Name: name, Running: true, PID: 4321}, nil
}

func (g *mockGateway) KillProcess(_ context.Context, _, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kills = append(g.kills, name)
	return nil
}

func (g *mockGateway) DisplayModes(context.Context, string) (*gateway.DisplayState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state := g.display
	return &state, nil
}

func (g *mockGateway) SetDisplayMode(_ context.Context, _ string, mode gateway.DisplayMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modeSets = append(g.modeSets, mode)
	g.display.Current = mode
	return nil
}

func (g *mockGateway) inputCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inputs)
}

func (g *mockGateway) screenshotCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.screenshots
}

// mockDetector answers detection requests from a function.
type mockDetector struct {
	fn func(cfg *inference.Override) ([]inference.Element, error)
}

func (d *mockDetector) Detect(_ context.Context, _ []byte, cfg *inference.Override) ([]inference.Element, error) {
	if d.fn == nil {
		return nil, nil
	}
	return d.fn(cfg)
}

// staticWorkflows resolves workflow names from a map.
type staticWorkflows map[string]*workflow.Workflow

func (s staticWorkflows) Get(name string) (*workflow.Workflow, error) {
	w, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", workflow.ErrNotFound, name)
	}
	return w, nil
}
