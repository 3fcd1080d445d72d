package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/ShreyX24/Raptor-X-sub001/internal/workflow"
)

// waitWorkflow is a find-free workflow: one wait step with a long
// inter-step delay, then the PLAY click.
func waitWorkflow(waitSec, delaySec float64) *workflow.Workflow {
	return &workflow.Workflow{
		Name: "slow",
		Metadata: workflow.Metadata{
			Process:        workflow.ProcessInfo{Name: "game.exe", Exe: `C:\game\game.exe`},
			DefaultTimeout: 2,
		},
		Steps: []workflow.Step{
			{
				Name:          "settle",
				Action:        workflow.Action{Type: workflow.ActionWait, Seconds: waitSec},
				ExpectedDelay: delaySec,
			},
			{
				Name:   "click-play",
				Find:   &workflow.Selector{Kind: workflow.KindText, Text: "PLAY", Match: workflow.MatchExact},
				Action: workflow.Action{Type: workflow.ActionClick},
			},
		},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestScheduler(t *testing.T, gw *mockGateway, wfs staticWorkflows, workers int) (*Scheduler, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	runner := NewRunner(gw, playDetector(), wfs, repo, nil, fastRunnerConfig())
	s := NewScheduler(runner, repo, nil, SchedulerConfig{Workers: workers})
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s, repo
}

func TestSchedulerStopMidDelayPreventsFurtherCalls(t *testing.T) {
	gw := newMockGateway()
	wfs := staticWorkflows{"slow": waitWorkflow(0.02, 2.0)}
	s, repo := newTestScheduler(t, gw, wfs, 1)

	ctx := context.Background()
	run, err := s.Submit(ctx, RunRequest{DeviceID: "dev-1", WorkflowName: "slow", Iterations: 1})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// Let the run pass the wait step and enter the 2s inter-step delay.
	waitFor(t, 2*time.Second, func() bool {
		r, _ := repo.GetRun(ctx, run.ID)
		return r.Status == RunRunning
	})
	time.Sleep(150 * time.Millisecond)

	if err := s.Stop(ctx, run.ID, false); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		r, _ := repo.GetRun(ctx, run.ID)
		return r.Status.Terminal()
	})

	final, _ := repo.GetRun(ctx, run.ID)
	if final.Status != RunStopped {
		t.Fatalf("run status = %s, want stopped", final.Status)
	}
	// The second step never ran: no screenshot, no click.
	if n := gw.screenshotCount(); n != 0 {
		t.Errorf("gateway screenshots = %d after stop mid-delay, want 0", n)
	}
	if n := gw.inputCount(); n != 0 {
		t.Errorf("gateway inputs = %d after stop mid-delay, want 0", n)
	}
}

func TestSchedulerStopWithKillProcess(t *testing.T) {
	gw := newMockGateway()
	wfs := staticWorkflows{"slow": waitWorkflow(2.0, 0.01)}
	s, repo := newTestScheduler(t, gw, wfs, 1)

	ctx := context.Background()
	run, err := s.Submit(ctx, RunRequest{DeviceID: "dev-1", WorkflowName: "slow", Iterations: 1})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		r, _ := repo.GetRun(ctx, run.ID)
		return r.Status == RunRunning
	})
	time.Sleep(100 * time.Millisecond)

	if err := s.Stop(ctx, run.ID, true); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		r, _ := repo.GetRun(ctx, run.ID)
		return r.Status.Terminal()
	})

	gw.mu.Lock()
	kills := append([]string(nil), gw.kills...)
	gw.mu.Unlock()
	if len(kills) != 1 || kills[0] != "game.exe" {
		t.Errorf("kills = %v, want [game.exe]", kills)
	}
}

func TestSchedulerDeviceMutualExclusion(t *testing.T) {
	gw := newMockGateway()
	wfs := staticWorkflows{"slow": waitWorkflow(0.1, 0.01)}
	s, repo := newTestScheduler(t, gw, wfs, 4)

	ctx := context.Background()
	first, err := s.Submit(ctx, RunRequest{DeviceID: "dev-1", WorkflowName: "slow"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Submit(ctx, RunRequest{DeviceID: "dev-1", WorkflowName: "slow"})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool {
		a, _ := repo.GetRun(ctx, first.ID)
		b, _ := repo.GetRun(ctx, second.ID)
		return a.Status.Terminal() && b.Status.Terminal()
	})

	a, _ := repo.GetRun(ctx, first.ID)
	b, _ := repo.GetRun(ctx, second.ID)
	if a.Status != RunCompleted || b.Status != RunCompleted {
		t.Fatalf("statuses = %s/%s, want completed/completed", a.Status, b.Status)
	}

	// Same device: the second run must not start before the first ends.
	if b.StartedAt.Before(*a.CompletedAt) {
		t.Errorf("second run started %s before first completed %s", b.StartedAt, a.CompletedAt)
	}
}

func TestSchedulerConcurrentDevicesRunInParallel(t *testing.T) {
	gw := newMockGateway()
	wfs := staticWorkflows{"slow": waitWorkflow(0.2, 0.01)}
	s, repo := newTestScheduler(t, gw, wfs, 4)

	ctx := context.Background()
	start := time.Now()
	var ids []string
	for _, dev := range []string{"dev-1", "dev-2", "dev-3"} {
		run, err := s.Submit(ctx, RunRequest{DeviceID: dev, WorkflowName: "slow"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID)
	}

	waitFor(t, 5*time.Second, func() bool {
		for _, id := range ids {
			r, _ := repo.GetRun(ctx, id)
			if !r.Status.Terminal() {
				return false
			}
		}
		return true
	})

	// Three 200ms runs on distinct devices overlap; serial execution would
	// take over 600ms.
	if elapsed := time.Since(start); elapsed > 550*time.Millisecond {
		t.Errorf("three concurrent-device runs took %s, expected parallel execution", elapsed)
	}
}

func TestSchedulerStopQueuedRun(t *testing.T) {
	gw := newMockGateway()
	wfs := staticWorkflows{"slow": waitWorkflow(0.5, 0.01)}
	s, repo := newTestScheduler(t, gw, wfs, 1)

	ctx := context.Background()
	running, err := s.Submit(ctx, RunRequest{DeviceID: "dev-1", WorkflowName: "slow"})
	if err != nil {
		t.Fatal(err)
	}
	queued, err := s.Submit(ctx, RunRequest{DeviceID: "dev-1", WorkflowName: "slow"})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		r, _ := repo.GetRun(ctx, running.ID)
		return r.Status == RunRunning
	})

	if err := s.Stop(ctx, queued.ID, false); err != nil {
		t.Fatalf("Stop(queued) error = %v", err)
	}

	q, _ := repo.GetRun(ctx, queued.ID)
	if q.Status != RunStopped {
		t.Fatalf("queued run status = %s, want stopped immediately", q.Status)
	}
	if q.StartedAt != nil {
		t.Error("queued run has StartedAt set, it must never have executed")
	}
}

func TestSchedulerStopTerminalRun(t *testing.T) {
	gw := newMockGateway()
	wfs := staticWorkflows{"play-click": playWorkflow(false)}
	s, repo := newTestScheduler(t, gw, wfs, 1)

	ctx := context.Background()
	run, err := s.Submit(ctx, RunRequest{DeviceID: "dev-1", WorkflowName: "play-click"})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		r, _ := repo.GetRun(ctx, run.ID)
		return r.Status.Terminal()
	})

	if err := s.Stop(ctx, run.ID, false); err != ErrRunNotStoppable {
		t.Fatalf("Stop(terminal) error = %v, want ErrRunNotStoppable", err)
	}
}

func TestSchedulerCampaignPartiallyCompleted(t *testing.T) {
	gw := newMockGateway()
	// "missing" is not in the library, so its run fails at setup.
	wfs := staticWorkflows{"play-click": playWorkflow(false)}
	s, repo := newTestScheduler(t, gw, wfs, 2)

	ctx := context.Background()
	c, err := s.SubmitCampaign(ctx, CampaignRequest{
		Name:      "mixed",
		Devices:   []string{"dev-1"},
		Workflows: []string{"play-click", "missing"},
	})
	if err != nil {
		t.Fatalf("SubmitCampaign() error = %v", err)
	}
	if len(c.RunIDs) != 2 {
		t.Fatalf("campaign has %d runs, want 2", len(c.RunIDs))
	}

	waitFor(t, 5*time.Second, func() bool {
		got, _ := repo.GetCampaign(ctx, c.ID)
		return got != nil && got.CompletedAt != nil
	})

	final, err := s.GetCampaign(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != CampaignPartiallyCompleted {
		t.Errorf("campaign status = %s, want partially_completed", final.Status)
	}
}

func TestSchedulerCampaignCancellationMarksUnstartedStopped(t *testing.T) {
	gw := newMockGateway()
	wfs := staticWorkflows{"slow": waitWorkflow(1.0, 0.01)}
	s, repo := newTestScheduler(t, gw, wfs, 1)

	ctx := context.Background()
	c, err := s.SubmitCampaign(ctx, CampaignRequest{
		Name:      "cancelled",
		Devices:   []string{"dev-1"},
		Workflows: []string{"slow", "slow", "slow"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Wait until the first run is executing, then cancel the whole batch.
	waitFor(t, 2*time.Second, func() bool {
		for _, id := range c.RunIDs {
			r, _ := repo.GetRun(ctx, id)
			if r.Status == RunRunning {
				return true
			}
		}
		return false
	})
	if err := s.StopCampaign(ctx, c.ID, false); err != nil {
		t.Fatalf("StopCampaign() error = %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		got, _ := repo.GetCampaign(ctx, c.ID)
		return got != nil && got.CompletedAt != nil
	})

	final, _ := s.GetCampaign(ctx, c.ID)
	if final.Status != CampaignStopped {
		t.Errorf("campaign status = %s, want stopped", final.Status)
	}

	unstarted := 0
	for _, id := range c.RunIDs {
		r, _ := repo.GetRun(ctx, id)
		if r.Status != RunStopped {
			t.Errorf("run %s status = %s, want stopped", id, r.Status)
		}
		if r.StartedAt == nil {
			unstarted++
		}
	}
	if unstarted == 0 {
		t.Error("expected at least one sub-run stopped before starting")
	}
}

func TestSchedulerGetLogsUnknownRun(t *testing.T) {
	gw := newMockGateway()
	s, _ := newTestScheduler(t, gw, staticWorkflows{}, 1)

	if _, err := s.GetLogs(context.Background(), "missing"); err != ErrRunNotFound {
		t.Fatalf("GetLogs(missing) error = %v, want ErrRunNotFound", err)
	}
}
