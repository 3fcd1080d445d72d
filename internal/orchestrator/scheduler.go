package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RunRequest asks for one workflow execution.
type RunRequest struct {
	DeviceID     string `json:"device"`
	WorkflowName string `json:"workflow"`
	Iterations   int    `json:"iterations"`
}

// CampaignRequest asks for a batch of runs over devices and workflows.
type CampaignRequest struct {
	Name       string   `json:"name"`
	Devices    []string `json:"devices"`
	Workflows  []string `json:"workflows"`
	Iterations int      `json:"iterations"`
}

// scheduled pairs a queued run with its cancellation flag.
type scheduled struct {
	run    *Run
	cancel *Cancellation
}

// SchedulerConfig holds the scheduler's pool sizing.
type SchedulerConfig struct {
	// Workers is the number of runs executed concurrently across devices.
	Workers int
}

// Scheduler owns the run queue and worker pool. Runs for different devices
// execute concurrently; runs for the same device are serialised, FIFO.
type Scheduler struct {
	runner  *Runner
	repo    Repository
	creds   *CredentialPool
	cfg     SchedulerConfig
	logger  Logger
	onEvent EventFunc

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*scheduled          // FIFO admission order
	active  map[string]*scheduled // by run ID
	busy    map[string]bool       // devices with a run executing
	closed  bool

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler over the given runner. creds may be nil.
func NewScheduler(runner *Runner, repo Repository, creds *CredentialPool, cfg SchedulerConfig) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	s := &Scheduler{
		runner: runner,
		repo:   repo,
		creds:  creds,
		cfg:    cfg,
		logger: noopLogger{},
		active: make(map[string]*scheduled),
		busy:   make(map[string]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetEventFunc sets the callback for runs the scheduler itself transitions
// (queued, and stopped-before-start). The runner emits the rest.
func (s *Scheduler) SetEventFunc(fn EventFunc) {
	s.onEvent = fn
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.logger.Info("scheduler started", "workers", s.cfg.Workers)
}

// Close stops admission and waits for in-flight runs to finish. It does not
// cancel them; callers wanting a fast shutdown stop runs first.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Submit validates and enqueues one run.
func (s *Scheduler) Submit(ctx context.Context, req RunRequest) (*Run, error) {
	return s.submit(ctx, req, "")
}

func (s *Scheduler) submit(ctx context.Context, req RunRequest, campaignID string) (*Run, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device is required", ErrInvalidRequest)
	}
	if req.WorkflowName == "" {
		return nil, fmt.Errorf("%w: workflow is required", ErrInvalidRequest)
	}
	if req.Iterations <= 0 {
		req.Iterations = 1
	}

	run := &Run{
		ID:           GenerateID(),
		DeviceID:     req.DeviceID,
		WorkflowName: req.WorkflowName,
		Iterations:   req.Iterations,
		Status:       RunQueued,
		CampaignID:   campaignID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persisting run: %w", err)
	}

	entry := &scheduled{run: run, cancel: NewCancellation()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: scheduler is shutting down", ErrInvalidRequest)
	}
	s.pending = append(s.pending, entry)
	s.cond.Broadcast()
	s.mu.Unlock()

	s.emit(run, "")
	s.logger.Info("run queued", "run_id", run.ID, "device_id", run.DeviceID,
		"workflow", run.WorkflowName, "iterations", run.Iterations)
	return run.Clone(), nil
}

// Stop cancels a run. Queued runs transition to stopped immediately;
// running ones observe the flag at their next suspension point. killProcess
// additionally requests a kill-process call on the workflow's process.
func (s *Scheduler) Stop(ctx context.Context, runID string, killProcess bool) error {
	s.mu.Lock()

	// Still waiting for a worker: remove and finalise here.
	for i, entry := range s.pending {
		if entry.run.ID != runID {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		s.mu.Unlock()

		s.finalizeStopped(ctx, entry.run)
		return nil
	}

	if entry, ok := s.active[runID]; ok {
		s.mu.Unlock()
		entry.cancel.Stop(killProcess)
		s.logger.Info("run stop requested", "run_id", runID, "kill_process", killProcess)
		return nil
	}
	s.mu.Unlock()

	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return ErrRunNotStoppable
	}
	// Known to the repository but not to us: created by a previous process
	// lifetime. Mark it stopped so it cannot sit queued forever.
	s.finalizeStopped(ctx, run)
	return nil
}

// GetRun retrieves a run by ID.
func (s *Scheduler) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns retrieves all runs, newest first.
func (s *Scheduler) ListRuns(ctx context.Context) ([]Run, error) {
	return s.repo.ListRuns(ctx)
}

// GetLogs retrieves a run's execution log.
func (s *Scheduler) GetLogs(ctx context.Context, runID string) ([]LogEntry, error) {
	if _, err := s.repo.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, runID)
}

// SubmitCampaign enqueues one run per device × workflow combination.
func (s *Scheduler) SubmitCampaign(ctx context.Context, req CampaignRequest) (*Campaign, error) {
	if len(req.Devices) == 0 || len(req.Workflows) == 0 {
		return nil, fmt.Errorf("%w: campaign requires devices and workflows", ErrInvalidRequest)
	}
	if req.Name == "" {
		req.Name = "campaign-" + time.Now().UTC().Format("20060102-150405")
	}

	c := &Campaign{
		ID:        GenerateID(),
		Name:      req.Name,
		Status:    CampaignRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("persisting campaign: %w", err)
	}

	for _, deviceID := range req.Devices {
		for _, wf := range req.Workflows {
			run, err := s.submit(ctx, RunRequest{
				DeviceID:     deviceID,
				WorkflowName: wf,
				Iterations:   req.Iterations,
			}, c.ID)
			if err != nil {
				return nil, err
			}
			c.RunIDs = append(c.RunIDs, run.ID)
		}
	}

	s.logger.Info("campaign queued", "campaign_id", c.ID, "runs", len(c.RunIDs))
	return c, nil
}

// GetCampaign retrieves a campaign by ID.
func (s *Scheduler) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

// StopCampaign cancels every non-terminal run in the campaign. Cancellation
// takes precedence over everything else: un-started sub-runs are marked
// stopped without executing.
func (s *Scheduler) StopCampaign(ctx context.Context, id string, killProcess bool) error {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return err
	}

	for _, runID := range c.RunIDs {
		if err := s.Stop(ctx, runID, killProcess); err != nil && err != ErrRunNotStoppable {
			s.logger.Warn("stopping campaign run failed", "campaign_id", id, "run_id", runID, "error", err)
		}
	}
	return nil
}

// worker executes queued runs until Close.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		entry := s.next()
		if entry == nil {
			return
		}

		s.runner.Execute(ctx, entry.run, entry.cancel)
		s.finish(ctx, entry)
	}
}

// next blocks until a run whose device is free reaches the front of the
// queue, claims it and marks the device busy. Returns nil on Close.
func (s *Scheduler) next() *scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed {
			return nil
		}

		for i, entry := range s.pending {
			if s.busy[entry.run.DeviceID] {
				continue
			}
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.busy[entry.run.DeviceID] = true
			s.active[entry.run.ID] = entry
			return entry
		}

		s.cond.Wait()
	}
}

// finish releases the device, ends the device session when its batch is
// drained and folds campaign status.
func (s *Scheduler) finish(ctx context.Context, entry *scheduled) {
	deviceID := entry.run.DeviceID

	s.mu.Lock()
	delete(s.active, entry.run.ID)
	s.busy[deviceID] = false

	idle := true
	for _, p := range s.pending {
		if p.run.DeviceID == deviceID {
			idle = false
			break
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if idle {
		s.endDeviceSession(ctx, deviceID)
	}

	if entry.run.CampaignID != "" {
		s.foldCampaign(ctx, entry.run.CampaignID)
	}
}

// endDeviceSession releases the device's pooled credential and, under the
// per_batch policy, restores its original display mode.
func (s *Scheduler) endDeviceSession(ctx context.Context, deviceID string) {
	if s.creds != nil {
		s.creds.Release(deviceID)
	}
	s.runner.ResetDeviceSession(deviceID)

	if s.runner.cfg.RestorePolicy == RestorePerBatch {
		s.runner.RestoreDisplay(ctx, deviceID)
	}
}

// finalizeStopped marks a never-started run stopped and persists it.
func (s *Scheduler) finalizeStopped(ctx context.Context, run *Run) {
	now := time.Now().UTC()
	run.Status = RunStopped
	run.CompletedAt = &now

	if err := s.repo.UpdateRun(ctx, run); err != nil {
		s.logger.Error("persisting stopped run failed", "run_id", run.ID, "error", err)
	}
	s.emit(run, "stopped before start")
	s.logger.Info("run stopped before start", "run_id", run.ID)

	if run.CampaignID != "" {
		s.foldCampaign(ctx, run.CampaignID)
	}
}

// foldCampaign recomputes a campaign's aggregate status once all of its
// runs are terminal: uniform outcomes keep their name, mixed outcomes
// become partially_completed.
func (s *Scheduler) foldCampaign(ctx context.Context, campaignID string) {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		s.logger.Error("loading campaign for fold failed", "campaign_id", campaignID, "error", err)
		return
	}

	counts := make(map[RunStatus]int)
	for _, runID := range c.RunIDs {
		run, err := s.repo.GetRun(ctx, runID)
		if err != nil {
			s.logger.Error("loading campaign run failed", "run_id", runID, "error", err)
			return
		}
		if !run.Status.Terminal() {
			return // still in flight
		}
		counts[run.Status]++
	}

	total := len(c.RunIDs)
	switch {
	case counts[RunCompleted] == total:
		c.Status = CampaignCompleted
	case counts[RunStopped] == total:
		c.Status = CampaignStopped
	case counts[RunFailed] == total:
		c.Status = CampaignFailed
	default:
		c.Status = CampaignPartiallyCompleted
	}

	now := time.Now().UTC()
	c.CompletedAt = &now
	if err := s.repo.UpdateCampaign(ctx, c); err != nil {
		s.logger.Error("persisting campaign failed", "campaign_id", campaignID, "error", err)
		return
	}
	s.logger.Info("campaign finished", "campaign_id", campaignID, "status", c.Status)
}

// emit delivers a run lifecycle event to the registered callback, if any.
func (s *Scheduler) emit(run *Run, reason string) {
	if s.onEvent == nil {
		return
	}
	s.onEvent(Event{
		RunID:      run.ID,
		DeviceID:   run.DeviceID,
		CampaignID: run.CampaignID,
		Status:     run.Status,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
}
