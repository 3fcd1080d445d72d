package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
	"github.com/ShreyX24/Raptor-X-sub001/internal/workflow"
)

// Logger defines the logging interface used by the orchestrator.
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

// DeviceGateway is the slice of the proxy gateway the runner needs. All SUT
// traffic goes through it; the runner never dials a device directly.
type DeviceGateway interface {
	Screenshot(ctx context.Context, id string) ([]byte, error)
	SendInput(ctx context.Context, id string, action gateway.InputAction) error
	Launch(ctx context.Context, id string, req gateway.LaunchRequest) error
	CheckProcess(ctx context.Context, id, name string) (*gateway.ProcessStatus, error)
	KillProcess(ctx context.Context, id, name string) error
	DisplayModes(ctx context.Context, id string) (*gateway.DisplayState, error)
	SetDisplayMode(ctx context.Context, id string, mode gateway.DisplayMode) error
}

// Detector is the slice of the inference queue the runner needs.
type Detector interface {
	Detect(ctx context.Context, image []byte, override *inference.Override) ([]inference.Element, error)
}

// WorkflowSource resolves workflow names to loaded documents.
type WorkflowSource interface {
	Get(name string) (*workflow.Workflow, error)
}

// RestorePolicy controls when a switched display mode is put back.
type RestorePolicy string

// RestorePolicy values. PerBatch avoids redundant mode switches between
// back-to-back runs on the same device.
const (
	RestorePerRun   RestorePolicy = "per_run"
	RestorePerBatch RestorePolicy = "per_batch"
)

// Cancellation is a per-run stop flag checked at every suspension point.
// Stopping never kills the run's goroutine; the runner unwinds and cleans
// up in-flight side effects itself.
type Cancellation struct {
	once sync.Once
	ch   chan struct{}
	kill atomic.Bool
}

// NewCancellation creates an unset cancellation flag.
func NewCancellation() *Cancellation {
	return &Cancellation{ch: make(chan struct{})}
}

// Stop sets the flag. killProcess additionally requests a kill-process call
// on the workflow's process once the run unwinds.
func (c *Cancellation) Stop(killProcess bool) {
	if killProcess {
		c.kill.Store(true)
	}
	c.once.Do(func() { close(c.ch) })
}

// Stopped reports whether Stop has been called.
func (c *Cancellation) Stopped() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on Stop.
func (c *Cancellation) Done() <-chan struct{} {
	return c.ch
}

// KillRequested reports whether the stop asked for process cleanup.
func (c *Cancellation) KillRequested() bool {
	return c.kill.Load()
}

// RunnerConfig holds the runner's cross-run policies.
type RunnerConfig struct {
	// DisplaySettle is how long to wait after a display-mode switch before
	// launching.
	DisplaySettle time.Duration

	// LaunchWait bounds the post-launch poll for the workflow's process.
	LaunchWait time.Duration

	// RestorePolicy controls display-mode restoration timing.
	RestorePolicy RestorePolicy

	// SwitchLogin performs the device's login flow when the active
	// credential bucket changes. Nil switches are recorded but perform no
	// device interaction.
	SwitchLogin func(ctx context.Context, deviceID string, cred Credential) error
}

// deviceState is the runner's cross-run bookkeeping for one device.
type deviceState struct {
	// originalMode is the display mode before the first switch, restored
	// per the RestorePolicy.
	originalMode *gateway.DisplayMode

	// activeBucket is the credential bucket currently logged in, used to
	// skip redundant login switches across a batch.
	activeBucket string
}

// Runner executes one run at a time per device. The Scheduler provides the
// device-level mutual exclusion; Runner methods assume it.
type Runner struct {
	gw        DeviceGateway
	detector  Detector
	workflows WorkflowSource
	repo      Repository
	creds     *CredentialPool
	cfg       RunnerConfig
	logger    Logger
	onEvent   EventFunc

	mu      sync.Mutex
	devices map[string]*deviceState
}

// NewRunner creates a runner. creds may be nil when no credential pool is
// configured; workflows requiring one then fail at setup.
func NewRunner(gw DeviceGateway, detector Detector, workflows WorkflowSource, repo Repository, creds *CredentialPool, cfg RunnerConfig) *Runner {
	if cfg.DisplaySettle <= 0 {
		cfg.DisplaySettle = 5 * time.Second
	}
	if cfg.LaunchWait <= 0 {
		cfg.LaunchWait = 2 * time.Minute
	}
	if cfg.RestorePolicy == "" {
		cfg.RestorePolicy = RestorePerBatch
	}
	return &Runner{
		gw:        gw,
		detector:  detector,
		workflows: workflows,
		repo:      repo,
		creds:     creds,
		cfg:       cfg,
		logger:    noopLogger{},
		devices:   make(map[string]*deviceState),
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEventFunc sets the callback invoked on run lifecycle transitions.
func (r *Runner) SetEventFunc(fn EventFunc) {
	r.onEvent = fn
}

// execState carries one run's in-flight state through the step loop.
type execState struct {
	run       *Run
	wf        *workflow.Workflow
	cancel    *Cancellation
	sideloads *SideloadRunner
}

// Execute drives one run from running to a terminal status. The caller owns
// run persistence of the queued record; Execute persists every transition
// after that.
func (r *Runner) Execute(ctx context.Context, run *Run, cancel *Cancellation) {
	es := &execState{
		run:       run,
		cancel:    cancel,
		sideloads: NewSideloadRunner(r.logger),
	}

	now := time.Now().UTC()
	run.Status = RunRunning
	run.StartedAt = &now
	r.persist(ctx, run)
	r.emit(run, "")

	err := r.execute(ctx, es)

	// Unwind order: scripts first, then the game process, then the screen.
	es.sideloads.StopAll()

	if cancel.KillRequested() && es.wf != nil {
		if killErr := r.gw.KillProcess(ctx, run.DeviceID, es.wf.Metadata.Process.Name); killErr != nil {
			r.logger.Warn("kill-process cleanup failed", "run_id", run.ID, "error", killErr)
		}
	}

	if r.cfg.RestorePolicy == RestorePerRun {
		r.RestoreDisplay(ctx, run.DeviceID)
	}

	completed := time.Now().UTC()
	run.CompletedAt = &completed

	switch {
	case err == nil:
		run.Status = RunCompleted
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
		// Daemon shutdown cancels the scheduler context; those runs are
		// stopped, not failed, so a restart leaves an honest history.
		run.Status = RunStopped
	default:
		run.Status = RunFailed
		run.FailureReason = err.Error()
		run.FailureStep = run.StepIndex
	}

	r.persist(ctx, run)
	r.emit(run, run.FailureReason)
	r.logger.Info("run finished", "run_id", run.ID, "device_id", run.DeviceID,
		"status", run.Status, "iterations", run.Iteration)
}

// execute performs setup and the iteration/step loop.
func (r *Runner) execute(ctx context.Context, es *execState) error {
	run := es.run

	wf, err := r.workflows.Get(run.WorkflowName)
	if err != nil {
		return err
	}
	es.wf = wf

	// Setup failures are fatal before any step executes: no partial launch.
	if err := r.setup(ctx, es); err != nil {
		return err
	}

	total := len(wf.Steps)
	for iter := 0; iter < run.Iterations; iter++ {
		run.Iteration = iter
		for idx := range wf.Steps {
			run.StepIndex = idx
			r.persist(ctx, run)

			last := iter == run.Iterations-1 && idx == total-1
			if err := r.executeStep(ctx, es, &wf.Steps[idx], last); err != nil {
				return err
			}
		}
	}

	if hook := wf.Metadata.Hooks.PostRun; hook != "" {
		if err := r.runHook(ctx, es, hook); err != nil {
			r.logger.Warn("post-run hook failed", "run_id", run.ID, "error", err)
		}
	}

	return es.sideloads.Join(30 * time.Second)
}

// setup acquires the run's resources and launches the application:
// credential, display mode (query, verify, switch, settle), launch, pre-run
// hook.
func (r *Runner) setup(ctx context.Context, es *execState) error {
	run, wf := es.run, es.wf

	if wf.Metadata.RequiresCredential {
		if r.creds == nil {
			return fmt.Errorf("%w: no credential pool configured", ErrNoCredentialAvailable)
		}
		pairName, err := r.creds.Acquire(run.DeviceID)
		if err != nil {
			return err
		}
		run.CredentialKey = pairName

		cred, err := r.creds.Select(run.DeviceID, partitionKeyOf(run.WorkflowName))
		if err != nil {
			return err
		}
		if err := r.ensureLogin(ctx, es, cred); err != nil {
			return err
		}
	}

	if required := wf.Metadata.DisplayMode; required != nil {
		if err := r.applyDisplayMode(ctx, es, *required); err != nil {
			return err
		}
	}

	if err := r.checkCancelled(es); err != nil {
		return err
	}

	if err := r.gw.Launch(ctx, run.DeviceID, gateway.LaunchRequest{
		Path: wf.Metadata.Process.Exe,
		Args: wf.Metadata.Process.Args,
	}); err != nil {
		return fmt.Errorf("launching %s: %w", wf.Metadata.Process.Exe, err)
	}

	if err := r.waitForProcess(ctx, es); err != nil {
		return err
	}

	if hook := wf.Metadata.Hooks.PreRun; hook != "" {
		if err := r.runHook(ctx, es, hook); err != nil {
			return err
		}
	}

	return nil
}

// ensureLogin switches the device's login only when the credential bucket
// differs from the one already active, minimising re-authentication across
// a multi-run batch.
func (r *Runner) ensureLogin(ctx context.Context, es *execState, cred Credential) error {
	ds := r.deviceState(es.run.DeviceID)

	r.mu.Lock()
	same := ds.activeBucket == cred.BucketKey
	r.mu.Unlock()
	if same {
		r.appendLog(ctx, es, "info", "credential bucket already active", map[string]any{
			"bucket": cred.BucketKey,
		})
		return nil
	}

	if r.cfg.SwitchLogin != nil {
		if err := r.cfg.SwitchLogin(ctx, es.run.DeviceID, cred); err != nil {
			return fmt.Errorf("switching login: %w", err)
		}
	}

	r.mu.Lock()
	ds.activeBucket = cred.BucketKey
	r.mu.Unlock()

	r.appendLog(ctx, es, "info", "credential switched", map[string]any{
		"bucket": cred.BucketKey,
		"user":   cred.User,
	})
	return nil
}

// applyDisplayMode verifies the required mode is supported, switches if it
// differs from current and waits for the display to settle.
func (r *Runner) applyDisplayMode(ctx context.Context, es *execState, required gateway.DisplayMode) error {
	state, err := r.gw.DisplayModes(ctx, es.run.DeviceID)
	if err != nil {
		return fmt.Errorf("querying display modes: %w", err)
	}

	supported := false
	for _, m := range state.Supported {
		if m.Equal(required) {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: %dx%d@%d", ErrUnsupportedDisplayMode,
			required.Width, required.Height, required.RefreshHz)
	}

	if state.Current.Equal(required) {
		return nil
	}

	ds := r.deviceState(es.run.DeviceID)
	r.mu.Lock()
	if ds.originalMode == nil {
		original := state.Current
		ds.originalMode = &original
	}
	r.mu.Unlock()

	if err := r.gw.SetDisplayMode(ctx, es.run.DeviceID, required); err != nil {
		return fmt.Errorf("switching display mode: %w", err)
	}
	r.appendLog(ctx, es, "info", "display mode switched", map[string]any{
		"from": state.Current, "to": required,
	})

	return r.sleep(ctx, es, r.cfg.DisplaySettle)
}

// RestoreDisplay puts back the device's original display mode if a run
// switched it. The scheduler calls this at batch end under the per_batch
// policy.
func (r *Runner) RestoreDisplay(ctx context.Context, deviceID string) {
	r.mu.Lock()
	ds := r.devices[deviceID]
	var original *gateway.DisplayMode
	if ds != nil && ds.originalMode != nil {
		original = ds.originalMode
		ds.originalMode = nil
	}
	r.mu.Unlock()

	if original == nil {
		return
	}
	if err := r.gw.SetDisplayMode(ctx, deviceID, *original); err != nil {
		r.logger.Warn("display mode restore failed", "device_id", deviceID, "error", err)
		return
	}
	r.logger.Info("display mode restored", "device_id", deviceID,
		"mode", fmt.Sprintf("%dx%d@%d", original.Width, original.Height, original.RefreshHz))
}

// ResetDeviceSession clears the device's credential-bucket memory. The
// scheduler calls this when a device's batch ends and its pool pair is
// released.
func (r *Runner) ResetDeviceSession(deviceID string) {
	r.mu.Lock()
	if ds, ok := r.devices[deviceID]; ok {
		ds.activeBucket = ""
	}
	r.mu.Unlock()
}

// waitForProcess polls check-process until the workflow's process is seen
// running or the launch wait elapses.
func (r *Runner) waitForProcess(ctx context.Context, es *execState) error {
	name := es.wf.Metadata.Process.Name
	deadline := time.Now().Add(r.cfg.LaunchWait)

	for {
		if err := r.checkCancelled(es); err != nil {
			return err
		}

		status, err := r.gw.CheckProcess(ctx, es.run.DeviceID, name)
		if err == nil && status.Running {
			r.appendLog(ctx, es, "info", "process running", map[string]any{
				"process": name, "pid": status.PID,
			})
			return nil
		}
		if err != nil {
			r.logger.Debug("process check failed", "run_id", es.run.ID, "error", err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("process %s not running after %s", name, r.cfg.LaunchWait)
		}
		if err := r.sleep(ctx, es, 2*time.Second); err != nil {
			return err
		}
	}
}

// runHook runs a pre/post-run hook script synchronously on the control
// plane.
func (r *Runner) runHook(ctx context.Context, es *execState, path string) error {
	return es.sideloads.Run(ctx, &workflow.Sideload{
		Path:              path,
		WaitForCompletion: true,
		Critical:          true,
	})
}

// executeStep runs one workflow step: sideload, locate, act, verify, delay.
func (r *Runner) executeStep(ctx context.Context, es *execState, step *workflow.Step, lastStep bool) error {
	if err := r.checkCancelled(es); err != nil {
		return err
	}

	if step.Sideload != nil {
		if err := es.sideloads.Run(ctx, step.Sideload); err != nil {
			r.appendLog(ctx, es, "warn", "sideload failed", map[string]any{
				"path": step.Sideload.Path, "critical": step.Sideload.Critical, "error": err.Error(),
			})
			if step.Sideload.Critical {
				return err
			}
		}
	}

	var target *inference.Element
	if step.Find != nil {
		el, err := r.locate(ctx, es, step)
		if err != nil {
			if errors.Is(err, ErrElementNotFound) && step.Optional {
				r.appendLog(ctx, es, "warn", "optional step target not found, skipping", map[string]any{
					"step": step.Name,
				})
				return nil
			}
			return err
		}
		target = el
	}

	if err := r.checkCancelled(es); err != nil {
		return err
	}

	if err := r.performAction(ctx, es, step, target); err != nil {
		return err
	}

	if len(step.Verify) > 0 {
		if err := r.verify(ctx, es, step); err != nil {
			if errors.Is(err, ErrVerificationFailed) && step.Optional {
				r.appendLog(ctx, es, "warn", "optional step verification failed, continuing", map[string]any{
					"step": step.Name,
				})
				return nil
			}
			return err
		}
	}

	if !lastStep {
		if err := r.checkCancelled(es); err != nil {
			return err
		}
		if err := r.sleep(ctx, es, step.DelayDuration(es.wf.DefaultDelayDuration())); err != nil {
			return err
		}
		if err := r.checkCancelled(es); err != nil {
			return err
		}
	}

	return nil
}

// locate captures a screenshot and searches it for the step's target,
// walking the fallback configurations when the primary config misses. Every
// attempt is recorded in the run log for post-hoc OCR tuning.
func (r *Runner) locate(ctx context.Context, es *execState, step *workflow.Step) (*inference.Element, error) {
	stepCtx, cancel := context.WithTimeout(ctx, step.TimeoutDuration(es.wf.DefaultTimeoutDuration()))
	defer cancel()

	image, err := r.gw.Screenshot(stepCtx, es.run.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}

	primary := es.wf.Metadata.DefaultOCR.Merge(step.OCR)

	// Attempt 0 is the primary config; the rest re-submit the same
	// screenshot with each fallback layered on top.
	configs := []*inference.Override{primary}
	for _, fb := range workflow.FallbackConfigs() {
		fbCopy := fb
		configs = append(configs, primary.Merge(&fbCopy))
	}

	for attempt, cfg := range configs {
		if err := r.checkCancelled(es); err != nil {
			return nil, err
		}

		elements, err := r.detector.Detect(stepCtx, image, cfg)
		if err != nil {
			// A queue outage is not a miss: no fallback config can recover
			// from it, and folding it into ErrElementNotFound would let
			// optional steps skip silently while every backend is down.
			if isDetectorOutage(err) {
				return nil, fmt.Errorf("step %q detection: %w", step.Name, err)
			}
			r.appendLog(ctx, es, "warn", "detection attempt failed", map[string]any{
				"step": step.Name, "fallback": attempt, "error": err.Error(),
			})
			continue
		}

		if el := matchElement(step.Find, elements); el != nil {
			r.appendLog(ctx, es, "info", "element located", map[string]any{
				"step": step.Name, "fallback": attempt,
				"text": el.Text, "confidence": el.Confidence, "bbox": el.BBox,
			})
			return el, nil
		}

		r.appendLog(ctx, es, "info", "element not found with config", map[string]any{
			"step": step.Name, "fallback": attempt, "candidates": len(elements),
		})
	}

	return nil, fmt.Errorf("%w: step %q selector %q after %d configs",
		ErrElementNotFound, step.Name, step.Find.Text, len(configs))
}

// isDetectorOutage reports errors the fallback walk cannot retry past: the
// queue is refusing work or the step's context is already dead.
func isDetectorOutage(err error) bool {
	return errors.Is(err, inference.ErrBackendUnavailable) ||
		errors.Is(err, inference.ErrQueueFull) ||
		errors.Is(err, inference.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// matchElement returns the first element the selector accepts, preferring
// higher confidence on ties.
func matchElement(sel *workflow.Selector, elements []inference.Element) *inference.Element {
	var best *inference.Element
	for i := range elements {
		if !sel.Matches(elements[i]) {
			continue
		}
		if best == nil || elements[i].Confidence > best.Confidence {
			best = &elements[i]
		}
	}
	return best
}

// performAction translates the step's action into a gateway input call.
// Click variants and move resolve to the target's bounding-box center; drag
// uses the target as source and the configured destination.
func (r *Runner) performAction(ctx context.Context, es *execState, step *workflow.Step, target *inference.Element) error {
	a := step.Action

	if a.Type == workflow.ActionWait {
		return r.sleep(ctx, es, time.Duration(a.Seconds*float64(time.Second)))
	}

	input := gateway.InputAction{
		Type:           string(a.Type),
		JitterPX:       a.JitterPX,
		MoveDurationMS: a.MoveDurationMS,
		Key:            a.Key,
		Keys:           a.Keys,
		Text:           a.Text,
		ScrollDX:       a.ScrollDX,
		ScrollDY:       a.ScrollDY,
	}

	if a.Type.NeedsElement() {
		if target == nil {
			return fmt.Errorf("%w: action %q has no located target", ErrElementNotFound, a.Type)
		}
		input.X, input.Y = target.BBox.Center()
	}
	if a.Type == workflow.ActionDrag && a.To != nil {
		input.ToX, input.ToY = a.To.X, a.To.Y
	}

	if err := r.gw.SendInput(ctx, es.run.DeviceID, input); err != nil {
		return fmt.Errorf("step %q action %s: %w", step.Name, a.Type, err)
	}

	r.appendLog(ctx, es, "info", "action executed", map[string]any{
		"step": step.Name, "action": a.Type, "x": input.X, "y": input.Y,
	})
	return nil
}

// verify re-detects against fresh screenshots until every condition matches
// or the step timeout elapses.
func (r *Runner) verify(ctx context.Context, es *execState, step *workflow.Step) error {
	deadline := time.Now().Add(step.TimeoutDuration(es.wf.DefaultTimeoutDuration()))

	for {
		if err := r.checkCancelled(es); err != nil {
			return err
		}

		satisfied, err := r.verifyOnce(ctx, es, step)
		if err != nil {
			return err
		}
		if satisfied {
			r.appendLog(ctx, es, "info", "verification satisfied", map[string]any{
				"step": step.Name, "conditions": len(step.Verify),
			})
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: step %q conditions not met within timeout",
				ErrVerificationFailed, step.Name)
		}
		if err := r.sleep(ctx, es, time.Second); err != nil {
			return err
		}
	}
}

// verifyOnce captures one screenshot and checks every condition against it,
// each with its own detection override.
func (r *Runner) verifyOnce(ctx context.Context, es *execState, step *workflow.Step) (bool, error) {
	image, err := r.gw.Screenshot(ctx, es.run.DeviceID)
	if err != nil {
		return false, fmt.Errorf("capturing verification screenshot: %w", err)
	}

	for i := range step.Verify {
		v := &step.Verify[i]
		cfg := es.wf.Metadata.DefaultOCR.Merge(v.OCR)

		elements, err := r.detector.Detect(ctx, image, cfg)
		if err != nil {
			return false, fmt.Errorf("verification detection: %w", err)
		}
		if matchElement(&v.Find, elements) == nil {
			return false, nil
		}
	}
	return true, nil
}

// checkCancelled maps the cancellation flag to ErrStopped.
func (r *Runner) checkCancelled(es *execState) error {
	if es.cancel.Stopped() {
		return ErrStopped
	}
	return nil
}

// sleep waits for the duration, aborting on cancellation or context done.
func (r *Runner) sleep(ctx context.Context, es *execState, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-es.cancel.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deviceState returns (creating if needed) the device's cross-run state.
func (r *Runner) deviceState(deviceID string) *deviceState {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.devices[deviceID]
	if !ok {
		ds = &deviceState{}
		r.devices[deviceID] = ds
	}
	return ds
}

// persist saves the run record, logging persistence failures rather than
// failing the run.
func (r *Runner) persist(ctx context.Context, run *Run) {
	if err := r.repo.UpdateRun(ctx, run); err != nil {
		r.logger.Error("persisting run failed", "run_id", run.ID, "error", err)
	}
}

// appendLog writes one run-log entry, best effort.
func (r *Runner) appendLog(ctx context.Context, es *execState, level, msg string, detail map[string]any) {
	entry := &LogEntry{
		RunID:     es.run.ID,
		At:        time.Now().UTC(),
		Level:     level,
		Iteration: es.run.Iteration,
		StepIndex: es.run.StepIndex,
		Message:   msg,
		Detail:    detail,
	}
	if err := r.repo.AppendLog(ctx, entry); err != nil {
		r.logger.Error("appending run log failed", "run_id", es.run.ID, "error", err)
	}
}

// emit delivers a run lifecycle event to the registered callback, if any.
func (r *Runner) emit(run *Run, reason string) {
	if r.onEvent == nil {
		return
	}
	r.onEvent(Event{
		RunID:      run.ID,
		DeviceID:   run.DeviceID,
		CampaignID: run.CampaignID,
		Status:     run.Status,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
}

// partitionKeyOf derives the credential partition key from a workflow name.
func partitionKeyOf(workflowName string) string {
	return strings.ToLower(strings.TrimSpace(workflowName))
}
