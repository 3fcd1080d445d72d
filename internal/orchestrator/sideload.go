package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ShreyX24/Raptor-X-sub001/internal/workflow"
)

// sideloadOutputBufferSize is the buffer size for capturing script output.
const sideloadOutputBufferSize = 4096

// defaultSideloadTimeout bounds synchronous sideload waits when the declaration
// does not set a timeout.
const defaultSideloadTimeout = 60 * time.Second

// sideloadGracefulTimeout is how long StopAll waits after SIGTERM before
// SIGKILL.
const sideloadGracefulTimeout = 5 * time.Second

// runningSideload tracks one started script.
type runningSideload struct {
	name string
	cmd  *exec.Cmd
	done chan error // closed after Wait returns
}

// SideloadRunner starts and tracks the external scripts a run's steps
// declare. Synchronous sideloads block the step until the script exits or
// times out; persistent ones keep running and are joined or stopped when
// the run ends.
//
// One runner belongs to one run; it is not shared across runs.
type SideloadRunner struct {
	logger Logger

	mu      sync.Mutex
	tracked []*runningSideload
}

// NewSideloadRunner creates a runner for one run's sideload scripts.
func NewSideloadRunner(logger Logger) *SideloadRunner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SideloadRunner{logger: logger}
}

// Run executes one sideload declaration. WaitForCompletion blocks until exit within
// its timeout; otherwise the script is started and tracked. Errors
// wrap ErrSideloadFailed; the caller decides fatality from the Critical
// flag.
func (s *SideloadRunner) Run(ctx context.Context, decl *workflow.Sideload) error {
	rs, err := s.start(ctx, decl)
	if err != nil {
		return fmt.Errorf("%w: starting %s: %v", ErrSideloadFailed, decl.Path, err)
	}

	if !decl.WaitForCompletion {
		s.mu.Lock()
		s.tracked = append(s.tracked, rs)
		s.mu.Unlock()
		return nil
	}

	timeout := decl.TimeoutDuration(defaultSideloadTimeout)
	select {
	case err := <-rs.done:
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSideloadFailed, decl.Path, err)
		}
		return nil
	case <-time.After(timeout):
		s.kill(rs)
		return fmt.Errorf("%w: %s: timed out after %s", ErrSideloadFailed, decl.Path, timeout)
	case <-ctx.Done():
		s.kill(rs)
		return fmt.Errorf("%w: %s: %v", ErrSideloadFailed, decl.Path, ctx.Err())
	}
}

// start launches the script in its own process group so StopAll can signal
// the whole tree.
func (s *SideloadRunner) start(ctx context.Context, decl *workflow.Sideload) (*runningSideload, error) {
	cmd := exec.CommandContext(ctx, decl.Path, decl.Args...) //nolint:gosec // Path comes from a validated workflow document
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	s.logger.Info("sideload started", "path", decl.Path, "pid", cmd.Process.Pid,
		"wait", decl.WaitForCompletion, "persistent", decl.Persistent)

	go s.captureOutput(decl.Path, "stdout", stdout)
	go s.captureOutput(decl.Path, "stderr", stderr)

	rs := &runningSideload{name: decl.Path, cmd: cmd, done: make(chan error, 1)}
	go func() {
		rs.done <- cmd.Wait()
		close(rs.done)
	}()

	return rs, nil
}

// captureOutput reads from the given stream and logs each chunk.
func (s *SideloadRunner) captureOutput(name, stream string, r io.Reader) {
	buf := make([]byte, sideloadOutputBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.logger.Debug("sideload output", "path", name, "stream", stream, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Join waits for every tracked sideload to exit within the timeout. Scripts
// still running afterwards are killed. Returns the first failure wrapped in
// ErrSideloadFailed.
func (s *SideloadRunner) Join(timeout time.Duration) error {
	s.mu.Lock()
	tracked := s.tracked
	s.tracked = nil
	s.mu.Unlock()

	deadline := time.After(timeout)
	var firstErr error

	for _, rs := range tracked {
		select {
		case err, ok := <-rs.done:
			if ok && err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%w: %s: %v", ErrSideloadFailed, rs.name, err)
			}
		case <-deadline:
			s.kill(rs)
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s: did not exit before join timeout", ErrSideloadFailed, rs.name)
			}
		}
	}
	return firstErr
}

// StopAll terminates every tracked sideload: SIGTERM to the process group,
// then SIGKILL after a grace period.
func (s *SideloadRunner) StopAll() {
	s.mu.Lock()
	tracked := s.tracked
	s.tracked = nil
	s.mu.Unlock()

	for _, rs := range tracked {
		s.stop(rs)
	}
}

// stop performs the graceful-then-forced shutdown of one script.
func (s *SideloadRunner) stop(rs *runningSideload) {
	if rs.cmd.Process == nil {
		return
	}
	pid := rs.cmd.Process.Pid

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to signal sideload", "path", rs.name, "error", err)
	}

	select {
	case <-rs.done:
		s.logger.Info("sideload stopped", "path", rs.name)
		return
	case <-time.After(sideloadGracefulTimeout):
	}

	s.kill(rs)
}

// kill force-terminates the script's process group and reaps it.
func (s *SideloadRunner) kill(rs *runningSideload) {
	if rs.cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-rs.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to kill sideload", "path", rs.name, "error", err)
	}
	<-rs.done
	s.logger.Info("sideload killed", "path", rs.name)
}
