package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Queue.
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

// Config holds the queue's operational parameters.
type Config struct {
	// Backends is the set of enabled inference backend base URLs.
	Backends []string

	// MaxDepth bounds the number of jobs waiting for a worker. Submissions
	// beyond it fail with ErrQueueFull.
	MaxDepth int

	// MaxAttempts is the retry budget across distinct backends for one job.
	MaxAttempts int

	// JobTimeout bounds a single backend call and is the default Await
	// deadline used by Detect.
	JobTimeout time.Duration

	// PerBackendConcurrency caps in-flight jobs per backend instance.
	PerBackendConcurrency int

	// ProbeInterval is how often the health prober polls each backend.
	ProbeInterval time.Duration

	// UnhealthyThreshold is the number of consecutive failures before a
	// backend is taken out of rotation.
	UnhealthyThreshold int

	// HistorySize bounds the ring of completed jobs kept for inspection.
	HistorySize int

	// Defaults is the base detection configuration; per-call overrides
	// layer on top of it.
	Defaults DetectConfig
}

// backend is the queue's bookkeeping for one inference instance.
type backend struct {
	url      string
	healthy  bool
	load     int   // in-flight jobs
	assigned int64 // lifetime dispatch count
	failures int   // consecutive failures (probe or dispatch)
}

// tracked pairs a job with its payload and completion signal.
type tracked struct {
	job   *Job
	image []byte
	done  chan struct{}
}

// Queue is a bounded FIFO inference job queue with a fixed worker pool.
//
// Workers dispatch round-robin over healthy backends, skipping instances at
// their concurrency cap. A job failing on one backend is retried on others
// up to the configured attempt budget.
//
// All public methods are thread-safe.
type Queue struct {
	cfg    Config
	client *http.Client
	logger Logger

	mu       sync.Mutex
	cond     *sync.Cond // signalled when a backend slot frees up
	backends []*backend
	rr       int // round-robin cursor
	jobs     map[string]*tracked
	closed   bool

	pending chan *tracked

	history  []Job // ring of completed jobs, nil entries unused
	histNext int

	total     int64
	succeeded int64
	failed    int64
	timedOut  int64
	waitSum   time.Duration
	procSum   time.Duration

	onComplete func(Job)

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewQueue creates a queue for the given backends. Call Start to launch the
// workers and the health prober, and Close to shut them down.
func NewQueue(cfg Config) *Queue {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PerBackendConcurrency <= 0 {
		cfg.PerBackendConcurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = 3
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 256
	}

	q := &Queue{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.JobTimeout},
		logger:  noopLogger{},
		jobs:    make(map[string]*tracked),
		pending: make(chan *tracked, cfg.MaxDepth),
		history: make([]Job, 0, cfg.HistorySize),
		stop:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	for _, url := range cfg.Backends {
		q.backends = append(q.backends, &backend{
			url:     strings.TrimRight(url, "/"),
			healthy: true,
		})
	}

	return q
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// SetCompletionFunc sets the callback invoked with a snapshot of every job
// reaching a terminal status. Callbacks must not block; they are invoked
// inline from queue workers.
func (q *Queue) SetCompletionFunc(fn func(Job)) {
	q.onComplete = fn
}

// Start launches the worker pool and the health prober.
func (q *Queue) Start() {
	workers := len(q.backends) * q.cfg.PerBackendConcurrency
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	if q.cfg.ProbeInterval > 0 {
		q.wg.Add(1)
		go q.proberLoop()
	}

	q.logger.Info("inference queue started",
		"backends", len(q.backends),
		"workers", workers,
		"max_depth", q.cfg.MaxDepth)
}

// Close drains in-flight jobs and stops the workers and the prober.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.stop)
	close(q.pending)
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("inference queue stopped")
}

// Submit enqueues a detection job and returns its ID immediately.
// Returns ErrQueueFull when the backlog is at MaxDepth and ErrClosed after
// shutdown has begun.
func (q *Queue) Submit(_ context.Context, image []byte, override *Override) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("inference: empty image")
	}

	t := &tracked{
		job: &Job{
			ID:         GenerateID(),
			Status:     JobQueued,
			Config:     override.Apply(q.cfg.Defaults),
			EnqueuedAt: time.Now().UTC(),
		},
		image: image,
		done:  make(chan struct{}),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}

	select {
	case q.pending <- t:
		q.jobs[t.job.ID] = t
		q.total++
	default:
		q.mu.Unlock()
		return "", ErrQueueFull
	}
	q.mu.Unlock()

	q.logger.Debug("job enqueued", "job_id", t.job.ID, "bytes", len(image))
	return t.job.ID, nil
}

// Await blocks until the job reaches a terminal status, the timeout elapses
// or the context is cancelled. A timeout marks the job timed_out and returns
// ErrJobTimeout. For failed jobs the job's recorded error is returned.
func (q *Queue) Await(ctx context.Context, jobID string, timeout time.Duration) ([]Element, error) {
	q.mu.Lock()
	t, ok := q.jobs[jobID]
	if !ok {
		// Already completed and retired to the history ring, or unknown.
		for i := range q.history {
			if q.history[i].ID == jobID {
				j := q.history[i].Snapshot()
				q.mu.Unlock()
				return j.Elements, terminalError(j)
			}
		}
		q.mu.Unlock()
		return nil, ErrJobNotFound
	}
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		q.mu.Lock()
		j := t.job.Snapshot()
		q.mu.Unlock()
		return j.Elements, terminalError(j)
	case <-timer.C:
		q.complete(t, JobTimedOut, "", nil, ErrJobTimeout)
		return nil, ErrJobTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Detect submits an image and waits for the result with the configured job
// timeout. It is the call sites' convenience path.
func (q *Queue) Detect(ctx context.Context, image []byte, override *Override) ([]Element, error) {
	id, err := q.Submit(ctx, image, override)
	if err != nil {
		return nil, err
	}
	return q.Await(ctx, id, q.cfg.JobTimeout)
}

// Get retrieves a job snapshot by ID, consulting live jobs first and then
// the completed-job history ring.
func (q *Queue) Get(jobID string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.jobs[jobID]; ok {
		return t.job.Snapshot(), nil
	}
	for i := range q.history {
		if q.history[i].ID == jobID {
			return q.history[i].Snapshot(), nil
		}
	}
	return Job{}, ErrJobNotFound
}

// History returns the completed jobs currently held in the ring, most
// recent last.
func (q *Queue) History() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.history))
	// Oldest entry sits at histNext once the ring has wrapped.
	if len(q.history) == q.cfg.HistorySize {
		for i := 0; i < len(q.history); i++ {
			out = append(out, q.history[(q.histNext+i)%len(q.history)].Snapshot())
		}
		return out
	}
	for i := range q.history {
		out = append(out, q.history[i].Snapshot())
	}
	return out
}

// Stats returns aggregate queue statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := QueueStats{
		Depth:     len(q.jobs),
		Total:     q.total,
		Succeeded: q.succeeded,
		Failed:    q.failed,
		TimedOut:  q.timedOut,
	}
	if done := q.succeeded + q.failed + q.timedOut; done > 0 {
		s.AvgWaitMS = float64(q.waitSum.Milliseconds()) / float64(done)
		s.AvgProcessMS = float64(q.procSum.Milliseconds()) / float64(done)
	}
	return s
}

// Health returns the current state of every configured backend.
func (q *Queue) Health() []BackendStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]BackendStatus, 0, len(q.backends))
	for _, b := range q.backends {
		out = append(out, BackendStatus{
			URL:      b.url,
			Enabled:  true,
			Healthy:  b.healthy,
			Load:     b.load,
			Assigned: b.assigned,
			Failures: b.failures,
		})
	}
	return out
}

// worker drains the pending channel until Close.
func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.pending {
		q.process(t)
	}
}

// process runs one job through the retry loop over distinct backends.
func (q *Queue) process(t *tracked) {
	q.mu.Lock()
	if t.job.Status.Terminal() {
		// Await timed the job out while it sat in the backlog.
		q.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	t.job.Status = JobRunning
	t.job.DispatchedAt = &now
	q.mu.Unlock()

	tried := make(map[string]bool, q.cfg.MaxAttempts)
	var lastErr error

	for attempt := 0; attempt < q.cfg.MaxAttempts; attempt++ {
		b := q.acquire(tried)
		if b == nil {
			break
		}
		tried[b.url] = true

		q.mu.Lock()
		t.job.Attempts++
		q.mu.Unlock()

		elements, err := q.call(b, t)
		q.release(b, err)

		if err == nil {
			q.complete(t, JobSucceeded, b.url, elements, nil)
			return
		}

		lastErr = err
		q.logger.Warn("backend dispatch failed",
			"job_id", t.job.ID, "backend", b.url, "attempt", attempt+1, "error", err)
	}

	err := fmt.Errorf("%w: tried %d backend(s)", ErrBackendUnavailable, len(tried))
	if lastErr != nil {
		err = fmt.Errorf("%w: tried %d backend(s), last error: %v",
			ErrBackendUnavailable, len(tried), lastErr)
	}
	q.complete(t, JobFailed, "", nil, err)
}

// acquire picks the next healthy, untried backend below its concurrency cap,
// scanning round-robin from the cursor. It blocks while every eligible
// backend is at capacity and returns nil when none remain eligible.
func (q *Queue) acquire(tried map[string]bool) *backend {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return nil
		}

		eligible := false
		for i := 0; i < len(q.backends); i++ {
			b := q.backends[(q.rr+i)%len(q.backends)]
			if !b.healthy || tried[b.url] {
				continue
			}
			eligible = true
			if b.load >= q.cfg.PerBackendConcurrency {
				continue
			}
			q.rr = (q.rr + i + 1) % len(q.backends)
			b.load++
			b.assigned++
			return b
		}

		if !eligible {
			return nil
		}
		q.cond.Wait()
	}
}

// release frees the backend slot and updates its health bookkeeping.
func (q *Queue) release(b *backend, callErr error) {
	q.mu.Lock()
	b.load--
	if callErr != nil {
		b.failures++
		if b.failures >= q.cfg.UnhealthyThreshold && b.healthy {
			b.healthy = false
			q.logger.Warn("backend marked unhealthy", "backend", b.url, "failures", b.failures)
		}
	} else {
		b.failures = 0
		b.healthy = true
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

// detectRequest is the wire payload sent to a backend's detect endpoint.
type detectRequest struct {
	Image  string       `json:"image"`
	Config DetectConfig `json:"config"`
}

// detectResponse is the payload returned by a backend.
type detectResponse struct {
	Elements []Element `json:"elements"`
}

// call performs one detection request against a single backend.
func (q *Queue) call(b *backend, t *tracked) ([]Element, error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.JobTimeout)
	defer cancel()

	body, err := json.Marshal(detectRequest{
		Image:  base64.StdEncoding.EncodeToString(t.image),
		Config: t.job.Config,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/v1/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return out.Elements, nil
}

// complete moves a job to a terminal status exactly once, retires it to the
// history ring and signals waiters.
func (q *Queue) complete(t *tracked, status JobStatus, backendURL string, elements []Element, jobErr error) {
	q.mu.Lock()
	if t.job.Status.Terminal() {
		q.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	t.job.Status = status
	t.job.Backend = backendURL
	t.job.Elements = elements
	t.job.CompletedAt = &now
	if jobErr != nil {
		t.job.Error = jobErr.Error()
	}

	switch status {
	case JobSucceeded:
		q.succeeded++
	case JobFailed:
		q.failed++
	case JobTimedOut:
		q.timedOut++
	}

	dispatched := t.job.EnqueuedAt
	if t.job.DispatchedAt != nil {
		dispatched = *t.job.DispatchedAt
	}
	q.waitSum += dispatched.Sub(t.job.EnqueuedAt)
	q.procSum += now.Sub(dispatched)

	snap := t.job.Snapshot()
	q.pushHistory(snap)
	delete(q.jobs, t.job.ID)
	q.mu.Unlock()

	close(t.done)
	if q.onComplete != nil {
		q.onComplete(snap)
	}
	q.logger.Debug("job completed",
		"job_id", t.job.ID, "status", status, "backend", backendURL, "attempts", t.job.Attempts)
}

// pushHistory appends to the bounded ring. Caller holds q.mu.
func (q *Queue) pushHistory(j Job) {
	if len(q.history) < q.cfg.HistorySize {
		q.history = append(q.history, j)
		q.histNext = (q.histNext + 1) % q.cfg.HistorySize
		return
	}
	q.history[q.histNext] = j
	q.histNext = (q.histNext + 1) % q.cfg.HistorySize
}

// proberLoop polls backend health endpoints until Close.
func (q *Queue) proberLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.Probe(context.Background())
		}
	}
}

// Probe checks every backend's /healthz once, re-admitting recovered
// instances and removing persistently failing ones from rotation.
func (q *Queue) Probe(ctx context.Context) {
	q.mu.Lock()
	backends := make([]*backend, len(q.backends))
	copy(backends, q.backends)
	q.mu.Unlock()

	for _, b := range backends {
		ok := q.probeOne(ctx, b.url)

		q.mu.Lock()
		if ok {
			if !b.healthy {
				q.logger.Info("backend re-admitted", "backend", b.url)
			}
			b.healthy = true
			b.failures = 0
			q.cond.Broadcast()
		} else {
			b.failures++
			if b.failures >= q.cfg.UnhealthyThreshold && b.healthy {
				b.healthy = false
				q.logger.Warn("backend marked unhealthy", "backend", b.url, "failures", b.failures)
			}
		}
		q.mu.Unlock()
	}
}

// probeOne performs a single health check request.
func (q *Queue) probeOne(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512)) //nolint:errcheck

	return resp.StatusCode == http.StatusOK
}

// terminalError maps a terminal job snapshot to the error Await should
// surface.
func terminalError(j Job) error {
	switch j.Status {
	case JobSucceeded:
		return nil
	case JobTimedOut:
		return ErrJobTimeout
	default:
		if j.Error != "" {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, strings.TrimPrefix(j.Error, ErrBackendUnavailable.Error()+": "))
		}
		return ErrBackendUnavailable
	}
}
