// Package inference implements the vision-inference job queue.
//
// The queue decouples workflow execution from the latency and capacity of
// the OCR/UI-element-detection backends. Submissions enter a bounded FIFO
// queue (submissions beyond the configured depth are rejected with
// ErrQueueFull, the backpressure protecting the orchestrator);
// a worker pool drains it, picking a backend by round-robin among the
// currently healthy instances and skipping any at its concurrency cap.
//
// A failed or timed-out dispatch is retried against the next healthy
// backend until the per-job attempt budget is exhausted. A periodic prober
// re-admits backends that went unhealthy after consecutive failures.
//
// Completed jobs are kept in a bounded most-recent-N ring purely for
// inspection and stats; the live queue never grows past its depth.
package inference
