// Package orchestrator drives automation workflows against SUTs.
//
// A Run executes one workflow against one device for N iterations. The
// Scheduler owns a fixed worker pool and guarantees that no two runs touch
// the same device concurrently; a device has one screen and one input
// focus. Within a run, steps execute strictly sequentially.
//
// Each step follows the same loop: start any sideload script, capture a
// screenshot through the gateway, locate the target element via the
// inference queue (retrying with progressively more permissive fallback
// configurations), perform the action, then verify the expected UI state.
// Cancellation is a per-run flag checked at every suspension point; the
// executing goroutine is never killed, so a launched game process can be
// cleaned up deterministically before the run reports stopped.
//
// The package also owns the shared credential pool and the display-mode
// policy applied around application launch.
package orchestrator
