// Package device implements the SUT registry: the authoritative record of
// every test machine known to the control plane.
//
// Devices register themselves by heartbeating; the registry upserts the
// record (last-write-wins on address and capabilities, monotonic on last
// seen) and a background Monitor drives the liveness state machine:
//
//	online --(no heartbeat for StaleAfter)--> stale
//	stale  --(no heartbeat for OfflineAfter total)--> offline
//	any    --(heartbeat)--> online
//
// Devices are never deleted, only marked offline, so run history stays
// attributable. The Registry keeps an in-memory cache over a persistent
// Repository; all reads return copies so callers cannot mutate the cache.
//
// Thread Safety: all Registry methods are safe for concurrent use.
package device
