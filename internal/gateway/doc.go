// Package gateway implements the proxy gateway: the single chokepoint for
// all communication with SUT agents.
//
// Every device-bound call resolves the device through the registry first,
// fails fast if the device is unknown or offline (no network call is made),
// then forwards the request to the agent's HTTP endpoint with a timeout
// appropriate to the operation class: short for status-style calls
// (screenshot, input, process checks), long for launch and display-mode
// switches.
//
// Transport failures are translated into a small closed error taxonomy
// (ErrTimeout, ErrUnreachable, *RemoteError) so callers never see raw
// net/http errors. Because no caller reaches an agent directly, device
// addressing can change (re-IP, reconnect) without any caller change.
package gateway
