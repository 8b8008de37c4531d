// Package realtime implements the connection lifecycle manager: the single
// owner of the connection state machine, transport selection, reconnection
// backoff, heartbeat policy, and offline queue draining.
//
// One Manager instance serves one identity (e.g. one supervisor session).
// Transport failures never surface as errors to the caller; they surface as
// ConnectionState transitions observable through the dispatch registry's
// reserved connection_state_changed event.
package realtime
