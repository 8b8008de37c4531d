// Package socket implements the persistent transport: a single WebSocket
// connection to the updates endpoint with application-level heartbeat.
//
// The client owns two goroutines (read loop, heartbeat loop) and exposes
// inbound envelopes and connection errors as channels. Heartbeat pongs are
// consumed here and never surface to consumers. The realtime manager owns
// reconnection; the client only reports that the connection died.
package socket
