// Package collab implements the client side of the workspace collaboration
// protocol.
//
// The package implements:
//   - Client: WebSocket transport with a local mock-mode fallback
//   - Dispatcher: per-message-type subscription registry for UI callbacks
//   - Reconnector: exponential-backoff reconnect state machine
//   - MockGate: process-lifetime switch that forces mock mode
//
// Key behaviors:
//   - Connect always yields a usable session: any dial, handshake, or init
//     failure falls back to a locally synthesized mock session
//   - Inbound frames mutate session state before subscriber fanout, so
//     subscribers always observe consistent state
//   - Cursor updates are suppressed within a 15px radius of the last
//     transmitted position on the same chart
//   - After five consecutive failed reconnect attempts the client trips the
//     MockGate and no further real-socket attempts are made
package collab
