// Package hub provides WebSocket connection handling and frame relay for
// workspace collaboration sessions.
//
// The package implements:
//   - Hub: the authoritative session for one workspace and its connected clients
//   - HubManager: manages hubs across workspaces
//   - Handler: upgrades connections and processes inbound frames
//   - Service: wires hubs to the comment and history repositories
//
// Every accepted frame is applied to the hub's session state, persisted
// where durable, and then broadcast to all connected clients including the
// originator. The echo back to the originator is what reconciles the
// client's optimistic local state.
package hub
