// Package server provides the HTTP views of a statecast store.
//
// This package is internal to statecast and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - REST API: JSON endpoints under "/api" that read or mutate the store
//   - Server-Sent Events: Live slice updates at "/api/sse"
//   - WebSocket: The same live view at "/api/ws"
//   - Metrics: Prometheus exposition at "/metrics" when a gatherer is set
//
// Each SSE or WebSocket connection is one view. It subscribes to every slice
// on connect, receives the current values as its first events, and releases
// all of its subscriptions when the connection ends.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
