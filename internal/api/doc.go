// Package api provides the HTTP REST API and WebSocket server for autobright.
//
// It lets local tools (autobrightctl, a tray applet, a browser) read the
// controller state, nudge the relative level, start and stop the control
// loop, and follow changes live.
//
// # Endpoints
//
//	GET  /api/v1/health
//	GET  /api/v1/state
//	PUT  /api/v1/level             {"level": 70}
//	POST /api/v1/level/increase
//	POST /api/v1/level/decrease
//	PUT  /api/v1/sense-interval    {"interval_ms": 1500}
//	POST /api/v1/service/start
//	POST /api/v1/service/stop
//	GET  /api/v1/history?limit=50
//	GET  /api/v1/ws
//
// # WebSocket channels
//
//   - state.changed: one message per store change, payload {key, value, state}
//   - feedback.signal: boundary and override signals from the control loop
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
