// Package api implements the HTTP and WebSocket interface of DDC Core.
//
// The server exposes a versioned JSON API under /api/v1 for display
// management, VCP commands, presets, state history, users and audit
// queries, plus a WebSocket endpoint for realtime state events.
//
// Authentication is JWT-based: clients obtain an access/refresh token
// pair from /auth/login, send the access token as a Bearer header, and
// rotate the refresh token via /auth/refresh. WebSocket connections
// authenticate with short-lived single-use tickets because browsers
// cannot set headers on WebSocket upgrade requests.
//
// Writes to displays are asynchronous: a command request is validated,
// published to the protocol bridge over MQTT and acknowledged with 202.
// The resulting state change flows back on the bridge's state topic and
// is broadcast to WebSocket subscribers.
package api
