// Package api implements the HTTP status API for wlddc.
//
// This package provides:
//   - Health endpoint reporting agent and broker state
//   - Display registry snapshot and per-display lookup
//   - Command history from the SQLite command log
//   - Prometheus metrics exposition
//   - A refresh trigger that requests an immediate poll
//   - Middleware stack (request ID, logging, recovery, bearer auth)
//
// # Architecture
//
// Home Assistant talks to wlddc over MQTT only. The status API exists for
// local troubleshooting and scraping, and is disabled by default. It binds
// to loopback unless configured otherwise. GET endpoints are open; POST
// endpoints require a bearer token once api.token_secret is set.
//
// # Graceful Degradation
//
// The server runs independently of the broker session: health reports a
// disconnected agent instead of failing, and the registry remains readable.
package api
