// Package api implements the HTTP REST API and WebSocket activity feed for
// the identity service.
//
// This package provides:
//   - Public account endpoints: register, login, confirm, forgot and reset password
//   - Token validation and refresh
//   - Administrative endpoints over users, roles, permissions and the audit trail
//   - A WebSocket hub streaming account activity to super administrators
//   - Middleware stack (request ID, logging, recovery, CORS, metrics, authentication)
//
// # Authentication
//
// Every request passes through a fail-open gate. A valid bearer credential
// attaches the caller's principal to the request context; a missing or
// invalid one leaves the request anonymous. Routes then declare the role or
// permission they require and are rejected with 401 or 403 when it is not met.
//
// WebSocket connections use single-use tickets to keep credentials out of URLs.
//
// # Rate Limiting
//
// Login and forgot-password are throttled per client address with a token
// bucket. Rejections return 429 and are counted in Prometheus and InfluxDB.
package api
