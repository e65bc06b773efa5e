// Package api implements the broker's HTTP control API and its WebSocket
// event stream.
//
// The API reads device snapshots and submits commands (decoder state
// requests, tasks, disconnects) through the broker's command channel, so
// no handler touches domain state directly. Domain events reach WebSocket
// clients through the Hub, which is registered as a registry observer.
//
//	GET    /api/v1/health
//	GET    /api/v1/devices
//	GET    /api/v1/devices/{name}
//	POST   /api/v1/devices/{name}/disconnect
//	POST   /api/v1/devices/{name}/tasks
//	POST   /api/v1/devices/{name}/tasks/{id}/servo
//	DELETE /api/v1/devices/{name}/tasks/{id}
//	PUT    /api/v1/decoders/{address}/state
//	GET    /api/v1/events                        (WebSocket)
//	GET    /api/v1/audit
//	GET    /metrics
//
// With api.auth enabled every route except health and metrics needs a
// bearer token whose role grants the route's permission (see package
// auth). Commands are recorded in the audit log with their outcome.
package api
