// Package api implements the HTTP REST API and WebSocket server of the
// capture service.
//
// This package provides:
//   - Requester endpoints: generate streams, access requests, single device
//     opens, transfers and stops
//   - Operator endpoints: pending prompts, stored permissions, request
//     snapshots, outcome history and the operator audit trail
//   - WebSocket hub carrying prompt, stream and per-frame device events
//   - The embedded operator console under /panel/
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Identity
//
// A requester token names one frame (process, frame, requester id) and its
// origin. Handlers never take that identity from the request body; the
// client only picks the page request id of each call.
//
// # Long polling
//
// Capture requests are answered asynchronously by the coordinator. The
// handlers wait for the completion callback and cancel the request when
// the client goes away or the wait times out.
package api
