// Package capture implements the device-request coordinator.
//
// A Coordinator arbitrates access to audio and video capture devices on
// behalf of many concurrent, mutually untrusted requesters. Every request
// becomes a DeviceRequest under a fresh 36-character label and is driven
// through enumeration, UI approval and device opening until it settles,
// at which point exactly one completion continuation fires.
//
// # Actors
//
// The coordinator runs two actors, started by Run:
//
//   - IO actor: sole owner of the request registry. Every state mutation,
//     device manager call and continuation invocation happens here.
//   - UI actor: talks to the UIProxy and PermissionController.
//
// Both consume FIFO mailboxes. Public methods are safe for concurrent use;
// they only post work to the IO actor. Replies from the UI actor, the
// enumerator and the device managers are posted back keyed by label, and a
// reply whose label is no longer registered is dropped.
//
// # Request Lifecycle
//
//	arrive → setUpRequest → (enumerate) → UI approval → Open() per device
//	       → Opened() from the device manager → handleRequestDone
//
// Failures at any stage go through finalizeRequestFailed, which fires the
// category's failure continuation and deletes the request. Deleting a
// request whose continuation has not fired yet fires it with
// FAILED_DUE_TO_SHUTDOWN, so callers are never left waiting.
//
// # Device Sharing
//
// Several requests may hold the same open session: generate-stream audio
// requests from one frame reuse a device already opened with the same
// hashed id, and GetOpenDevice transfers a copy of an open device to
// another context. Opened() therefore scans every request, and closing a
// session moves every holder to CLOSING. A session with a pending transfer
// is never closed until both sides of the handshake have been observed.
package capture
