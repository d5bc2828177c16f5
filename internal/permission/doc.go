// Package permission stores capture permission decisions per origin and
// notifies watchers when one changes.
//
// Controller implements capture.PermissionController. Decisions are kept in
// memory and, when a Repository is attached, persisted to SQLite so they
// survive restarts. Setting anything other than "granted" for an origin
// revokes the capture of every request watching it.
//
// Thread Safety: all Controller methods are safe for concurrent use.
// Subscriber callbacks run outside the controller lock, on the goroutine
// that called Set.
package permission
