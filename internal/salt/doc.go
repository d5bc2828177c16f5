// Package salt keeps the per-origin secrets that device ids are hashed
// with.
//
// Every origin gets two random salts, one for device ids and one for group
// ids, created on first use and persisted so the same camera keeps the same
// hashed id across restarts. Rotating an origin's salts makes all of its
// previously seen ids unresolvable, which is how stored ids expire.
//
// Store fronts a Repository with an in-memory cache; lookups after the
// first one for an origin do not touch the database.
package salt
