// Package auth identifies callers of the capture API.
//
// Two roles exist. A requester token names one frame (process, frame,
// requester id and origin) and lets its holder generate streams and
// stop its own devices; the coordinator never trusts identity from a
// request body. An operator token is issued after a password login and
// lets its holder answer prompts, manage stored permission decisions
// and mint requester tokens.
//
// Tokens are HS256 JWTs validated by signature only. Operator passwords
// are Argon2id PHC strings kept in configuration.
package auth
