// Package prompt answers capture access prompts and tracks what the user
// is sharing.
//
// Broker implements capture.UIProxy. Depending on the configured mode it
// grants or denies every prompt on the spot, or parks it until an operator
// decides through the API. Stored permission decisions short-circuit the
// prompt in every mode. Prompt and stream events are broadcast to the
// WebSocket hub.
package prompt
