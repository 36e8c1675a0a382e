// Package dispatch composes and delivers the emergency alert: a notice, a
// location (or "location unavailable") message and a voice call.
//
// Every step is independent. A rich message that fails for any reason other
// than a missing grant is retried as plain text, a panic in the message path
// falls back to a minimal last-resort text, and the call is always attempted
// exactly once as the final step. Dispatch never returns an error; failures
// are reported in the DeliveryOutcome.
package dispatch
