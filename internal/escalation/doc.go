// Package escalation implements the escalation controller: the state machine
// that arms on a live sensor link, counts down after an impact and runs the
// alert when the countdown expires.
//
// The Controller is an actor. A single goroutine (Run) owns every piece of
// mutable state and consumes typed messages from two inboxes: control
// requests from users and events from the link, the countdown and the alert
// run. Pending control requests are always handled before an event, so a
// cancel observed together with an expiry wins.
package escalation
