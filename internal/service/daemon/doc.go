// Package daemon wires the fall-guard daemon together.
//
// Run loads the settings, builds the sensor link, location resolver, modem
// and dispatcher around the escalation controller, restores the persisted
// selection and serves the gRPC control API, the HTTP status surface and
// the optional status publishers until the context is cancelled.
package daemon
