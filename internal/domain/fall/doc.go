// Package fall contains the core domain types of the fall-detection daemon.
//
// It defines the remote sensor identity (RemoteDevice), the events framed from
// its stream (SensorEvent), the escalation phases and session, the per-channel
// DeliveryOutcome of an alert run and the error taxonomy shared by the link,
// dispatch and escalation packages. Clone helpers avoid leaking references
// across goroutines.
package fall
