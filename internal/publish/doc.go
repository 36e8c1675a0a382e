// Package publish mirrors escalation status to message brokers.
//
// Each status emitted by the controller is encoded as JSON and published on
// a NATS subject or an MQTT topic for dashboards. Publishers carry status
// only; alerts always go through the modem.
package publish
