// Package status serves the read-only HTTP surface of the daemon.
//
// It exposes GET /healthz for liveness probes and GET /status with the
// current escalation status as JSON, using the same field names as the
// gRPC Struct form.
package status
