// Package common holds helpers shared by the fall-guard services.
//
// It provides the ControlService client wrapper with per-call timeouts and
// detection of the current system actor (user@host), which the client sends
// with every control request so the daemon can log who cancelled an alert.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
