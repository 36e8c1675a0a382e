// Package client implements the fall-guard-ctl commands.
//
// Each command connects to the daemon's control API, issues one request and
// renders the resulting status for a terminal.
package client
