// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every long-lived goroutine of the daemon (read worker, countdown, alert run)
// receives a context carrying a named logger, so log lines can be traced back
// to the sensor session or escalation that produced them.
package logger
