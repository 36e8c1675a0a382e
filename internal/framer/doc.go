// Package framer turns raw text chunks read from the sensor into SensorEvents.
//
// The sensor stream is unstructured text; the only contractual token is the
// case-insensitive substring IMPACT_DETECTED. Chunks are framed independently:
// a token split across two reads is not reassembled.
package framer
