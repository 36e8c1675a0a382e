// Package control implements the fallguard.v1.ControlService gRPC API: the
// control surface that replaces the on-screen UI. It selects the emergency
// contact and the sensor, cancels a running countdown and streams status.
//
// Messages are protobuf well-known types (StringValue, BoolValue, Empty and
// Struct), so the service descriptor is declared in service.go instead of
// being generated from a .proto file.
package control
