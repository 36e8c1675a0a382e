// Package link owns the serial connection to the wearable sensor.
//
// Transport keeps at most one Session alive, runs the blocking read loop on a
// dedicated goroutine and exposes liveness only through synchronized
// accessors. Dialers open the byte stream: RFCOMMDialer speaks to the sensor
// over a Bluetooth RFCOMM socket, SerialDialer opens a TTY such as a bound
// /dev/rfcomm0 or a USB serial adapter.
package link
