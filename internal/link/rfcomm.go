package link

import (
	"errors"
	"fmt"
	"net"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// DefaultRFCOMMChannel is the channel SPP servers register on by convention.
const DefaultRFCOMMChannel uint8 = 1

// errInvalidAddress is returned for addresses that are not 48-bit MACs.
var errInvalidAddress = errors.New("invalid bluetooth address")

// RFCOMMDialer connects to the sensor's Serial Port Profile service.
type RFCOMMDialer struct {
	// Channel overrides the RFCOMM channel for devices that do not name one.
	Channel uint8
}

// channel resolves the RFCOMM channel for device.
func (d *RFCOMMDialer) channel(device *fall.RemoteDevice) uint8 {
	switch {
	case device.Channel != 0:
		return device.Channel
	case d.Channel != 0:
		return d.Channel
	default:
		return DefaultRFCOMMChannel
	}
}

// parseBDAddr parses a MAC into the little-endian layout the kernel expects.
func parseBDAddr(address string) ([6]uint8, error) {
	var addr [6]uint8

	mac, err := net.ParseMAC(address)
	if err != nil || len(mac) != len(addr) {
		return addr, fmt.Errorf("%q: %w", address, errInvalidAddress)
	}

	for i := range addr {
		addr[i] = mac[len(mac)-1-i]
	}

	return addr, nil
}
