package link

import (
	"context"
	"errors"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// errNoDialer is returned when the device names a link kind nobody can open.
var errNoDialer = errors.New("no dialer for device")

// DeviceDialer picks a dialer per device: a TTY path goes to Serial, a
// Bluetooth address goes to RFCOMM.
type DeviceDialer struct {
	// RFCOMM dials Bluetooth addresses.
	RFCOMM Dialer
	// Serial opens TTY paths.
	Serial Dialer
}

// Dial implements Dialer.
func (d *DeviceDialer) Dial(ctx context.Context, device *fall.RemoteDevice) (Stream, error) {
	switch {
	case device.Path != "" && d.Serial != nil:
		return d.Serial.Dial(ctx, device)
	case device.Address != "" && d.RFCOMM != nil:
		return d.RFCOMM.Dial(ctx, device)
	default:
		return nil, errors.Join(fall.ErrLinkUnavailable, errNoDialer)
	}
}
