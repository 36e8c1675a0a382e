package link

import (
	"context"
	"errors"
	"fmt"

	"go.bug.st/serial"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// DefaultBaudRate matches the ESP32 Bluetooth serial bridge default.
const DefaultBaudRate = 115200

// SerialDialer opens the sensor through a serial TTY.
type SerialDialer struct {
	// BaudRate of the port; zero means DefaultBaudRate.
	BaudRate int
}

// Dial implements Dialer. Opening a TTY does not block on the remote side,
// so ctx is only checked before the attempt.
func (d *SerialDialer) Dial(ctx context.Context, device *fall.RemoteDevice) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", fall.ErrConnectFailed, err)
	}

	baudRate := d.BaudRate
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	//nolint:exhaustruct // 8N1 defaults are what the sensor speaks.
	port, err := serial.Open(device.Path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, classifySerial(device.Path, err)
	}

	return port, nil
}

// classifySerial maps go.bug.st/serial errors onto link sentinels.
func classifySerial(path string, err error) error {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return fmt.Errorf("open %s: %w", path, err)
	}

	switch portErr.Code() {
	case serial.PortNotFound, serial.InvalidSerialPort:
		return fmt.Errorf("%w: open %s: %w", fall.ErrLinkUnavailable, path, err)
	case serial.PermissionDenied:
		return fmt.Errorf("%w: open %s: %w", fall.ErrPermissionDenied, path, err)
	default:
		return fmt.Errorf("%w: open %s: %w", fall.ErrConnectFailed, path, err)
	}
}
