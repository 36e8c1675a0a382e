package modem

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// DefaultBaudRate is the usual speed of USB GSM modems.
const DefaultBaudRate = 115200

// Port is the part of a serial port the modem needs.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds every Read; a timed out Read returns 0, nil.
	SetReadTimeout(t time.Duration) error
}

// Opener opens the modem port.
type Opener func(path string, baudRate int) (Port, error)

// OpenSerial is the default Opener backed by go.bug.st/serial.
func OpenSerial(path string, baudRate int) (Port, error) {
	//nolint:exhaustruct // 8N1 is the AT command default.
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err == nil {
		return port, nil
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied {
		return nil, fmt.Errorf("%w: open modem %s: %w", fall.ErrPermissionDenied, path, err)
	}

	return nil, fmt.Errorf("%w: open modem %s: %w", fall.ErrTransmission, path, err)
}
