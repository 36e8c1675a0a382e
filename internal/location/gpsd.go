package location

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

const (
	// SatelliteProviderName is the name of the gpsd-backed provider.
	SatelliteProviderName = "satellite"

	// DefaultGPSDAddress is where gpsd listens by default.
	DefaultGPSDAddress = "127.0.0.1:2947"

	// gpsdProcessName is the executable looked up to decide if gpsd runs.
	gpsdProcessName = "gpsd"

	// gpsdPollCommand enables reporting and asks for the cached fixes.
	gpsdPollCommand = "?WATCH={\"enable\":true};?POLL;\n"

	// minFixMode is the TPV mode of a 2D fix; lower modes carry no position.
	minFixMode = 2

	// maxReplyLines bounds how many gpsd lines are read while looking for POLL.
	maxReplyLines = 32
)

// errNoPollReply is returned when gpsd closes the connection before answering.
var errNoPollReply = errors.New("gpsd did not answer the poll")

// gpsdReport is the subset of gpsd JSON objects needed here.
type gpsdReport struct {
	Class string    `json:"class"`
	TPV   []gpsdTPV `json:"tpv"`
}

// gpsdTPV is a time-position-velocity report.
type gpsdTPV struct {
	Mode int      `json:"mode"`
	Time string   `json:"time"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	EPH  float64  `json:"eph"`
}

// GPSDProvider reads the last fix cached by a local gpsd daemon.
type GPSDProvider struct {
	// address of the gpsd socket.
	address string
	// running reports whether gpsd is alive.
	running func() bool
}

// GPSDOption configures a GPSDProvider.
type GPSDOption func(*GPSDProvider)

// WithProcessCheck replaces the process table lookup used by Enabled.
func WithProcessCheck(running func() bool) GPSDOption {
	return func(p *GPSDProvider) {
		p.running = running
	}
}

// NewGPSDProvider creates a provider talking to gpsd at address.
func NewGPSDProvider(address string, opts ...GPSDOption) *GPSDProvider {
	if address == "" {
		address = DefaultGPSDAddress
	}

	p := &GPSDProvider{
		address: address,
		running: gpsdRunning,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name implements Provider.
func (p *GPSDProvider) Name() string {
	return SatelliteProviderName
}

// Enabled reports whether gpsd is running.
func (p *GPSDProvider) Enabled(context.Context) bool {
	return p.running()
}

// LastKnown implements Provider using the gpsd POLL command, which answers
// from the daemon's cache instead of waiting for the receiver.
func (p *GPSDProvider) LastKnown(ctx context.Context) (*fall.Location, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return nil, fmt.Errorf("dial gpsd: %w", err)
	}

	defer func() {
		_ = conn.Close()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err = conn.Write([]byte(gpsdPollCommand)); err != nil {
		return nil, fmt.Errorf("write gpsd poll: %w", err)
	}

	scanner := bufio.NewScanner(conn)

	for range maxReplyLines {
		if !scanner.Scan() {
			break
		}

		var report gpsdReport
		if err = json.Unmarshal(scanner.Bytes(), &report); err != nil || report.Class != "POLL" {
			continue
		}

		return bestFix(report.TPV), nil
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gpsd reply: %w", err)
	}

	return nil, errNoPollReply
}

// bestFix returns the first TPV carrying a 2D or 3D fix.
func bestFix(reports []gpsdTPV) *fall.Location {
	for _, tpv := range reports {
		if tpv.Mode < minFixMode || tpv.Lat == nil || tpv.Lon == nil {
			continue
		}

		loc := &fall.Location{
			Latitude:  *tpv.Lat,
			Longitude: *tpv.Lon,
			Accuracy:  tpv.EPH,
			Provider:  SatelliteProviderName,
		}

		if ts, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			loc.Time = ts
		}

		return loc
	}

	return nil
}

// gpsdRunning scans the process table for gpsd.
func gpsdRunning() bool {
	processes, err := ps.Processes()
	if err != nil {
		return false
	}

	for _, process := range processes {
		if process.Executable() == gpsdProcessName {
			return true
		}
	}

	return false
}
