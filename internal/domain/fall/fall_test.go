package fall

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRemoteDeviceClone verifies that Clone returns a copy and handles nil safely.
func TestRemoteDeviceClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*RemoteDevice)(nil).Clone())

	d := &RemoteDevice{
		Address: "00:11:22:33:44:55",
		Name:    "ESP32 fall sensor",
		Channel: 1,
	}

	c := d.Clone()

	require.Equal(t, d, c)
	require.NotSame(t, d, c)
}

// TestRemoteDeviceDisplayName covers the fallbacks used in status messages.
func TestRemoteDeviceDisplayName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "<none>", (*RemoteDevice)(nil).DisplayName())
	require.Equal(t, "wrist", (&RemoteDevice{Name: "wrist", Address: "AA"}).DisplayName())
	require.Equal(t, "AA", (&RemoteDevice{Name: " ", Address: "AA"}).DisplayName())
	require.Equal(t, "/dev/rfcomm0", (&RemoteDevice{Path: "/dev/rfcomm0"}).DisplayName())
	require.Equal(t, "Unknown Device", new(RemoteDevice).DisplayName())
}

// TestEmergencyContact checks blank numbers are not usable.
func TestEmergencyContact(t *testing.T) {
	t.Parallel()

	require.False(t, EmergencyContact("").IsSet())
	require.False(t, EmergencyContact("   ").IsSet())
	require.True(t, EmergencyContact(" +15551234567 ").IsSet())
	require.Equal(t, "+15551234567", EmergencyContact(" +15551234567 ").String())
}

// TestLocationMapLink verifies the map link format.
func TestLocationMapLink(t *testing.T) {
	t.Parallel()

	l := &Location{Latitude: -33.8688, Longitude: 151.2093}
	require.Equal(t, "https://maps.google.com/?q=-33.8688,151.2093", l.MapLink())
	require.True(t, l.Valid())
	require.False(t, (&Location{Latitude: 91}).Valid())
	require.False(t, (*Location)(nil).Valid())
}

// TestEscalationSessionClone ensures device and location are deep-copied.
func TestEscalationSessionClone(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewEscalationSession(&RemoteDevice{Name: "wrist"}, "+15551234567", now, 30*time.Second)
	s.Location = &Location{Latitude: 1, Longitude: 2}

	require.Equal(t, PhaseCountingDown, s.Phase)
	require.Equal(t, now.Add(30*time.Second), s.Deadline)

	c := s.Clone()
	require.Equal(t, s, c)
	require.NotSame(t, s.Device, c.Device)
	require.NotSame(t, s.Location, c.Location)
}

// TestErrorTaxonomy verifies wrapped errors stay matchable.
func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	linkErr := &LinkError{Op: "connect", Device: "wrist", Err: fmt.Errorf("%w: %w", ErrPermissionDenied, io.EOF)}
	require.ErrorIs(t, linkErr, ErrPermissionDenied)
	require.True(t, IsPermission(linkErr))
	require.Contains(t, linkErr.Error(), "connect wrist")

	var target *LinkError
	require.True(t, errors.As(fmt.Errorf("outer: %w", linkErr), &target))

	dispatchErr := &DispatchError{Step: "notice", Err: ErrEncoding}
	require.ErrorIs(t, dispatchErr, ErrEncoding)
	require.False(t, IsPermission(dispatchErr))
}

// TestDeliveryOutcomeString checks the summary used in logs and status.
func TestDeliveryOutcomeString(t *testing.T) {
	t.Parallel()

	o := DeliveryOutcome{
		Notice:          MessagePlain,
		LocationMessage: MessageRich,
		LastResort:      true,
		Call:            CallPlaced,
	}

	require.Equal(t, "notice=plain location=unavailable location_message=rich last_resort=failed call=placed", o.String())
}
