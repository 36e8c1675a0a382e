package fall

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the state of the escalation state machine.
type Phase int

const (
	// PhaseIdle means no sensor is linked.
	PhaseIdle Phase = iota
	// PhaseArmed means the sensor is linked and no escalation is running.
	PhaseArmed
	// PhaseCountingDown means an impact was received and the countdown runs.
	PhaseCountingDown
	// PhaseAlerting means the countdown expired and alerts are being sent.
	PhaseAlerting
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseArmed:
		return "armed"
	case PhaseCountingDown:
		return "counting_down"
	case PhaseAlerting:
		return "alerting"
	default:
		return "unknown"
	}
}

// LinkStatus describes the sensor connection as seen by the user.
type LinkStatus int

const (
	// LinkDisconnected means no session exists and none is being set up.
	LinkDisconnected LinkStatus = iota
	// LinkConnecting means a connect attempt is in flight.
	LinkConnecting
	// LinkConnected means a live session is reading the sensor stream.
	LinkConnected
	// LinkLost means a live session ended on a read error or EOF.
	LinkLost
	// LinkFailed means the last connect attempt failed.
	LinkFailed
)

// String returns the lower-case link status name.
func (s LinkStatus) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkLost:
		return "lost"
	case LinkFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// EscalationSession is one run of the emergency flow.
type EscalationSession struct {
	// ID identifies the run in logs and status events.
	ID uuid.UUID
	// Device is the sensor that reported the impact.
	Device *RemoteDevice
	// Contact is the number alerted at expiry.
	Contact EmergencyContact
	// StartedAt is when the impact was accepted.
	StartedAt time.Time
	// Deadline is when the countdown expires.
	Deadline time.Time
	// Remaining is the last displayed countdown value.
	Remaining time.Duration
	// Phase is CountingDown or Alerting while the session lives.
	Phase Phase
	// Location is the best-effort position resolved at expiry.
	Location *Location
}

// NewEscalationSession creates a session in the CountingDown phase.
func NewEscalationSession(
	device *RemoteDevice,
	contact EmergencyContact,
	now time.Time,
	countdown time.Duration,
) *EscalationSession {
	return &EscalationSession{
		ID:        uuid.New(),
		Device:    device.Clone(),
		Contact:   contact,
		StartedAt: now,
		Deadline:  now.Add(countdown),
		Remaining: countdown,
		Phase:     PhaseCountingDown,
	}
}

// Clone returns a deep copy of the session, or nil for a nil receiver.
func (s *EscalationSession) Clone() *EscalationSession {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.Device = s.Device.Clone()
	cloned.Location = s.Location.Clone()

	return &cloned
}
