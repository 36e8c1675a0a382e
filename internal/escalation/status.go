package escalation

import (
	"time"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// EventKind tells subscribers what produced a Status.
type EventKind int

const (
	// EventSnapshot is a Status built on request.
	EventSnapshot EventKind = iota
	// EventLink reports a change of the sensor link.
	EventLink
	// EventPhase reports a change of the escalation phase.
	EventPhase
	// EventTick reports the countdown remaining time; display only.
	EventTick
	// EventOutcome reports the result of an alert run.
	EventOutcome
	// EventConfigError reports an impact dropped for lack of an emergency contact.
	EventConfigError
	// EventContact reports a new emergency contact.
	EventContact
)

// String returns the lower-case event name.
func (k EventKind) String() string {
	switch k {
	case EventLink:
		return "link"
	case EventPhase:
		return "phase"
	case EventTick:
		return "tick"
	case EventOutcome:
		return "outcome"
	case EventConfigError:
		return "config_error"
	case EventContact:
		return "contact"
	default:
		return "snapshot"
	}
}

// Status is what the controller reports to the user.
type Status struct {
	// Event is what produced this status.
	Event EventKind
	// Time is when the status was produced.
	Time time.Time
	// Phase is the escalation phase.
	Phase fall.Phase
	// Link is the sensor link state.
	Link fall.LinkStatus
	// Device is the selected sensor, nil when none is selected.
	Device *fall.RemoteDevice
	// Contact is the emergency contact for future escalations.
	Contact fall.EmergencyContact
	// Escalation is the active escalation, nil when none runs.
	Escalation *fall.EscalationSession
	// Remaining is the countdown remaining time while counting down.
	Remaining time.Duration
	// Message is a short human readable description.
	Message string
	// Outcome is set on EventOutcome.
	Outcome *fall.DeliveryOutcome
	// Err is the link or configuration error behind this status, if any.
	Err error
}
