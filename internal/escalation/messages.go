package escalation

import (
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/link"
)

// command is a message on the control inbox.
type command interface {
	isCommand()
}

// event is a message on the event inbox.
type event interface {
	isEvent()
}

type (
	// selectDevice replaces the sensor and connects to it.
	selectDevice struct {
		device *fall.RemoteDevice
		reply  chan struct{}
	}

	// selectContact replaces the emergency contact.
	selectContact struct {
		contact fall.EmergencyContact
		reply   chan struct{}
	}

	// cancelCountdown stops a running countdown.
	cancelCountdown struct {
		reply chan bool
	}

	// disarm tears the link down.
	disarm struct {
		reply chan struct{}
	}

	// snapshot asks for the current status.
	snapshot struct {
		reply chan Status
	}
)

func (selectDevice) isCommand()    {}
func (selectContact) isCommand()   {}
func (cancelCountdown) isCommand() {}
func (disarm) isCommand()          {}
func (snapshot) isCommand()        {}

type (
	// linkUp reports a successful connect attempt.
	linkUp struct {
		attempt uint64
		session *link.Session
	}

	// linkFailed reports a failed connect attempt.
	linkFailed struct {
		attempt uint64
		err     error
	}

	// linkLost reports the end of a live session.
	linkLost struct {
		sessionID uuid.UUID
		err       error
	}

	// sensorEvent carries a framed event from a session.
	sensorEvent struct {
		sessionID uuid.UUID
		event     fall.SensorEvent
	}

	// tick carries the countdown remaining time.
	tick struct {
		escalationID uuid.UUID
		remaining    time.Duration
	}

	// expired reports the countdown reached zero.
	expired struct {
		escalationID uuid.UUID
	}

	// dispatched reports the alert run finished.
	dispatched struct {
		escalationID uuid.UUID
		location     *fall.Location
		outcome      fall.DeliveryOutcome
	}
)

func (linkUp) isEvent()      {}
func (linkFailed) isEvent()  {}
func (linkLost) isEvent()    {}
func (sensorEvent) isEvent() {}
func (tick) isEvent()        {}
func (expired) isEvent()     {}
func (dispatched) isEvent()  {}
