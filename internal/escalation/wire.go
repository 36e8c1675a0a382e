package escalation

import (
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// Keys of the wire representation of a Status.
const (
	keyEvent        = "event"
	keyTime         = "time"
	keyPhase        = "phase"
	keyLink         = "link"
	keyDevice       = "device"
	keyContact      = "contact"
	keyEscalationID = "escalation_id"
	keyRemaining    = "remaining_seconds"
	keyMessage      = "message"
	keyOutcome      = "outcome"
	keyLocation     = "location"
	keyError        = "error"
)

// View is the decoded wire form of a Status, as seen by remote clients.
type View struct {
	Event        string
	Time         time.Time
	Phase        string
	Link         string
	Device       string
	Contact      string
	EscalationID string
	Remaining    time.Duration
	Message      string
	Outcome      string
	Location     string
	Error        string
}

// Proto encodes the status as a protobuf Struct for the control API and publishers.
func (s Status) Proto() *structpb.Struct {
	fields := map[string]*structpb.Value{
		keyEvent:   structpb.NewStringValue(s.Event.String()),
		keyTime:    structpb.NewStringValue(s.Time.UTC().Format(time.RFC3339Nano)),
		keyPhase:   structpb.NewStringValue(s.Phase.String()),
		keyLink:    structpb.NewStringValue(s.Link.String()),
		keyContact: structpb.NewStringValue(s.Contact.String()),
	}

	if s.Device != nil {
		fields[keyDevice] = structpb.NewStringValue(s.Device.DisplayName())
	}

	if s.Escalation != nil {
		fields[keyEscalationID] = structpb.NewStringValue(s.Escalation.ID.String())

		if s.Escalation.Location != nil {
			fields[keyLocation] = structpb.NewStringValue(s.Escalation.Location.MapLink())
		}
	}

	if s.Phase == fall.PhaseCountingDown {
		fields[keyRemaining] = structpb.NewNumberValue(s.Remaining.Seconds())
	}

	if s.Message != "" {
		fields[keyMessage] = structpb.NewStringValue(s.Message)
	}

	if s.Outcome != nil {
		fields[keyOutcome] = structpb.NewStringValue(s.Outcome.String())
	}

	if s.Err != nil {
		fields[keyError] = structpb.NewStringValue(s.Err.Error())
	}

	return &structpb.Struct{Fields: fields}
}

// MarshalJSON renders the wire form as JSON.
func (s Status) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(s.Proto())
}

// ViewOf decodes the wire form of a Status.
func ViewOf(msg *structpb.Struct) View {
	fields := msg.GetFields()
	text := func(key string) string {
		return fields[key].GetStringValue()
	}

	view := View{
		Event:        text(keyEvent),
		Phase:        text(keyPhase),
		Link:         text(keyLink),
		Device:       text(keyDevice),
		Contact:      text(keyContact),
		EscalationID: text(keyEscalationID),
		Remaining:    time.Duration(fields[keyRemaining].GetNumberValue() * float64(time.Second)),
		Message:      text(keyMessage),
		Outcome:      text(keyOutcome),
		Location:     text(keyLocation),
		Error:        text(keyError),
	}

	if t, err := time.Parse(time.RFC3339Nano, text(keyTime)); err == nil {
		view.Time = t
	}

	return view
}
