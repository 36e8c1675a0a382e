package fall

import "strings"

// MessageResult describes how one SMS step ended.
type MessageResult int

const (
	// MessageNotSent means the step failed after all fallbacks.
	MessageNotSent MessageResult = iota
	// MessageRich means the rich (Unicode, multipart) message was sent.
	MessageRich
	// MessagePlain means the plain-text fallback was sent.
	MessagePlain
	// MessagePermissionDenied means SMS was not granted and the step was skipped.
	MessagePermissionDenied
)

// String returns the lower-case result name.
func (r MessageResult) String() string {
	switch r {
	case MessageRich:
		return "rich"
	case MessagePlain:
		return "plain"
	case MessagePermissionDenied:
		return "permission_denied"
	default:
		return "not_sent"
	}
}

// Delivered reports whether a message reached the modem.
func (r MessageResult) Delivered() bool {
	return r == MessageRich || r == MessagePlain
}

// CallResult describes how the call step ended.
type CallResult int

const (
	// CallNotPlaced means the call failed.
	CallNotPlaced CallResult = iota
	// CallPlaced means the call was initiated.
	CallPlaced
	// CallPermissionDenied means calling was not granted.
	CallPermissionDenied
)

// String returns the lower-case result name.
func (r CallResult) String() string {
	switch r {
	case CallPlaced:
		return "placed"
	case CallPermissionDenied:
		return "permission_denied"
	default:
		return "not_placed"
	}
}

// DeliveryOutcome summarizes one alert run for status reporting only.
type DeliveryOutcome struct {
	// Notice is the result of the emergency notice.
	Notice MessageResult
	// LocationAttached is true when a map link was composed.
	LocationAttached bool
	// LocationMessage is the result of the location or "unavailable" message.
	LocationMessage MessageResult
	// LastResort is true when the minimal message had to be attempted.
	LastResort bool
	// LastResortSent is true when the minimal message went out.
	LastResortSent bool
	// Call is the result of the voice call.
	Call CallResult
	// Err aggregates every failure observed during the run.
	Err error
}

// String renders a compact, log friendly summary.
func (o DeliveryOutcome) String() string {
	var b strings.Builder

	b.WriteString("notice=")
	b.WriteString(o.Notice.String())
	b.WriteString(" location=")

	if o.LocationAttached {
		b.WriteString("attached")
	} else {
		b.WriteString("unavailable")
	}

	b.WriteString(" location_message=")
	b.WriteString(o.LocationMessage.String())

	if o.LastResort {
		b.WriteString(" last_resort=")

		if o.LastResortSent {
			b.WriteString("sent")
		} else {
			b.WriteString("failed")
		}
	}

	b.WriteString(" call=")
	b.WriteString(o.Call.String())

	return b.String()
}
