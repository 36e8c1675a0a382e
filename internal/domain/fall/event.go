package fall

import "time"

// SensorEventKind tags the variant of a SensorEvent.
type SensorEventKind int

const (
	// ImpactDetected is emitted when the sensor reports a fall or impact.
	ImpactDetected SensorEventKind = iota + 1
)

// String returns the wire token of the event kind.
func (k SensorEventKind) String() string {
	switch k {
	case ImpactDetected:
		return "IMPACT_DETECTED"
	default:
		return "UNKNOWN"
	}
}

// SensorEvent is a discrete event extracted from the sensor byte stream.
type SensorEvent struct {
	// Kind is the event variant.
	Kind SensorEventKind
	// Raw is the chunk the event was found in.
	Raw string
	// ReceivedAt is when the chunk was read.
	ReceivedAt time.Time
}
