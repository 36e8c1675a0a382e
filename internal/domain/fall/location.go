package fall

import (
	"fmt"
	"strconv"
	"time"
)

// mapLinkBase is the prefix of the map link sent to the emergency contact.
const mapLinkBase = "https://maps.google.com/?q="

// Location is a best-effort, last-known position.
type Location struct {
	// Latitude in decimal degrees.
	Latitude float64
	// Longitude in decimal degrees.
	Longitude float64
	// Accuracy is the estimated horizontal error in meters, zero if unknown.
	Accuracy float64
	// Provider names the source of the fix ("network", "satellite").
	Provider string
	// Time is when the fix was taken, zero if unknown.
	Time time.Time
}

// Clone returns a copy of the location, or nil for a nil receiver.
func (l *Location) Clone() *Location {
	if l == nil {
		return nil
	}

	cloned := *l

	return &cloned
}

// MapLink builds a map URL pointing at the coordinates.
func (l *Location) MapLink() string {
	return mapLinkBase +
		strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

// Valid reports whether the coordinates are within range.
func (l *Location) Valid() bool {
	return l != nil &&
		l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// String renders the location for logs.
func (l *Location) String() string {
	if l == nil {
		return "<unavailable>"
	}

	return fmt.Sprintf("%.6f,%.6f (%s)", l.Latitude, l.Longitude, l.Provider)
}
