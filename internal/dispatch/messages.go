package dispatch

import "github.com/oshokin/fall-guard/internal/domain/fall"

const (
	richNotice  = "🚨 SOS ALERT! I need help immediately! A fall has been detected. Emergency services may be required."
	plainNotice = "SOS ALERT! I need help immediately! A fall has been detected at my location. " +
		"Emergency services may be required."

	richLocationPrefix  = "🚨 My exact location : "
	plainLocationPrefix = "SOS ALERT! I need help immediately! My exact location (fall detected): "

	richUnavailable  = "🚨 Fall detected! Location unavailable. Please call me immediately!"
	plainUnavailable = "Fall detected! Location unavailable. Please call me immediately!"

	lastResort = "EMERGENCY! Fall detected! Please call me immediately!"
)

// locationMessages returns the rich and plain second message for location.
func locationMessages(location *fall.Location) (string, string, bool) {
	if !location.Valid() {
		return richUnavailable, plainUnavailable, false
	}

	link := location.MapLink()

	return richLocationPrefix + link, plainLocationPrefix + link, true
}
