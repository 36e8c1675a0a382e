package fall

import "strings"

// RemoteDevice identifies the wearable sensor the daemon links to.
type RemoteDevice struct {
	// Address is the Bluetooth MAC address used for RFCOMM links.
	Address string
	// Name is the display name shown to the user.
	Name string
	// Channel is the RFCOMM channel; zero means the Serial Port Profile default.
	Channel uint8
	// Path is a serial TTY (e.g. /dev/rfcomm0) used instead of Address when set.
	Path string
}

// Clone returns a copy of the device, or nil for a nil receiver.
func (d *RemoteDevice) Clone() *RemoteDevice {
	if d == nil {
		return nil
	}

	cloned := *d

	return &cloned
}

// DisplayName returns the name, falling back to the address or path.
func (d *RemoteDevice) DisplayName() string {
	switch {
	case d == nil:
		return "<none>"
	case strings.TrimSpace(d.Name) != "":
		return d.Name
	case d.Address != "":
		return d.Address
	case d.Path != "":
		return d.Path
	default:
		return "Unknown Device"
	}
}

// EmergencyContact is the phone number alerted during an escalation.
type EmergencyContact string

// IsSet reports whether a usable number was provided.
func (c EmergencyContact) IsSet() bool {
	return strings.TrimSpace(string(c)) != ""
}

// String returns the trimmed number.
func (c EmergencyContact) String() string {
	return strings.TrimSpace(string(c))
}
