package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// TestValidate checks required fields and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	settings := new(Config)
	require.ErrorIs(t, Validate(settings), errServerSocketRequired)

	// Bad socket.
	settings = Default()
	settings.Control.GRPCAddress = "bad:address"
	require.Error(t, Validate(settings))

	// Unknown transport.
	settings = Default()
	settings.Sensor.Transport = "usb"
	require.ErrorIs(t, Validate(settings), errUnknownTransport)

	// RFCOMM needs a valid address.
	settings = Default()
	settings.Sensor.Transport = TransportRFCOMM
	require.ErrorIs(t, Validate(settings), errSensorAddressRequired)

	settings.Sensor.Address = "not-a-mac"
	require.Error(t, Validate(settings))

	// Serial needs a path.
	settings = Default()
	settings.Sensor.Transport = TransportSerial
	require.ErrorIs(t, Validate(settings), errSensorPathRequired)

	// Tick longer than countdown.
	settings = Default()
	settings.Escalation.Tick = time.Minute
	require.ErrorIs(t, Validate(settings), errTickTooLong)

	// Okay with update folder and publishers; defaults filled.
	settings = &Config{
		Control:            ControlConfig{GRPCAddress: "127.0.0.1:0"},
		ServerUpdateFolder: "https://example.com/x",
		Publish:            PublishConfig{NATSURL: "nats://127.0.0.1:4222", MQTTBroker: "tcp://127.0.0.1:1883"},
	}
	require.NoError(t, Validate(settings))
	require.Equal(t, DefaultTimeout, settings.Timeout)
	require.Equal(t, DefaultCountdown, settings.Escalation.Countdown)
	require.Equal(t, DefaultTick, settings.Escalation.Tick)
	require.Equal(t, DefaultNATSSubject, settings.Publish.NATSSubject)
	require.Equal(t, DefaultMQTTTopic, settings.Publish.MQTTTopic)
	require.Equal(t, DefaultMQTTClientID, settings.Publish.MQTTClientID)

	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := Default()
	settings.ServerUpdateFolder = "https://updates.local/"
	settings.Sensor = SensorConfig{Transport: TransportRFCOMM, Name: "wrist", Address: "00:11:22:33:44:55", Channel: 3}
	settings.Escalation.Contact = "+15551234567"
	settings.Escalation.Countdown = 45 * time.Second
	settings.Grants.Call = false

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings, loaded)

	// File exists with restricted permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}

// TestLoad_PartialFileKeepsDefaults checks omitted values come from Default.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	contents := "escalation:\n  contact: \"+15551234567\"\n  countdown: 20s\ngrants:\n  sms: false\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "+15551234567", cfg.Escalation.Contact)
	require.Equal(t, 20*time.Second, cfg.Escalation.Countdown)
	require.Equal(t, DefaultTick, cfg.Escalation.Tick)
	require.False(t, cfg.Grants.SMS)
	require.True(t, cfg.Grants.Call)
	require.Equal(t, DefaultGRPCAddress, cfg.Control.GRPCAddress)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestConfig_Device checks the configured sensor mapping.
func TestConfig_Device(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Nil(t, cfg.Device())

	cfg.Sensor = SensorConfig{Transport: TransportSerial, Name: "bench", Path: "/dev/ttyACM0"}
	require.Equal(t, &fall.RemoteDevice{Name: "bench", Path: "/dev/ttyACM0"}, cfg.Device())

	cfg.Sensor = SensorConfig{Transport: TransportRFCOMM, Address: "00:11:22:33:44:55", Channel: 2}
	require.Equal(t, &fall.RemoteDevice{Address: "00:11:22:33:44:55", Channel: 2}, cfg.Device())
}
