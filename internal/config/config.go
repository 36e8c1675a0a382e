package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// Config holds the settings of the daemon and the control client.
type Config struct {
	// Sensor selects the wearable sensor armed at startup.
	Sensor SensorConfig `yaml:"sensor"`
	// Modem is the GSM modem used for messages and calls.
	Modem ModemConfig `yaml:"modem"`
	// Location configures the best-effort location providers.
	Location LocationConfig `yaml:"location"`
	// Escalation configures the countdown and the emergency contact.
	Escalation EscalationConfig `yaml:"escalation"`
	// Grants are the capabilities the daemon may use.
	Grants Grants `yaml:"grants"`
	// Control configures the gRPC and HTTP control surfaces.
	Control ControlConfig `yaml:"control"`
	// Publish configures the optional status publishers.
	Publish PublishConfig `yaml:"publish"`
	// ServerUpdateFolder is the URL where update artifacts are hosted.
	ServerUpdateFolder string `yaml:"update_folder"`
	// SelectionFile persists the last contact and device selection; empty disables it.
	SelectionFile string `yaml:"selection_file"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// DryRun logs messages and calls instead of sending them.
	DryRun bool `yaml:"dry_run"`
}

// SensorConfig describes how to reach the sensor.
type SensorConfig struct {
	// Transport is "rfcomm" or "serial"; empty means the sensor is selected at runtime.
	Transport string `yaml:"transport"`
	// Name is the display name of the sensor.
	Name string `yaml:"name"`
	// Address is the Bluetooth address for rfcomm.
	Address string `yaml:"address"`
	// Channel is the RFCOMM channel; zero means the serial port profile default.
	Channel uint8 `yaml:"channel"`
	// Path is the TTY for serial.
	Path string `yaml:"path"`
	// BaudRate of the serial TTY.
	BaudRate int `yaml:"baud_rate"`
	// ReadTimeout bounds a single read so a disconnect is noticed promptly.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// ModemConfig describes the GSM modem.
type ModemConfig struct {
	// Port is the modem TTY.
	Port string `yaml:"port"`
	// BaudRate of the modem TTY.
	BaudRate int `yaml:"baud_rate"`
	// CommandTimeout bounds a plain AT command.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// SubmitTimeout bounds a message submit or a dial.
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	// SubmitInterval spaces consecutive message submits.
	SubmitInterval time.Duration `yaml:"submit_interval"`
}

// LocationConfig configures the location providers.
type LocationConfig struct {
	// CacheFile is the last-known fix written by the network locator.
	CacheFile string `yaml:"cache_file"`
	// GPSDAddress is the gpsd endpoint; empty disables the satellite provider.
	GPSDAddress string `yaml:"gpsd_address"`
	// Timeout bounds each provider lookup.
	Timeout time.Duration `yaml:"timeout"`
}

// EscalationConfig configures the countdown.
type EscalationConfig struct {
	// Countdown is the time the user has to cancel.
	Countdown time.Duration `yaml:"countdown"`
	// Tick is the countdown display granularity.
	Tick time.Duration `yaml:"tick"`
	// Contact is the emergency contact selected at startup.
	Contact string `yaml:"contact"`
}

// Grants are the capabilities the daemon is allowed to use.
type Grants struct {
	// SMS allows sending messages.
	SMS bool `yaml:"sms"`
	// Call allows placing calls.
	Call bool `yaml:"call"`
	// Location allows location lookups.
	Location bool `yaml:"location"`
}

// ControlConfig configures the control surfaces.
type ControlConfig struct {
	// GRPCAddress is where the daemon serves and the client dials the control API.
	GRPCAddress string `yaml:"grpc_addr"`
	// HTTPAddress serves health and status; empty disables it.
	HTTPAddress string `yaml:"http_addr"`
}

// PublishConfig configures the status publishers. Empty endpoints disable them.
type PublishConfig struct {
	// NATSURL is the NATS server URL.
	NATSURL string `yaml:"nats_url"`
	// NATSSubject is the subject status is published on.
	NATSSubject string `yaml:"nats_subject"`
	// MQTTBroker is the MQTT broker URL.
	MQTTBroker string `yaml:"mqtt_broker"`
	// MQTTTopic is the topic status is published on.
	MQTTTopic string `yaml:"mqtt_topic"`
	// MQTTClientID identifies the daemon to the broker.
	MQTTClientID string `yaml:"mqtt_client_id"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "fall-guard-settings.yaml"

	// DefaultSelectionFilename is the default filename for the persisted selection.
	DefaultSelectionFilename = "fall-guard-selection.json"

	// DefaultGRPCAddress is the default control API address.
	DefaultGRPCAddress = "127.0.0.1:50551"

	// DefaultModemPort is the usual AT command port of USB modems.
	DefaultModemPort = "/dev/ttyUSB2"

	// DefaultGPSDAddress is where gpsd listens by default.
	DefaultGPSDAddress = "127.0.0.1:2947"

	// DefaultNATSSubject and DefaultMQTTTopic name the status channel.
	DefaultNATSSubject = "fallguard.status"
	DefaultMQTTTopic   = "fallguard/status"

	// DefaultMQTTClientID identifies the daemon to the broker.
	DefaultMQTTClientID = "fall-guard"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultCountdown is the escalation countdown.
	DefaultCountdown = 30 * time.Second

	// DefaultTick is the countdown display granularity.
	DefaultTick = time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// TransportRFCOMM and TransportSerial are the sensor transports.
	TransportRFCOMM = "rfcomm"
	TransportSerial = "serial"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when the control address is missing.
	errServerSocketRequired = errors.New("control gRPC address must be provided")
	// errUnknownTransport is returned for sensor transports other than rfcomm and serial.
	errUnknownTransport = errors.New("unknown sensor transport")
	// errSensorAddressRequired is returned when rfcomm has no address.
	errSensorAddressRequired = errors.New("sensor address must be provided for rfcomm")
	// errSensorPathRequired is returned when serial has no path.
	errSensorPathRequired = errors.New("sensor path must be provided for serial")
	// errTickTooLong is returned when the tick exceeds the countdown.
	errTickTooLong = errors.New("escalation tick must not exceed the countdown")
)

// Default returns settings with every default filled in and all grants given.
func Default() *Config {
	return &Config{
		Modem: ModemConfig{
			Port: DefaultModemPort,
		},
		Location: LocationConfig{
			GPSDAddress: DefaultGPSDAddress,
		},
		Escalation: EscalationConfig{
			Countdown: DefaultCountdown,
			Tick:      DefaultTick,
		},
		Grants: Grants{
			SMS:      true,
			Call:     true,
			Location: true,
		},
		Control: ControlConfig{
			GRPCAddress: DefaultGRPCAddress,
		},
		Timeout: DefaultTimeout,
	}
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file holds the emergency contact.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills defaults for unset values.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.Control.GRPCAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.Control.GRPCAddress); err != nil {
		return fmt.Errorf("invalid control socket: %w", err)
	}

	if settings.Control.HTTPAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.Control.HTTPAddress); err != nil {
			return fmt.Errorf("invalid http socket: %w", err)
		}
	}

	if err := validateSensor(&settings.Sensor); err != nil {
		return err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.Escalation.Countdown <= 0 {
		settings.Escalation.Countdown = DefaultCountdown
	}

	if settings.Escalation.Tick <= 0 {
		settings.Escalation.Tick = DefaultTick
	}

	if settings.Escalation.Tick > settings.Escalation.Countdown {
		return errTickTooLong
	}

	if settings.Modem.Port == "" {
		settings.Modem.Port = DefaultModemPort
	}

	if err := validatePublish(&settings.Publish); err != nil {
		return err
	}

	if settings.ServerUpdateFolder == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(settings.ServerUpdateFolder); err != nil {
		return fmt.Errorf("invalid update folder URI: %w", err)
	}

	return nil
}

// Device returns the configured sensor, or nil when none is configured.
func (c *Config) Device() *fall.RemoteDevice {
	switch c.Sensor.Transport {
	case TransportRFCOMM:
		return &fall.RemoteDevice{
			Address: c.Sensor.Address,
			Name:    c.Sensor.Name,
			Channel: c.Sensor.Channel,
		}
	case TransportSerial:
		return &fall.RemoteDevice{
			Name: c.Sensor.Name,
			Path: c.Sensor.Path,
		}
	default:
		return nil
	}
}

// validateSensor checks the sensor section.
func validateSensor(sensor *SensorConfig) error {
	switch sensor.Transport {
	case "":
		return nil
	case TransportRFCOMM:
		if sensor.Address == "" {
			return errSensorAddressRequired
		}

		if _, err := net.ParseMAC(sensor.Address); err != nil {
			return fmt.Errorf("invalid sensor address: %w", err)
		}
	case TransportSerial:
		if sensor.Path == "" {
			return errSensorPathRequired
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownTransport, sensor.Transport)
	}

	return nil
}

// validatePublish checks publisher endpoints and fills their defaults.
func validatePublish(publish *PublishConfig) error {
	if publish.NATSURL != "" {
		if _, err := url.Parse(publish.NATSURL); err != nil {
			return fmt.Errorf("invalid NATS URL: %w", err)
		}

		if publish.NATSSubject == "" {
			publish.NATSSubject = DefaultNATSSubject
		}
	}

	if publish.MQTTBroker != "" {
		if _, err := url.ParseRequestURI(publish.MQTTBroker); err != nil {
			return fmt.Errorf("invalid MQTT broker URI: %w", err)
		}

		if publish.MQTTTopic == "" {
			publish.MQTTTopic = DefaultMQTTTopic
		}

		if publish.MQTTClientID == "" {
			publish.MQTTClientID = DefaultMQTTClientID
		}
	}

	return nil
}
