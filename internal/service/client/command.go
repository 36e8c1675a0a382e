package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/service/common"
)

// Options configures how fall-guard-ctl reaches the daemon.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
	// Out receives rendered output; nil means stdout.
	Out io.Writer
}

// DeviceOptions describes the sensor passed to SelectDevice.
type DeviceOptions struct {
	// Target is a Bluetooth address or a TTY path.
	Target string
	// Name is the display name.
	Name string
	// Channel is the RFCOMM channel; zero uses the default.
	Channel uint8
}

// errTargetRequired is returned when no device target is given.
var errTargetRequired = errors.New("device address or path must be provided")

// SelectContact sets the emergency contact; an empty number clears it.
func SelectContact(ctx context.Context, opts *Options, number string) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		view, err := c.SelectContact(ctx, number)
		if err != nil {
			return err
		}

		return write(opts, RenderStatus(view))
	})
}

// SelectDevice selects the sensor and starts connecting to it.
func SelectDevice(ctx context.Context, opts *Options, device *DeviceOptions) error {
	remote, err := ParseDevice(device)
	if err != nil {
		return err
	}

	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		view, err := c.SelectDevice(ctx, remote)
		if err != nil {
			return err
		}

		return write(opts, RenderStatus(view))
	})
}

// Cancel cancels a running countdown.
func Cancel(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		cancelled, err := c.CancelEscalation(ctx)
		if err != nil {
			return err
		}

		if cancelled {
			return write(opts, okStyle.Render("Countdown cancelled")+"\n")
		}

		return write(opts, mutedStyle.Render("No countdown to cancel")+"\n")
	})
}

// Status prints the current status.
func Status(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		view, err := c.GetStatus(ctx)
		if err != nil {
			return err
		}

		return write(opts, RenderStatus(view))
	})
}

// Watch prints every status change until ctx is done.
func Watch(ctx context.Context, opts *Options) error {
	return withClient(ctx, opts, func(ctx context.Context, c *common.Client) error {
		var writeErr error

		err := c.WatchStatus(ctx, func(v escalation.View) {
			if writeErr == nil {
				writeErr = write(opts, RenderEvent(v)+"\n")
			}
		})
		if err != nil {
			return err
		}

		return writeErr
	})
}

// ParseDevice turns command line input into a device: an absolute path is a
// serial TTY, anything else is a Bluetooth address.
func ParseDevice(opts *DeviceOptions) (*fall.RemoteDevice, error) {
	target := strings.TrimSpace(opts.Target)
	if target == "" {
		return nil, errTargetRequired
	}

	device := &fall.RemoteDevice{
		Name: strings.TrimSpace(opts.Name),
	}

	if strings.HasPrefix(target, "/") {
		device.Path = target
	} else {
		device.Address = strings.ToUpper(target)
		device.Channel = opts.Channel
	}

	return device, nil
}

// withClient loads settings, dials the daemon and runs fn.
func withClient(ctx context.Context, opts *Options, fn func(context.Context, *common.Client) error) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "fall-guard-ctl")

	cfg, err := loadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.Control.GRPCAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	dialOptions := []common.Option{common.WithCallTimeout(cfg.Timeout)}

	// Identify current user and hostname for the daemon's audit log.
	if actor, err := common.DetectActor(); err == nil {
		dialOptions = append(dialOptions, common.WithActor(actor))
	} else {
		logger.DebugKV(ctx, "Actor detection failed", "error", err)
	}

	client, err := common.Dial(ctx, serverAddress, dialOptions...)
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	logger.DebugKV(ctx, "Connected to daemon", "server_address", serverAddress)

	return fn(ctx, client)
}

// loadSettings reads settings, falling back to defaults when the file is absent.
func loadSettings(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}

	return nil, err
}

// write prints s to the configured output.
func write(opts *Options, s string) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if _, err := io.WriteString(out, s); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}
