package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/fall-guard/internal/api/grpc/control"
	"github.com/oshokin/fall-guard/internal/api/http/status"
	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/dispatch"
	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/link"
	"github.com/oshokin/fall-guard/internal/location"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/modem"
	"github.com/oshokin/fall-guard/internal/publish"
	repo "github.com/oshokin/fall-guard/internal/repository/selection"
)

// shutdownTimeout bounds graceful shutdown; status streams never end on their own.
const shutdownTimeout = 5 * time.Second

// Options controls the fall-guard daemon process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// SelectionFile overrides the persisted selection path.
	SelectionFile string
	// DryRun logs messages and calls instead of sending them.
	DryRun bool
}

// Run starts the daemon and blocks until context is canceled or a server fails.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "fall-guard")

	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	applyOverrides(settings, opts)

	messenger, caller, closeModem := buildAlerting(settings)
	defer closeModem()

	ctrl := escalation.NewController(
		buildTransport(settings),
		buildResolver(settings),
		dispatch.New(messenger, caller),
		escalation.WithCountdown(settings.Escalation.Countdown),
		escalation.WithTick(settings.Escalation.Tick),
	)

	var selections repo.Repository
	if settings.SelectionFile != "" {
		selections = repo.NewFileRepository(settings.SelectionFile)
	}

	svc := newService(ctrl, selections)

	publishers, err := dialPublishers(ctx, settings)
	if err != nil {
		return err
	}

	lis, err := listenControl(ctx, settings.Control.GRPCAddress, publishers)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Fall guard starting",
		"listen_address", settings.Control.GRPCAddress,
		"http_address", settings.Control.HTTPAddress,
		"selection_file", settings.SelectionFile,
		"dry_run", settings.DryRun)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ctrl.Run(groupCtx)
	})

	group.Go(func() error {
		if err := svc.restore(groupCtx, fall.EmergencyContact(settings.Escalation.Contact), settings.Device()); err != nil {
			// A bad persisted selection must not keep the daemon down;
			// the user can select again over the control API.
			logger.ErrorKV(groupCtx, "Failed to restore selection", "error", err)
		}

		return nil
	})

	group.Go(func() error {
		return serveGRPC(groupCtx, lis, svc)
	})

	if settings.Control.HTTPAddress != "" {
		group.Go(func() error {
			return status.NewServer(svc, settings.Timeout).Serve(groupCtx, settings.Control.HTTPAddress)
		})
	}

	group.Go(func() error {
		return publish.Pump(groupCtx, svc, publishers...)
	})

	err = group.Wait()

	logger.Info(ctx, "Fall guard stopped")

	return err
}

// applyOverrides applies command line overrides to settings.
func applyOverrides(settings *config.Config, opts *Options) {
	if opts.ListenAddress != "" {
		settings.Control.GRPCAddress = opts.ListenAddress
	}

	if opts.SelectionFile != "" {
		settings.SelectionFile = opts.SelectionFile
	}

	settings.DryRun = settings.DryRun || opts.DryRun
}

// buildTransport creates the sensor link for both transports.
func buildTransport(settings *config.Config) *link.Transport {
	dialer := &link.DeviceDialer{
		RFCOMM: &link.RFCOMMDialer{Channel: settings.Sensor.Channel},
		Serial: &link.SerialDialer{BaudRate: settings.Sensor.BaudRate},
	}

	return link.NewTransport(dialer, link.WithReadTimeout(settings.Sensor.ReadTimeout))
}

// buildResolver creates the location resolver: network first, then satellite.
func buildResolver(settings *config.Config) *location.Resolver {
	var providers []location.Provider

	if settings.Location.CacheFile != "" {
		providers = append(providers, location.NewCacheFileProvider(settings.Location.CacheFile))
	}

	if settings.Location.GPSDAddress != "" {
		providers = append(providers, location.NewGPSDProvider(settings.Location.GPSDAddress))
	}

	granted := settings.Grants.Location

	return location.NewResolver(providers,
		location.WithAttemptTimeout(settings.Location.Timeout),
		location.WithGrant(func() bool { return granted }),
	)
}

// buildAlerting returns the message and call backends and a cleanup func.
func buildAlerting(settings *config.Config) (dispatch.Messenger, dispatch.Caller, func()) {
	if settings.DryRun {
		return dispatch.DryRun{}, dispatch.DryRun{}, func() {}
	}

	m := modem.New(settings.Modem.Port,
		modem.WithBaudRate(settings.Modem.BaudRate),
		modem.WithCommandTimeout(settings.Modem.CommandTimeout),
		modem.WithSubmitTimeout(settings.Modem.SubmitTimeout),
		modem.WithSubmitInterval(settings.Modem.SubmitInterval),
		modem.WithGrants(settings.Grants.SMS, settings.Grants.Call),
	)

	return m, m, func() { _ = m.Close() }
}

// dialPublishers connects the configured status publishers.
func dialPublishers(ctx context.Context, settings *config.Config) ([]publish.Publisher, error) {
	var (
		cfg        = settings.Publish
		publishers []publish.Publisher
	)

	if cfg.NATSURL != "" {
		p, err := publish.DialNATS(ctx, cfg.NATSURL, cfg.NATSSubject, settings.Timeout)
		if err != nil {
			return nil, fmt.Errorf("status publisher: %w", err)
		}

		publishers = append(publishers, p)
	}

	if cfg.MQTTBroker != "" {
		p, err := publish.DialMQTT(ctx, cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, settings.Timeout)
		if err != nil {
			_ = publish.CloseAll(publishers)

			return nil, fmt.Errorf("status publisher: %w", err)
		}

		publishers = append(publishers, p)
	}

	return publishers, nil
}

// listenControl opens the control API listener. The already dialed
// publishers are closed when it fails, since Pump will never own them.
func listenControl(ctx context.Context, address string, publishers []publish.Publisher) (net.Listener, error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		if closeErr := publish.CloseAll(publishers); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close status publishers", "error", closeErr)
		}

		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	return lis, nil
}

// serveGRPC serves the control API on lis until ctx is done.
func serveGRPC(ctx context.Context, lis net.Listener, svc control.Service) error {
	grpcServer := grpc.NewServer()
	control.RegisterControlServer(grpcServer, control.NewServer(svc))

	logger.InfoKV(ctx, "Control API listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		stopGracefully(grpcServer, shutdownTimeout)
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// stopGracefully drains in-flight RPCs for up to timeout, then forces the stop.
func stopGracefully(server *grpc.Server, timeout time.Duration) {
	drained := make(chan struct{})

	go func() {
		server.GracefulStop()
		close(drained)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		server.Stop()
		<-drained
	}
}
