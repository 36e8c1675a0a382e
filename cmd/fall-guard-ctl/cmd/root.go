package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/service/client"
	"github.com/oshokin/fall-guard/internal/version"
)

//nolint:gochecknoglobals // Cobra commands and their flag targets live at package level.
var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides the control address from the configuration.
	serverAddress string
	// deviceName is the display name passed with device.
	deviceName string
	// deviceChannel is the RFCOMM channel passed with device.
	deviceChannel uint8

	// rootCmd represents the base command for controlling the daemon.
	rootCmd = &cobra.Command{
		Use:   "fall-guard-ctl",
		Short: "Control a running fall-guard daemon.",
		Long: `Selects the emergency contact and the sensor, cancels a running countdown
and shows the daemon status over the control API.`,
		SilenceUsage: true,
	}

	contactCmd = &cobra.Command{
		Use:   "contact [number]",
		Short: "Set the emergency contact; without a number the contact is cleared.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var number string
			if len(args) > 0 {
				number = args[0]
			}

			return run(func(ctx context.Context, opts *client.Options) error {
				return client.SelectContact(ctx, opts, number)
			})
		},
	}

	deviceCmd = &cobra.Command{
		Use:   "device <bluetooth-address|tty-path>",
		Short: "Select the fall sensor and connect to it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(func(ctx context.Context, opts *client.Options) error {
				return client.SelectDevice(ctx, opts, &client.DeviceOptions{
					Target:  args[0],
					Name:    deviceName,
					Channel: deviceChannel,
				})
			})
		},
	}

	cancelCmd = &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a running countdown before the emergency contact is alerted.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(client.Cancel)
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the daemon status.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(client.Status)
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Follow status changes until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(client.Watch)
		},
	}
)

// run executes fn with a signal-aware context and the shared options.
func run(fn func(context.Context, *client.Options) error) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return fn(ctx, &client.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
	})
}

// Execute runs the fall-guard-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	logger.AttachCobraLevelFlag(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "a", "", "daemon control address (host:port)")

	deviceCmd.Flags().StringVarP(&deviceName, "name", "n", "", "display name of the sensor")
	deviceCmd.Flags().Uint8Var(&deviceChannel, "channel", 0, "RFCOMM channel (default 1)")

	rootCmd.AddCommand(contactCmd, deviceCmd, cancelCmd, statusCmd, watchCmd)
}
