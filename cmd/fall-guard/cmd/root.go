package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/service/daemon"
	"github.com/oshokin/fall-guard/internal/service/packager"
	"github.com/oshokin/fall-guard/internal/service/updater"
	"github.com/oshokin/fall-guard/internal/version"
)

//nolint:gochecknoglobals // Cobra commands and their flag targets live at package level.
var (
	// configPath to the configuration YAML file.
	configPath string
	// selectionFile path where the contact and device selection is persisted.
	selectionFile string
	// dryRun logs messages and calls instead of sending them.
	dryRun bool
	// targetDir holds the installed binaries for update.
	targetDir string
	// forceUpdate applies a release regardless of its version.
	forceUpdate bool
	// packageDir holds the built binaries for package.
	packageDir string
	// updateFolder is where packaged artifacts will be uploaded.
	updateFolder string

	// rootCmd represents the base command for running the daemon.
	rootCmd = &cobra.Command{
		Use:   "fall-guard [listen-address]",
		Short: "Run the fall detection daemon.",
		Long: `Links the wearable fall sensor and escalates detected impacts.

On an impact the daemon runs a cancellable countdown, then texts the emergency
contact, texts the last known location and places a voice call through the GSM
modem. The countdown can be cancelled with fall-guard-ctl cancel.
Listen address can be provided as argument to override the control address
from the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return daemon.Run(ctx, &daemon.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				SelectionFile: selectionFile,
				DryRun:        dryRun,
			})
		},
	}

	// updateCmd downloads and applies a newer release.
	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Download and apply updates from the update folder.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return updater.Run(ctx, &updater.Options{
				ConfigPath: configPath,
				TargetDir:  targetDir,
				Force:      forceUpdate,
			})
		},
	}

	// packageCmd writes the release manifest for built binaries.
	packageCmd = &cobra.Command{
		Use:    "package",
		Short:  "Write the release manifest for the binaries in a directory.",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return packager.Run(ctx, &packager.Options{
				Dir:          packageDir,
				UpdateFolder: updateFolder,
			})
		},
	}
)

// Execute runs the fall-guard CLI and exits with non-zero status on error.
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
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&selectionFile, "selection-file", "s", "", "path to persist the contact and device selection")

	// Hidden dry-run flag to test the escalation without texting anybody.
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "log messages and calls instead of sending them")

	if err := rootCmd.Flags().MarkHidden("dry-run"); err != nil {
		panic(err)
	}

	updateCmd.Flags().StringVar(&targetDir, "target-dir", "", "directory of the installed binaries")
	updateCmd.Flags().BoolVar(&forceUpdate, "force", false, "apply the release even if it is not newer")

	packageCmd.Flags().StringVar(&packageDir, "dir", ".", "directory of the built binaries")
	packageCmd.Flags().StringVar(&updateFolder, "update-folder", "", "URL the artifacts will be uploaded to")

	rootCmd.AddCommand(updateCmd, packageCmd)
}
