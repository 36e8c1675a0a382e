package logger

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errUnknownLevel is returned for a --log-level value ParseLogLevel rejects.
var errUnknownLevel = errors.New("unknown log level")

// AttachCobraLevelFlag adds a persistent --log-level flag that sets the global
// level before any command runs.
func AttachCobraLevelFlag(root *cobra.Command) {
	var level string

	root.PersistentFlags().StringVar(&level, "log-level", "info", "log level: debug, info, warn, error")

	previous := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		parsed, ok := ParseLogLevel(level)
		if !ok {
			return fmt.Errorf("%w: %q", errUnknownLevel, level)
		}

		SetLevel(parsed)

		if previous != nil {
			return previous(cmd, args)
		}

		return nil
	}
}
