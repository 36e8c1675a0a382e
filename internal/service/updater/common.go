package updater

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/version"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

var errHashUnavailable = errors.New("hash function unavailable")

const (
	// VersionFilename stores the release manifest published in the update folder.
	VersionFilename = "fall-guard-version.yaml"

	// MarkerFilename marks that the updater is running right now to avoid parallel execution.
	MarkerFilename = "fall-guard-update-marker.bin"

	// DefaultFileMode is used for applied executables.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to calculate update file hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	// DaemonExecutable is the daemon binary name.
	DaemonExecutable = "fall-guard"
	// ControlExecutable is the control client binary name.
	ControlExecutable = "fall-guard-ctl"

	// markerLifetime is the period after which a stale update marker is ignored.
	markerLifetime = 30 * time.Second

	// defaultMapCapacity is the default initial capacity for maps.
	defaultMapCapacity = 4
)

// FilesWithChecksum returns the artifacts a release carries.
func FilesWithChecksum() []string {
	return []string{
		DaemonExecutable,
		ControlExecutable,
	}
}

// Description contains metadata about a published release.
type Description struct {
	// VersionNumber is the semantic version of this release.
	VersionNumber string `yaml:"version"`
	// Files maps filenames to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
	// Settings is the name of the settings file the release expects.
	Settings string `yaml:"settings,omitempty"`
}

// NewDescription produces a Description for the running build.
func NewDescription() *Description {
	return &Description{
		VersionNumber: version.Short(),
		Files:         make(map[string]string, defaultMapCapacity),
		Settings:      config.DefaultConfigFilename,
	}
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// IsUpdaterRunningNow checks presence of a marker file in dir and removes it
// if it looks stale.
func IsUpdaterRunningNow(ctx context.Context, dir string) bool {
	marker := filepath.Join(dir, MarkerFilename)

	fileInfo, err := os.Stat(marker)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The update marker is too old, removing it")

		return os.Remove(marker) != nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		logger.Infof(ctx, "Unable to read update marker: %v", err)
	}

	return false
}

// DaemonRunning reports whether a daemon process other than this one is alive.
func DaemonRunning() (bool, error) {
	processList, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() != thisProcessID && process.Executable() == DaemonExecutable {
			return true, nil
		}
	}

	return false, nil
}
