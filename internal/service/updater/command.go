package updater

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/version"
)

var (
	errUpdaterAlreadyRunning = errors.New("the updater is already running")
	errNoUpdateFolder        = errors.New("update folder is not configured")
	errEmptyDescription      = errors.New("update description is empty")
	errNoChecksum            = errors.New("checksum missing for file")
	errBadHTTPStatus         = errors.New("unexpected http status")
	errChecksumMismatch      = errors.New("downloaded file checksum mismatch")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// TargetDir holds the installed binaries; empty means the directory of
	// the running executable.
	TargetDir string
	// Force applies the release even when its version is not newer.
	Force bool
}

// runner holds the mutable state and helpers for a single update execution.
// It is intentionally unexported; call Run(ctx, Options) from callers.
type runner struct {
	description        *Description      // Remote manifest describing the release.
	cfg                *config.Config    // Settings loaded from YAML.
	httpClient         *http.Client      // Client used for the update folder.
	targetDirectory    string            // Where the installed binaries live.
	force              bool              // Apply regardless of version.
	changedFiles       []string          // Files whose checksum differs from the manifest.
	temporaryDirectory string            // Where new files are downloaded before apply.
	downloadedFiles    map[string]string // Logical name -> local temp path.
}

// Run executes the updater lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "fall-guard-updater")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	targetDirectory := opts.TargetDir
	if targetDirectory == "" {
		executable, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}

		targetDirectory = filepath.Dir(executable)
	}

	up := newRunner(settings, targetDirectory, opts.Force)

	return up.run(ctx)
}

// newRunner prepares a run against targetDirectory.
func newRunner(settings *config.Config, targetDirectory string, force bool) *runner {
	return &runner{
		cfg:             settings,
		httpClient:      &http.Client{Timeout: settings.Timeout},
		targetDirectory: targetDirectory,
		force:           force,
		downloadedFiles: make(map[string]string, defaultMapCapacity),
	}
}

// run executes the workflow:
// 1) Write the running marker.
// 2) Fetch the remote manifest.
// 3) Compare versions and checksums.
// 4) Download, verify and apply changed files.
func (u *runner) run(ctx context.Context) error {
	if u.cfg.ServerUpdateFolder == "" {
		return errNoUpdateFolder
	}

	if IsUpdaterRunningNow(ctx, u.targetDirectory) {
		return errUpdaterAlreadyRunning
	}

	marker := filepath.Join(u.targetDirectory, MarkerFilename)
	if err := os.WriteFile(marker, nil, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write update marker: %w", err)
	}

	defer u.cleanup(ctx)

	logger.Info(ctx, "Downloading the update description from the server")

	if err := u.fillUpdateDescription(ctx); err != nil {
		return fmt.Errorf("download update description: %w", err)
	}

	needed, err := u.determineUpdateNeeded(ctx)
	if err != nil {
		return err
	}

	if !needed {
		logger.InfoKV(ctx, "No update required", "version", version.Short())

		return nil
	}

	logger.Info(ctx, "Downloading update files to a temporary folder")

	if err = u.downloadFiles(ctx); err != nil {
		return fmt.Errorf("download update files: %w", err)
	}

	logger.Info(ctx, "Applying update files")

	if err = u.updateFiles(ctx); err != nil {
		return fmt.Errorf("apply update files: %w", err)
	}

	u.logRestartHint(ctx)

	return nil
}

// determineUpdateNeeded decides whether to apply the release.
// A newer version always updates; an equal or older one only repairs files
// whose checksum differs, and a forced run reapplies everything.
func (u *runner) determineUpdateNeeded(ctx context.Context) (bool, error) {
	if u.description == nil {
		return false, errEmptyDescription
	}

	newer, err := version.IsNewer(u.description.VersionNumber)
	if err != nil {
		return false, err
	}

	if err = u.validateChecksum(); err != nil {
		return false, fmt.Errorf("validate checksum: %w", err)
	}

	switch {
	case u.force:
		logger.InfoKV(ctx, "Forced update", "remote", u.description.VersionNumber)
		u.changedFiles = FilesWithChecksum()

		return true, nil
	case newer:
		logger.InfoKV(ctx, "Version update required",
			"local", version.Short(), "remote", u.description.VersionNumber)
		u.changedFiles = FilesWithChecksum()

		return true, nil
	case len(u.changedFiles) > 0 && u.description.VersionNumber == version.Short():
		logger.InfoKV(ctx, "File update required", "reason", "checksum_mismatch", "files", u.changedFiles)

		return true, nil
	default:
		return false, nil
	}
}

// fillUpdateDescription downloads and parses the remote update manifest.
func (u *runner) fillUpdateDescription(ctx context.Context) error {
	response, err := u.getFileBodyFromServer(ctx, VersionFilename)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	var desc Description
	if err = yaml.Unmarshal(data, &desc); err != nil {
		return err
	}

	u.description = &desc

	return nil
}

// getFileBodyFromServer fetches a file from the update folder.
func (u *runner) getFileBodyFromServer(ctx context.Context, fileName string) (*http.Response, error) {
	serverUpdateURL, err := url.Parse(u.cfg.ServerUpdateFolder)
	if err != nil {
		return nil, err
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	serverUpdateURL.Path = path.Join(serverUpdateURL.Path, fileName)
	finalURL := serverUpdateURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := u.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// validateChecksum records every local file whose checksum differs from the manifest.
func (u *runner) validateChecksum() error {
	u.changedFiles = u.changedFiles[:0]

	for _, fileName := range FilesWithChecksum() {
		serverChecksum, err := u.getServerChecksum(fileName)
		if err != nil {
			return err
		}

		clientChecksum, err := u.getClientChecksum(fileName)
		if err != nil {
			return err
		}

		if !bytes.Equal(serverChecksum, clientChecksum) {
			u.changedFiles = append(u.changedFiles, fileName)
		}
	}

	return nil
}

// getServerChecksum retrieves and decodes the server checksum for a file.
func (u *runner) getServerChecksum(fileName string) ([]byte, error) {
	serverFileBase64, hasDescription := u.description.Files[fileName]
	if !hasDescription {
		return nil, fmt.Errorf("checksum for %s: %w", fileName, errNoChecksum)
	}

	return base64.StdEncoding.DecodeString(serverFileBase64)
}

// getClientChecksum retrieves the installed checksum for a file.
// Returns nil checksum if the file doesn't exist.
func (u *runner) getClientChecksum(fileName string) ([]byte, error) {
	installed := filepath.Join(u.targetDirectory, fileName)

	if _, err := os.Stat(installed); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	return GetFileChecksum(installed)
}

// downloadFiles downloads changed files into a temporary directory and
// verifies them against the manifest before anything is applied.
func (u *runner) downloadFiles(ctx context.Context) error {
	temporaryDirectory, err := os.MkdirTemp("", "fall-guard-updater-")
	if err != nil {
		return err
	}

	u.temporaryDirectory = temporaryDirectory

	for _, fileName := range u.changedFiles {
		outputFileName := filepath.Join(temporaryDirectory, fileName)

		if err = u.downloadFile(ctx, fileName, outputFileName); err != nil {
			return err
		}

		want, err := u.getServerChecksum(fileName)
		if err != nil {
			return err
		}

		got, err := GetFileChecksum(outputFileName)
		if err != nil {
			return err
		}

		if !bytes.Equal(want, got) {
			return fmt.Errorf("%s: %w", fileName, errChecksumMismatch)
		}

		u.downloadedFiles[fileName] = outputFileName
		logger.InfoKV(ctx, "Downloaded file", "path", outputFileName)
	}

	return nil
}

// downloadFile copies one file from the update folder to outputFileName.
func (u *runner) downloadFile(ctx context.Context, fileName, outputFileName string) error {
	response, err := u.getFileBodyFromServer(ctx, fileName)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	outputFile, err := os.Create(filepath.Clean(outputFileName))
	if err != nil {
		return err
	}

	if _, err = io.Copy(outputFile, response.Body); err != nil {
		_ = outputFile.Close()

		return err
	}

	return outputFile.Close()
}

// updateFiles applies downloaded files using go-update with checksum validation.
func (u *runner) updateFiles(ctx context.Context) error {
	for fileName, downloadedFileName := range u.downloadedFiles {
		logger.InfoKV(ctx, "Updating file", "file", fileName)

		data, err := os.ReadFile(filepath.Clean(downloadedFileName))
		if err != nil {
			return err
		}

		checksum, err := u.getServerChecksum(fileName)
		if err != nil {
			return err
		}

		targetPath := filepath.Join(u.targetDirectory, fileName)

		// Apply renames the current file aside, so a first install needs a placeholder.
		if err = ensureFile(targetPath); err != nil {
			return err
		}

		options := goupdate.Options{
			TargetPath: targetPath,
			TargetMode: DefaultFileMode,
			Checksum:   checksum,
			Hash:       DefaultChecksumFunction,
		}

		if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
			if rerr := goupdate.RollbackError(err); rerr != nil {
				logger.ErrorKV(ctx, "Rollback failed", "file", fileName, "error", rerr)
			}

			return err
		}
	}

	return nil
}

// ensureFile creates an empty file at name when none exists.
func ensureFile(name string) error {
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		return err
	}

	f, err := os.OpenFile(filepath.Clean(name), os.O_CREATE|os.O_WRONLY, DefaultFileMode)
	if err != nil {
		return err
	}

	return f.Close()
}

// logRestartHint tells the operator to restart a daemon still running the old binary.
func (u *runner) logRestartHint(ctx context.Context) {
	running, err := DaemonRunning()
	if err != nil {
		logger.WarnKV(ctx, "Could not check for a running daemon", "error", err)

		return
	}

	if running {
		logger.InfoKV(ctx, "Restart the fall-guard service to load the new version",
			"version", u.description.VersionNumber)
	}
}

// cleanup removes temporary artifacts and the running marker.
func (u *runner) cleanup(ctx context.Context) {
	_ = os.Remove(filepath.Join(u.targetDirectory, MarkerFilename))

	if u.temporaryDirectory != "" {
		_ = os.RemoveAll(u.temporaryDirectory)
	}

	logger.Info(ctx, "The updater has been stopped")
}
