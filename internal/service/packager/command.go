package packager

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/service/updater"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Dir holds the built binaries; the manifest is written there too.
	Dir string
	// UpdateFolder is the URL where the artifacts will be uploaded.
	UpdateFolder string
}

// packager prepares update metadata (manifest) for distribution.
// It is unexported; callers should use Run, which encapsulates setup and validation.
type packager struct {
	// dir holds the binaries and receives the manifest.
	dir string
	// updateFolder is only used for the upload hint.
	updateFolder string
	// desc contains the update manifest.
	desc *updater.Description
}

var (
	// errUpdaterRunning indicates that packaging was attempted while an update runs in the same directory.
	errUpdaterRunning = errors.New("the updater is running now")
	// errUpdateFolderRequired is returned when no upload URL is given.
	errUpdateFolderRequired = errors.New("update folder must be provided")
)

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "fall-guard-packager")

	if opts.UpdateFolder == "" {
		return errUpdateFolderRequired
	}

	if _, err := url.ParseRequestURI(opts.UpdateFolder); err != nil {
		return fmt.Errorf("invalid update folder URI: %w", err)
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	if updater.IsUpdaterRunningNow(ctx, dir) {
		return errUpdaterRunning
	}

	pkg := &packager{
		dir:          dir,
		updateFolder: opts.UpdateFolder,
		desc:         updater.NewDescription(),
	}

	if err := pkg.run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// run populates and writes the update description (manifest) to disk.
func (p *packager) run(ctx context.Context) error {
	logger.Info(ctx, "Preparing update description")

	if err := p.fillDescription(); err != nil {
		return err
	}

	manifest := filepath.Join(p.dir, updater.VersionFilename)
	logger.InfoKV(ctx, "Saving update description", "path", manifest)

	contents, err := yaml.Marshal(p.desc)
	if err != nil {
		return err
	}

	if err = os.WriteFile(manifest, contents, updater.DefaultFileMode); err != nil {
		return err
	}

	p.printNextSteps(ctx)

	return nil
}

// fillDescription computes the checksum of every release file.
func (p *packager) fillDescription() error {
	for _, fileName := range updater.FilesWithChecksum() {
		path := filepath.Join(p.dir, fileName)

		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, os.ErrNotExist)
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		checksum, err := updater.GetFileChecksum(path)
		if err != nil {
			return err
		}

		p.desc.Files[fileName] = base64.StdEncoding.EncodeToString(checksum)
	}

	return nil
}

// printNextSteps logs human-readable guidance for the upload.
func (p *packager) printNextSteps(ctx context.Context) {
	files := make([]string, 0, len(p.desc.Files)+1)
	for fileName := range p.desc.Files {
		files = append(files, fileName)
	}

	files = append(files, updater.VersionFilename)
	sort.Strings(files)

	var builder strings.Builder

	builder.WriteString("Upload the following files to ")
	builder.WriteString(p.updateFolder)
	builder.WriteString(":\n")
	builder.WriteString(strings.Join(files, ",\n"))
	builder.WriteString("\nThen run on each device: fall-guard update")

	logger.Info(ctx, builder.String())
}
