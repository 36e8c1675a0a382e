package updater

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/version"
)

// release is a fake update folder.
type release struct {
	mu       sync.Mutex
	files    map[string][]byte
	manifest *Description
	requests []string
}

// newRelease builds a release of ver with the given file contents.
func newRelease(ver string, files map[string][]byte) *release {
	r := &release{
		files: files,
		manifest: &Description{
			VersionNumber: ver,
			Files:         make(map[string]string, len(files)),
		},
	}

	for name, body := range files {
		sum := sha512.Sum512(body)
		r.manifest.Files[name] = base64.StdEncoding.EncodeToString(sum[:])
	}

	return r
}

func (r *release) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := filepath.Base(req.URL.Path)
	r.requests = append(r.requests, name)

	if name == VersionFilename {
		body, _ := yaml.Marshal(r.manifest)
		_, _ = w.Write(body)

		return
	}

	body, ok := r.files[name]
	if !ok {
		http.NotFound(w, req)

		return
	}

	_, _ = w.Write(body)
}

func (r *release) requested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.requests...)
}

// runAgainst runs an update of dir against rel.
func runAgainst(t *testing.T, rel *release, dir string, force bool) error {
	t.Helper()

	srv := httptest.NewServer(rel)
	t.Cleanup(srv.Close)

	settings := config.Default()
	settings.ServerUpdateFolder = srv.URL + "/releases/"

	return newRunner(settings, dir, force).run(context.Background())
}

// TestRun_NewerVersionApplies installs every file of a newer release.
func TestRun_NewerVersionApplies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rel := newRelease("99.0.0", map[string][]byte{
		DaemonExecutable:  []byte("daemon-v99"),
		ControlExecutable: []byte("ctl-v99"),
	})

	require.NoError(t, runAgainst(t, rel, dir, false))

	got, err := os.ReadFile(filepath.Join(dir, DaemonExecutable))
	require.NoError(t, err)
	require.Equal(t, "daemon-v99", string(got))

	got, err = os.ReadFile(filepath.Join(dir, ControlExecutable))
	require.NoError(t, err)
	require.Equal(t, "ctl-v99", string(got))

	_, err = os.Stat(filepath.Join(dir, MarkerFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_UpToDate downloads only the manifest when nothing changed.
func TestRun_UpToDate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := map[string][]byte{
		DaemonExecutable:  []byte("daemon"),
		ControlExecutable: []byte("ctl"),
	}

	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), body, DefaultFileMode))
	}

	rel := newRelease(version.Short(), files)

	require.NoError(t, runAgainst(t, rel, dir, false))
	require.Equal(t, []string{VersionFilename}, rel.requested())
}

// TestRun_RepairsChangedFile re-downloads only a file that differs at the same version.
func TestRun_RepairsChangedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DaemonExecutable), []byte("corrupt"), DefaultFileMode))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ControlExecutable), []byte("ctl"), DefaultFileMode))

	rel := newRelease(version.Short(), map[string][]byte{
		DaemonExecutable:  []byte("daemon"),
		ControlExecutable: []byte("ctl"),
	})

	require.NoError(t, runAgainst(t, rel, dir, false))
	require.Equal(t, []string{VersionFilename, DaemonExecutable}, rel.requested())

	got, err := os.ReadFile(filepath.Join(dir, DaemonExecutable))
	require.NoError(t, err)
	require.Equal(t, "daemon", string(got))
}

// TestRun_OlderVersionIgnored never downgrades unless forced.
func TestRun_OlderVersionIgnored(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rel := newRelease("0.0.1", map[string][]byte{
		DaemonExecutable:  []byte("old-daemon"),
		ControlExecutable: []byte("old-ctl"),
	})

	require.NoError(t, runAgainst(t, rel, dir, false))

	_, err := os.Stat(filepath.Join(dir, DaemonExecutable))
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, runAgainst(t, rel, dir, true))

	got, err := os.ReadFile(filepath.Join(dir, DaemonExecutable))
	require.NoError(t, err)
	require.Equal(t, "old-daemon", string(got))
}

// TestRun_ChecksumMismatch refuses to apply a tampered download.
func TestRun_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rel := newRelease("99.0.0", map[string][]byte{
		DaemonExecutable:  []byte("daemon"),
		ControlExecutable: []byte("ctl"),
	})
	rel.files[DaemonExecutable] = []byte("tampered")

	err := runAgainst(t, rel, dir, false)
	require.ErrorIs(t, err, errChecksumMismatch)

	_, err = os.Stat(filepath.Join(dir, DaemonExecutable))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestRun_Preconditions covers the marker and a missing update folder.
func TestRun_Preconditions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := newRunner(config.Default(), dir, false).run(context.Background())
	require.ErrorIs(t, err, errNoUpdateFolder)

	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFilename), nil, 0o600))

	rel := newRelease("99.0.0", map[string][]byte{})
	err = runAgainst(t, rel, dir, false)
	require.ErrorIs(t, err, errUpdaterAlreadyRunning)
	require.Empty(t, rel.requested())
}

// TestRun_MissingChecksum rejects a manifest without an entry for a release file.
func TestRun_MissingChecksum(t *testing.T) {
	t.Parallel()

	rel := newRelease("99.0.0", map[string][]byte{DaemonExecutable: []byte("d")})

	err := runAgainst(t, rel, t.TempDir(), false)
	require.ErrorIs(t, err, errNoChecksum)
}

// TestGetFileChecksum matches crypto/sha512.
func TestGetFileChecksum(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0o600))

	got, err := GetFileChecksum(file)
	require.NoError(t, err)

	want := sha512.Sum512([]byte("abc"))
	require.Equal(t, want[:], got)
}
