package location

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

var errTestProvider = errors.New("test provider error")

// stubProvider is a configurable Provider.
type stubProvider struct {
	name    string
	enabled bool
	loc     *fall.Location
	err     error
	calls   int
}

func (s *stubProvider) Name() string                 { return s.name }
func (s *stubProvider) Enabled(context.Context) bool { return s.enabled }

// LastKnown counts calls and returns the configured result.
func (s *stubProvider) LastKnown(context.Context) (*fall.Location, error) {
	s.calls++

	return s.loc.Clone(), s.err
}

// TestResolver_PriorityOrder verifies network is preferred and satellite is the fallback.
func TestResolver_PriorityOrder(t *testing.T) {
	t.Parallel()

	network := &stubProvider{name: "network", enabled: true, loc: &fall.Location{Latitude: 1, Longitude: 2}}
	satellite := &stubProvider{name: "satellite", enabled: true, loc: &fall.Location{Latitude: 3, Longitude: 4}}

	loc := NewResolver([]Provider{network, satellite}).Resolve(context.Background())
	require.NotNil(t, loc)
	require.InDelta(t, 1.0, loc.Latitude, 1e-9)
	require.Equal(t, "network", loc.Provider)
	require.Equal(t, 0, satellite.calls)

	// Network has nothing cached: satellite answers.
	network.loc = nil

	loc = NewResolver([]Provider{network, satellite}).Resolve(context.Background())
	require.NotNil(t, loc)
	require.Equal(t, "satellite", loc.Provider)

	// Network fails: still falls through.
	network.err = errTestProvider

	loc = NewResolver([]Provider{network, satellite}).Resolve(context.Background())
	require.NotNil(t, loc)
}

// TestResolver_None covers the "no location" outcomes.
func TestResolver_None(t *testing.T) {
	t.Parallel()

	disabled := &stubProvider{name: "network", loc: &fall.Location{Latitude: 1}}
	require.Nil(t, NewResolver([]Provider{disabled}).Resolve(context.Background()))
	require.Equal(t, 0, disabled.calls)

	empty := &stubProvider{name: "satellite", enabled: true}
	require.Nil(t, NewResolver([]Provider{empty}).Resolve(context.Background()))

	invalid := &stubProvider{name: "network", enabled: true, loc: &fall.Location{Latitude: 200}}
	require.Nil(t, NewResolver([]Provider{invalid}).Resolve(context.Background()))

	granted := &stubProvider{name: "network", enabled: true, loc: &fall.Location{Latitude: 1}}
	r := NewResolver([]Provider{granted}, WithGrant(func() bool { return false }))
	require.Nil(t, r.Resolve(context.Background()))
	require.Equal(t, 0, granted.calls)
}

// TestCacheFileProvider reads fixes from YAML and JSON cache files.
func TestCacheFileProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	missing := NewCacheFileProvider(filepath.Join(dir, "missing.yaml"))
	require.False(t, missing.Enabled(context.Background()))

	path := filepath.Join(dir, "fix.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"latitude": -33.8688, "longitude": 151.2093, "accuracy": 25, "time": "2024-05-01T10:00:00Z"}`), 0o600))

	p := NewCacheFileProvider(path)
	require.True(t, p.Enabled(context.Background()))

	loc, err := p.LastKnown(context.Background())
	require.NoError(t, err)
	require.InDelta(t, -33.8688, loc.Latitude, 1e-9)
	require.InDelta(t, 151.2093, loc.Longitude, 1e-9)
	require.Equal(t, NetworkProviderName, loc.Provider)
	require.Equal(t, 2024, loc.Time.Year())

	partial := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(partial, []byte("latitude: 1.5\n"), 0o600))

	loc, err = NewCacheFileProvider(partial).LastKnown(context.Background())
	require.NoError(t, err)
	require.Nil(t, loc)
}

// fakeGPSD serves one canned gpsd conversation per connection.
func fakeGPSD(t *testing.T, reply string) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lis.Close() })

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}

			go func() {
				defer conn.Close()

				_, _ = conn.Write([]byte(`{"class":"VERSION","release":"3.25"}` + "\n"))

				line, _ := bufio.NewReader(conn).ReadString('\n')
				if strings.Contains(line, "?POLL;") {
					_, _ = conn.Write([]byte(reply))
				}
			}()
		}
	}()

	return lis.Addr().String()
}

// TestGPSDProvider_Poll parses the cached TPV from a POLL reply.
func TestGPSDProvider_Poll(t *testing.T) {
	t.Parallel()

	addr := fakeGPSD(t, `{"class":"DEVICES","devices":[]}`+"\n"+
		`{"class":"WATCH","enable":true}`+"\n"+
		`{"class":"POLL","active":1,"tpv":[{"class":"TPV","mode":1},`+
		`{"class":"TPV","mode":3,"time":"2024-05-01T10:00:00.000Z","lat":51.5,"lon":-0.12,"eph":8.5}]}`+"\n")

	p := NewGPSDProvider(addr, WithProcessCheck(func() bool { return true }))
	require.True(t, p.Enabled(context.Background()))

	loc, err := p.LastKnown(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.InDelta(t, 51.5, loc.Latitude, 1e-9)
	require.InDelta(t, -0.12, loc.Longitude, 1e-9)
	require.Equal(t, SatelliteProviderName, loc.Provider)

	noFix := fakeGPSD(t, `{"class":"POLL","active":0,"tpv":[]}`+"\n")

	loc, err = NewGPSDProvider(noFix).LastKnown(context.Background())
	require.NoError(t, err)
	require.Nil(t, loc)
}
