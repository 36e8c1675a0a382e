package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
)

var errTestSnapshot = errors.New("controller stopped")

// fakeSource returns a fixed status or error.
type fakeSource struct {
	status escalation.Status
	err    error
}

func (f *fakeSource) Snapshot(context.Context) (escalation.Status, error) {
	return f.status, f.err
}

// TestHealth reports ok.
func TestHealth(t *testing.T) {
	t.Parallel()

	srv := NewServer(new(fakeSource), time.Second)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

// TestStatus returns the snapshot as JSON.
func TestStatus(t *testing.T) {
	t.Parallel()

	src := &fakeSource{status: escalation.Status{
		Event:     escalation.EventSnapshot,
		Time:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Phase:     fall.PhaseCountingDown,
		Link:      fall.LinkConnected,
		Device:    &fall.RemoteDevice{Name: "Wrist Sensor"},
		Contact:   "+4670123456",
		Remaining: 12 * time.Second,
	}}

	srv := NewServer(src, time.Second)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, fall.PhaseCountingDown.String(), body["phase"])
	require.Equal(t, "Wrist Sensor", body["device"])
	require.InDelta(t, 12.0, body["remaining_seconds"], 0.001)
}

// TestStatus_Error maps a snapshot failure to 503.
func TestStatus_Error(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSource{err: errTestSnapshot}, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), errTestSnapshot.Error())
}

// TestCORS allows cross-origin reads.
func TestCORS(t *testing.T) {
	t.Parallel()

	srv := NewServer(new(fakeSource), 0)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dashboard.local")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// TestServe_Shutdown stops serving when the context is cancelled.
func TestServe_Shutdown(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(new(fakeSource), time.Second)

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.serveListener(ctx, lis)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + "/healthz") //nolint:noctx // Test probe.
		if err != nil {
			return false
		}

		_ = resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err = <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
