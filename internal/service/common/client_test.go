//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/oshokin/fall-guard/internal/api/grpc/control"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_withActor checks the actor travels in outgoing metadata.
func TestClient_withActor(t *testing.T) {
	t.Parallel()

	c := &Client{actor: &Actor{Hostname: "kitchen", Username: "carer"}}

	md, ok := metadata.FromOutgoingContext(c.withActor(context.Background()))
	require.True(t, ok)
	require.Equal(t, []string{"carer@kitchen"}, md.Get(control.ActorMetadataKey))

	_, ok = metadata.FromOutgoingContext(new(Client).withActor(context.Background()))
	require.False(t, ok)
}

// TestSelectDevice_NilDevice asserts that a nil device is rejected by the client.
func TestSelectDevice_NilDevice(t *testing.T) {
	t.Parallel()

	c := new(Client)

	_, err := c.SelectDevice(context.Background(), nil)
	require.ErrorIs(t, err, errDeviceRequired)
}
