//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/fall-guard/internal/api/grpc/control"
	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
)

// Client wraps the gRPC ControlService client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the daemon.
	conn *grpc.ClientConn
	// api is the ControlService client interface.
	api control.ControlClient
	// actor is sent with every request; nil sends nothing.
	actor *Actor

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor sends actor with every request.
func WithActor(actor *Actor) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errDeviceRequired is returned when SelectDevice gets no device.
	errDeviceRequired = errors.New("device must be provided")
)

// Dial establishes a gRPC connection to the daemon.
// Note: this uses insecure transport credentials; the control API is meant
// to listen on loopback or a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial fall-guard daemon: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         control.NewControlClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// SelectContact sets the emergency contact.
func (c *Client) SelectContact(ctx context.Context, number string) (escalation.View, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.SelectContact(callCtx, wrapperspb.String(number))
	if err != nil {
		return escalation.View{}, fmt.Errorf("select contact: %w", err)
	}

	return escalation.ViewOf(resp), nil
}

// SelectDevice selects the sensor and starts connecting to it.
func (c *Client) SelectDevice(ctx context.Context, device *fall.RemoteDevice) (escalation.View, error) {
	if device == nil {
		return escalation.View{}, errDeviceRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.SelectDevice(callCtx, control.DeviceToStruct(device))
	if err != nil {
		return escalation.View{}, fmt.Errorf("select device: %w", err)
	}

	return escalation.ViewOf(resp), nil
}

// CancelEscalation cancels a running countdown and reports whether there was one.
func (c *Client) CancelEscalation(ctx context.Context) (bool, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.CancelEscalation(callCtx, new(emptypb.Empty))
	if err != nil {
		return false, fmt.Errorf("cancel escalation: %w", err)
	}

	return resp.GetValue(), nil
}

// GetStatus retrieves the current status.
func (c *Client) GetStatus(ctx context.Context) (escalation.View, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.GetStatus(callCtx, new(emptypb.Empty))
	if err != nil {
		return escalation.View{}, fmt.Errorf("get status: %w", err)
	}

	return escalation.ViewOf(resp), nil
}

// WatchStatus calls fn for every status until ctx is done or the stream ends.
// The call timeout does not apply to the stream.
func (c *Client) WatchStatus(ctx context.Context, fn func(escalation.View)) error {
	stream, err := c.api.WatchStatus(c.withActor(ctx), new(emptypb.Empty))
	if err != nil {
		return fmt.Errorf("watch status: %w", err)
	}

	for {
		msg, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("watch status: %w", err)
		}

		fn(escalation.ViewOf(msg))
	}
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = c.withActor(ctx)

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// withActor attaches the actor to outgoing metadata.
func (c *Client) withActor(ctx context.Context) context.Context {
	if c.actor == nil {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, control.ActorMetadataKey, c.actor.String())
}
