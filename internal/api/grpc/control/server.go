package control

import (
	"context"
	"errors"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/logger"
)

// Keys of the device Struct accepted by SelectDevice.
const (
	DeviceKeyName    = "name"
	DeviceKeyAddress = "address"
	DeviceKeyChannel = "channel"
	DeviceKeyPath    = "path"
)

// ActorMetadataKey carries "user@host" of the client issuing a control request.
const ActorMetadataKey = "x-fallguard-actor"

// Service abstracts the escalation operations the transport depends on.
type Service interface {
	SelectContact(ctx context.Context, number string) error
	SelectDevice(ctx context.Context, device *fall.RemoteDevice) error
	Cancel(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) (escalation.Status, error)
	Subscribe() (<-chan escalation.Status, func())
}

// Server implements the ControlService gRPC API.
type Server struct {
	UnimplementedControlServer

	// service runs the escalation state machine.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// SelectContact replaces the emergency contact and returns the new status.
func (s *Server) SelectContact(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	ctx = withActor(ctx)

	if err := s.service.SelectContact(ctx, req.GetValue()); err != nil {
		return nil, toStatusError(ctx, "select contact", err)
	}

	return s.GetStatus(ctx, nil)
}

// SelectDevice replaces the sensor, starts connecting and returns the new status.
func (s *Server) SelectDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	device, err := DeviceFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx = withActor(ctx)

	if err = s.service.SelectDevice(ctx, device); err != nil {
		return nil, toStatusError(ctx, "select device", err)
	}

	return s.GetStatus(ctx, nil)
}

// CancelEscalation stops a running countdown and reports whether there was one.
func (s *Server) CancelEscalation(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	ctx = withActor(ctx)

	cancelled, err := s.service.Cancel(ctx)
	if err != nil {
		return nil, toStatusError(ctx, "cancel escalation", err)
	}

	return wrapperspb.Bool(cancelled), nil
}

// GetStatus returns the current status.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snapshot, err := s.service.Snapshot(ctx)
	if err != nil {
		return nil, toStatusError(ctx, "get status", err)
	}

	return snapshot.Proto(), nil
}

// WatchStatus streams the current status followed by every change until the client leaves.
func (s *Server) WatchStatus(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()

	updates, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	current, err := s.GetStatus(ctx, nil)
	if err != nil {
		return err
	}

	if err = stream.Send(current); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			if err = stream.Send(update.Proto()); err != nil {
				return err
			}
		}
	}
}

// DeviceToStruct encodes a device for SelectDevice.
func DeviceToStruct(device *fall.RemoteDevice) *structpb.Struct {
	fields := map[string]*structpb.Value{}

	if device.Name != "" {
		fields[DeviceKeyName] = structpb.NewStringValue(device.Name)
	}

	if device.Address != "" {
		fields[DeviceKeyAddress] = structpb.NewStringValue(device.Address)
	}

	if device.Channel != 0 {
		fields[DeviceKeyChannel] = structpb.NewNumberValue(float64(device.Channel))
	}

	if device.Path != "" {
		fields[DeviceKeyPath] = structpb.NewStringValue(device.Path)
	}

	return &structpb.Struct{Fields: fields}
}

var (
	errDeviceRequired = errors.New("device address or path is required")
	errInvalidChannel = errors.New("channel must be an integer between 1 and 30")
)

// DeviceFromStruct decodes the SelectDevice request.
func DeviceFromStruct(msg *structpb.Struct) (*fall.RemoteDevice, error) {
	fields := msg.GetFields()

	device := &fall.RemoteDevice{
		Name:    fields[DeviceKeyName].GetStringValue(),
		Address: fields[DeviceKeyAddress].GetStringValue(),
		Path:    fields[DeviceKeyPath].GetStringValue(),
	}

	if device.Address == "" && device.Path == "" {
		return nil, errDeviceRequired
	}

	if v, ok := fields[DeviceKeyChannel]; ok {
		channel := v.GetNumberValue()
		if channel < 1 || channel > 30 || channel != math.Trunc(channel) {
			return nil, errInvalidChannel
		}

		device.Channel = uint8(channel)
	}

	return device, nil
}

// ActorFromContext returns the client actor sent with the request, if any.
func ActorFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	if values := md.Get(ActorMetadataKey); len(values) > 0 {
		return values[0]
	}

	return ""
}

// withActor adds the client actor to the request logger.
func withActor(ctx context.Context) context.Context {
	if actor := ActorFromContext(ctx); actor != "" {
		return logger.WithKV(ctx, "actor", actor)
	}

	return ctx
}

// toStatusError maps service errors onto gRPC codes.
func toStatusError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, escalation.ErrInvalidContact):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, fall.ErrLinkUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, escalation.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	}

	logger.ErrorKV(ctx, "Control request failed", "op", op, "error", err)

	return status.Errorf(codes.Internal, "%s failed", op)
}
