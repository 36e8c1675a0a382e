package daemon

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/oshokin/fall-guard/internal/api/grpc/control"
	"github.com/oshokin/fall-guard/internal/config"
	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/publish"
	repo "github.com/oshokin/fall-guard/internal/repository/selection"
)

var (
	errTestLoad    = errors.New("test load error")
	errTestInvalid = errors.New("invalid contact")
)

// memoryRepository is a minimal in-memory Repository implementation for tests.
type memoryRepository struct {
	// selection is returned from Load operations.
	selection *repo.Selection
	// loadErr is the error to return from Load operations.
	loadErr error
	// saved stores the last selection passed to Save operations.
	saved *repo.Selection
}

// Load returns the configured selection or error.
func (m *memoryRepository) Load(context.Context) (*repo.Selection, error) {
	return m.selection, m.loadErr
}

// Save stores the selection in memory.
func (m *memoryRepository) Save(_ context.Context, s *repo.Selection) error {
	m.saved = s.Clone()

	return nil
}

// fakeController records the calls made by the service.
type fakeController struct {
	contacts   []string
	devices    []*fall.RemoteDevice
	contactErr error
	cancelled  bool
}

func (f *fakeController) SelectContact(_ context.Context, number string) error {
	if f.contactErr != nil {
		return f.contactErr
	}

	f.contacts = append(f.contacts, number)

	return nil
}

func (f *fakeController) SelectDevice(_ context.Context, device *fall.RemoteDevice) error {
	f.devices = append(f.devices, device)

	return nil
}

func (f *fakeController) Cancel(context.Context) (bool, error) {
	return f.cancelled, nil
}

func (f *fakeController) Snapshot(context.Context) (escalation.Status, error) {
	return escalation.Status{Event: escalation.EventSnapshot}, nil
}

func (f *fakeController) Subscribe() (<-chan escalation.Status, func()) {
	return make(chan escalation.Status), func() {}
}

// TestRestore_PrefersPersistedSelection asserts persisted fields win over configured ones.
func TestRestore_PrefersPersistedSelection(t *testing.T) {
	t.Parallel()

	saved := &fall.RemoteDevice{Name: "Saved", Address: "00:11:22:33:44:55"}
	ctrl := new(fakeController)
	svc := newService(ctrl, &memoryRepository{selection: &repo.Selection{Device: saved}})

	configured := &fall.RemoteDevice{Name: "Configured", Path: "/dev/rfcomm0"}
	require.NoError(t, svc.restore(context.Background(), "+4670123456", configured))

	require.Equal(t, []string{"+4670123456"}, ctrl.contacts)
	require.Len(t, ctrl.devices, 1)
	require.Equal(t, "Saved", ctrl.devices[0].Name)
}

// TestRestore_Fallbacks covers missing, unreadable and empty selections.
func TestRestore_Fallbacks(t *testing.T) {
	t.Parallel()

	device := &fall.RemoteDevice{Path: "/dev/rfcomm0"}

	for _, repository := range []repo.Repository{
		nil,
		&memoryRepository{loadErr: repo.ErrNotFound},
		&memoryRepository{loadErr: errTestLoad},
	} {
		ctrl := new(fakeController)
		svc := newService(ctrl, repository)

		require.NoError(t, svc.restore(context.Background(), "112", device))
		require.Equal(t, []string{"112"}, ctrl.contacts)
		require.Equal(t, []*fall.RemoteDevice{device}, ctrl.devices)
	}

	ctrl := new(fakeController)
	require.NoError(t, newService(ctrl, nil).restore(context.Background(), "", nil))
	require.Empty(t, ctrl.contacts)
	require.Empty(t, ctrl.devices)
}

// TestRestore_ControllerError reports a rejected persisted contact.
func TestRestore_ControllerError(t *testing.T) {
	t.Parallel()

	svc := newService(&fakeController{contactErr: errTestInvalid}, nil)

	err := svc.restore(context.Background(), "garbage", nil)
	require.ErrorIs(t, err, errTestInvalid)
}

// TestRestore_BadContactStillConnects checks the sensor is selected even when
// the contact is rejected.
func TestRestore_BadContactStillConnects(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{contactErr: errTestInvalid}
	svc := newService(ctrl, nil)
	device := &fall.RemoteDevice{Name: "Wrist", Address: "00:11:22:33:44:55"}

	err := svc.restore(context.Background(), "-", device)
	require.ErrorIs(t, err, errTestInvalid)
	require.Equal(t, []*fall.RemoteDevice{device}, ctrl.devices)
	require.False(t, svc.selection.Contact.IsSet())
	require.Equal(t, "Wrist", svc.selection.Device.Name)
}

// TestService_SelectPersists verifies selections are saved with actor and time.
func TestService_SelectPersists(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	memory := new(memoryRepository)
	svc := newService(new(fakeController), memory)
	svc.now = func() time.Time { return now }

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(control.ActorMetadataKey, "carer@kitchen"))

	require.NoError(t, svc.SelectContact(ctx, "+4670123456"))
	require.Equal(t, fall.EmergencyContact("+4670123456"), memory.saved.Contact)
	require.Equal(t, "carer@kitchen", memory.saved.Actor)
	require.Equal(t, now, memory.saved.UpdatedAt)

	device := &fall.RemoteDevice{Name: "Wrist", Address: "00:11:22:33:44:55"}
	require.NoError(t, svc.SelectDevice(context.Background(), device))
	require.Equal(t, fall.EmergencyContact("+4670123456"), memory.saved.Contact)
	require.Equal(t, device, memory.saved.Device)
	require.Empty(t, memory.saved.Actor)
}

// TestService_RejectedSelectionNotPersisted keeps the old selection on error.
func TestService_RejectedSelectionNotPersisted(t *testing.T) {
	t.Parallel()

	memory := new(memoryRepository)
	svc := newService(&fakeController{contactErr: errTestInvalid}, memory)

	require.ErrorIs(t, svc.SelectContact(context.Background(), "abc"), errTestInvalid)
	require.Nil(t, memory.saved)
}

// TestService_Delegates passes Cancel and Snapshot through.
func TestService_Delegates(t *testing.T) {
	t.Parallel()

	svc := newService(&fakeController{cancelled: true}, nil)

	cancelled, err := svc.Cancel(context.Background())
	require.NoError(t, err)
	require.True(t, cancelled)

	snapshot, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, escalation.EventSnapshot, snapshot.Event)
}

// TestApplyOverrides checks command line flags win over settings.
func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	settings := config.Default()
	applyOverrides(settings, &Options{
		ListenAddress: "127.0.0.1:6000",
		SelectionFile: filepath.Join(t.TempDir(), "selection.json"),
		DryRun:        true,
	})

	require.Equal(t, "127.0.0.1:6000", settings.Control.GRPCAddress)
	require.NotEmpty(t, settings.SelectionFile)
	require.True(t, settings.DryRun)

	settings = config.Default()
	settings.DryRun = true
	applyOverrides(settings, new(Options))
	require.True(t, settings.DryRun)
	require.Equal(t, config.DefaultGRPCAddress, settings.Control.GRPCAddress)
}

// TestBuildResolver_LocationGrant returns no fix when location is not granted.
func TestBuildResolver_LocationGrant(t *testing.T) {
	t.Parallel()

	settings := config.Default()
	settings.Grants.Location = false

	require.Nil(t, buildResolver(settings).Resolve(context.Background()))
}

// TestBuildAlerting_DryRun uses logging backends in dry-run mode.
func TestBuildAlerting_DryRun(t *testing.T) {
	t.Parallel()

	settings := config.Default()
	settings.DryRun = true

	messenger, caller, closeFn := buildAlerting(settings)
	defer closeFn()

	require.NoError(t, messenger.SendText(context.Background(), "112", "test"))
	require.NoError(t, caller.PlaceCall(context.Background(), "112"))
}

// closingPublisher records Close calls.
type closingPublisher struct {
	closed int
}

func (p *closingPublisher) Name() string { return "test" }

func (p *closingPublisher) Publish(context.Context, []byte) error { return nil }

func (p *closingPublisher) Close() error {
	p.closed++

	return nil
}

// TestListenControl_ClosesPublishersOnFailure checks dialed publishers are
// released when the control port is taken.
func TestListenControl_ClosesPublishersOnFailure(t *testing.T) {
	t.Parallel()

	busy, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = busy.Close()
	})

	pub := new(closingPublisher)

	lis, err := listenControl(context.Background(), busy.Addr().String(), []publish.Publisher{pub})
	require.Error(t, err)
	require.Nil(t, lis)
	require.Equal(t, 1, pub.closed)

	lis, err = listenControl(context.Background(), "127.0.0.1:0", []publish.Publisher{pub})
	require.NoError(t, err)
	require.NoError(t, lis.Close())
	require.Equal(t, 1, pub.closed)
}
