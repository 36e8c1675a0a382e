package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/fall-guard/internal/api/grpc/control"
	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/logger"
	repo "github.com/oshokin/fall-guard/internal/repository/selection"
)

// controller is the escalation state machine the service fronts.
type controller interface {
	SelectContact(ctx context.Context, number string) error
	SelectDevice(ctx context.Context, device *fall.RemoteDevice) error
	Cancel(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) (escalation.Status, error)
	Subscribe() (<-chan escalation.Status, func())
}

// service adds selection persistence in front of the controller.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// controller runs the escalation state machine.
	controller controller
	// repo persists the selection; nil disables persistence.
	repo repo.Repository
	// now is the clock used for selection timestamps.
	now func() time.Time

	// mu serializes selection changes with their persistence.
	mu sync.Mutex
	// selection is the last applied selection.
	selection *repo.Selection
}

// newService creates a service over c backed by the provided repository.
func newService(c controller, repository repo.Repository) *service {
	return &service{
		controller: c,
		repo:       repository,
		now:        time.Now,
		selection:  new(repo.Selection),
	}
}

// restore applies the persisted selection, falling back to the configured
// contact and device when nothing was persisted. A persisted field wins over
// the configured one only when it is set.
func (s *service) restore(ctx context.Context, contact fall.EmergencyContact, device *fall.RemoteDevice) error {
	if s.repo != nil {
		saved, err := s.repo.Load(ctx)

		switch {
		case err == nil:
			if saved.Contact.IsSet() {
				contact = saved.Contact
			}

			if saved.Device != nil {
				device = saved.Device
			}

			logger.InfoKV(ctx, "Restoring persisted selection",
				"contact", contact, "device", device.DisplayName(), "actor", saved.Actor)
		case errors.Is(err, repo.ErrNotFound):
			// Keep configured selection.
		default:
			logger.WarnKV(ctx, "Ignoring unreadable selection", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A bad contact must not keep the sensor offline: impacts then surface
	// as configuration errors instead of never being read.
	var contactErr, deviceErr error

	if contact.IsSet() {
		if err := s.controller.SelectContact(ctx, contact.String()); err != nil {
			contactErr = fmt.Errorf("restore contact: %w", err)
		} else {
			s.selection.Contact = contact
		}
	}

	if device != nil {
		if err := s.controller.SelectDevice(ctx, device); err != nil {
			deviceErr = fmt.Errorf("restore device: %w", err)
		} else {
			s.selection.Device = device.Clone()
		}
	}

	return errors.Join(contactErr, deviceErr)
}

// SelectContact replaces the contact and persists the selection.
func (s *service) SelectContact(ctx context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.controller.SelectContact(ctx, number); err != nil {
		return err
	}

	next := s.selection.Clone()
	next.Contact = fall.EmergencyContact(number)

	s.persistLocked(ctx, next)

	return nil
}

// SelectDevice replaces the sensor and persists the selection.
func (s *service) SelectDevice(ctx context.Context, device *fall.RemoteDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.controller.SelectDevice(ctx, device); err != nil {
		return err
	}

	next := s.selection.Clone()
	next.Device = device.Clone()

	s.persistLocked(ctx, next)

	return nil
}

// Cancel implements control.Service.
func (s *service) Cancel(ctx context.Context) (bool, error) {
	cancelled, err := s.controller.Cancel(ctx)
	if err == nil && cancelled {
		logger.InfoKV(ctx, "Escalation cancelled remotely", "actor", control.ActorFromContext(ctx))
	}

	return cancelled, err
}

// Snapshot implements control.Service.
func (s *service) Snapshot(ctx context.Context) (escalation.Status, error) {
	return s.controller.Snapshot(ctx)
}

// Subscribe implements control.Service.
func (s *service) Subscribe() (<-chan escalation.Status, func()) {
	return s.controller.Subscribe()
}

// persistLocked records next as the current selection and saves it.
// A failed save is logged: the selection is already live in the controller.
func (s *service) persistLocked(ctx context.Context, next *repo.Selection) {
	next.UpdatedAt = s.now()
	next.Actor = control.ActorFromContext(ctx)
	s.selection = next

	if s.repo == nil {
		return
	}

	if err := s.repo.Save(ctx, next); err != nil {
		logger.Errorf(ctx, "Failed to persist selection: %v", err)

		return
	}

	logger.InfoKV(ctx, "Selection updated",
		"contact", next.Contact, "device", next.Device.DisplayName(), "actor", next.Actor)
}
