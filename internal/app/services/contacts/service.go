// Package contacts implements contact management within an organization.
package contacts

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/contact"
	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Service manages contacts.
type Service struct {
	store   storage.ContactStore
	members storage.OrganizationStore
	log     *logger.Logger
}

// New constructs a contacts service.
func New(store storage.ContactStore, members storage.OrganizationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("contacts")
	}
	return &Service{store: store, members: members, log: log}
}

// CreateInput is the caller-provided part of a new contact. OwnerID zero
// assigns ownership to the actor.
type CreateInput struct {
	Name    string
	Email   string
	Phone   string
	OwnerID int64
}

// Create validates and stores a new contact.
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (contact.Contact, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return contact.Contact{}, errors.Validation("contact name is required")
	}

	ownerID := in.OwnerID
	if ownerID == 0 {
		ownerID = actor.UserID
	}
	if ownerID != actor.UserID {
		if !policy.CanAssignOwner(actor.Role) {
			return contact.Contact{}, errors.Forbidden("members cannot assign other owners")
		}
		if _, err := s.members.GetMember(ctx, actor.OrganizationID, ownerID); err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return contact.Contact{}, errors.Validation("owner is not a member of this organization")
			}
			return contact.Contact{}, err
		}
	}

	created, err := s.store.CreateContact(ctx, contact.Contact{
		OrganizationID: actor.OrganizationID,
		OwnerID:        ownerID,
		Name:           name,
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
	})
	if err != nil {
		return contact.Contact{}, err
	}

	s.log.WithField("contact_id", created.ID).
		WithField("organization_id", created.OrganizationID).
		WithField("owner_id", created.OwnerID).
		Info("contact created")
	return created, nil
}

// Get fetches one contact within the actor's organization.
func (s *Service) Get(ctx context.Context, actor policy.Actor, id int64) (contact.Contact, error) {
	c, err := s.store.GetContact(ctx, actor.OrganizationID, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return contact.Contact{}, errors.NotFound("contact not found")
		}
		return contact.Contact{}, err
	}
	return c, nil
}

// List returns contacts matching the filter. Members cannot filter by
// owner; the filter is dropped and they see every contact in the
// organization.
func (s *Service) List(ctx context.Context, actor policy.Actor, f contact.Filter) ([]contact.Contact, error) {
	if !policy.CanFilterByOwner(actor.Role) {
		f.OwnerID = 0
	}
	return s.store.ListContacts(ctx, actor.OrganizationID, f)
}

// Delete removes a contact. The delete is refused while any deal still
// references the contact.
func (s *Service) Delete(ctx context.Context, actor policy.Actor, id int64) error {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !policy.CanActOnResource(actor.Role, actor.UserID, c.OwnerID) {
		return errors.Forbidden("cannot delete a contact owned by someone else")
	}

	hasDeals, err := s.store.ContactHasDeals(ctx, id)
	if err != nil {
		return err
	}
	if hasDeals {
		return errors.Conflict("contact has deals attached")
	}

	if err := s.store.DeleteContact(ctx, actor.OrganizationID, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("contact not found")
		}
		return err
	}

	s.log.WithField("contact_id", id).
		WithField("organization_id", actor.OrganizationID).
		Info("contact deleted")
	return nil
}
