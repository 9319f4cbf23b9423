// Package deals implements the deal pipeline: creation, filtered listing and
// the transactional update that drives the lifecycle rules.
package deals

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/lifecycle"
	"github.com/ridgeline-labs/minicrm/internal/app/metrics"
	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Service manages deals.
type Service struct {
	store    storage.DealStore
	contacts storage.ContactStore
	members  storage.OrganizationStore
	tx       storage.TxRunner
	log      *logger.Logger
}

// New constructs a deals service.
func New(store storage.DealStore, contacts storage.ContactStore, members storage.OrganizationStore, tx storage.TxRunner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("deals")
	}
	return &Service{store: store, contacts: contacts, members: members, tx: tx, log: log}
}

// CreateInput is the caller-provided part of a new deal. Zero values take
// the defaults: actor ownership, status new, stage qualification, USD.
type CreateInput struct {
	ContactID int64
	Title     string
	Amount    decimal.Decimal
	Currency  string
	OwnerID   int64
}

// Create validates and stores a new deal.
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (deal.Deal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return deal.Deal{}, errors.Validation("deal title is required")
	}
	if in.Amount.Sign() < 0 {
		return deal.Deal{}, errors.Validation("deal amount cannot be negative")
	}
	if _, err := s.contacts.GetContact(ctx, actor.OrganizationID, in.ContactID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return deal.Deal{}, errors.NotFound("contact not in organization")
		}
		return deal.Deal{}, err
	}

	ownerID := in.OwnerID
	if ownerID == 0 {
		ownerID = actor.UserID
	}
	if ownerID != actor.UserID {
		if !policy.CanAssignOwner(actor.Role) {
			return deal.Deal{}, errors.Forbidden("members cannot assign other owners")
		}
		if _, err := s.members.GetMember(ctx, actor.OrganizationID, ownerID); err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return deal.Deal{}, errors.Validation("owner is not a member of this organization")
			}
			return deal.Deal{}, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}

	created, err := s.store.CreateDeal(ctx, deal.Deal{
		OrganizationID: actor.OrganizationID,
		ContactID:      in.ContactID,
		OwnerID:        ownerID,
		Title:          title,
		Amount:         in.Amount,
		Currency:       currency,
		Status:         deal.StatusNew,
		Stage:          deal.StageQualification,
	})
	if err != nil {
		return deal.Deal{}, err
	}

	s.log.WithField("deal_id", created.ID).
		WithField("organization_id", created.OrganizationID).
		WithField("contact_id", created.ContactID).
		Info("deal created")
	return created, nil
}

// Get fetches one deal within the actor's organization.
func (s *Service) Get(ctx context.Context, actor policy.Actor, id int64) (deal.Deal, error) {
	d, err := s.store.GetDeal(ctx, actor.OrganizationID, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return deal.Deal{}, errors.NotFound("deal not found")
		}
		return deal.Deal{}, err
	}
	return d, nil
}

// List returns deals matching the filter. Members cannot filter by
// owner; the filter is dropped and they see every deal in the
// organization.
func (s *Service) List(ctx context.Context, actor policy.Actor, f deal.Filter) ([]deal.Deal, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, errors.Validation("unknown status")
		}
	}
	if f.Stage != "" && !f.Stage.Valid() {
		return nil, errors.Validation("unknown stage")
	}
	if !policy.CanFilterByOwner(actor.Role) {
		f.OwnerID = 0
	}
	return s.store.ListDeals(ctx, actor.OrganizationID, f)
}

// UpdateInput carries the patchable deal fields. Nil leaves a field as is.
type UpdateInput struct {
	Title    *string
	Amount   *decimal.Decimal
	Currency *string
	Status   *deal.Status
	Stage    *deal.Stage
	OwnerID  *int64
}

// Update applies a partial update. The lifecycle rules gate status and
// stage moves, and the derived audit activities land in the same
// transaction as the row update.
func (s *Service) Update(ctx context.Context, actor policy.Actor, id int64, in UpdateInput) (deal.Deal, error) {
	var updated deal.Deal
	var derived int

	err := s.tx.InTx(ctx, func(stores storage.Stores) error {
		current, err := stores.Deals.GetDeal(ctx, actor.OrganizationID, id)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.NotFound("deal not found")
			}
			return err
		}
		if !policy.CanActOnResource(actor.Role, actor.UserID, current.OwnerID) {
			return errors.Forbidden("cannot modify a deal owned by someone else")
		}

		next := current
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return errors.Validation("deal title is required")
			}
			next.Title = title
		}
		if in.Amount != nil {
			if in.Amount.Sign() < 0 {
				return errors.Validation("deal amount cannot be negative")
			}
			next.Amount = *in.Amount
		}
		if in.Currency != nil {
			currency := strings.ToUpper(strings.TrimSpace(*in.Currency))
			if currency == "" {
				return errors.Validation("currency cannot be blank")
			}
			next.Currency = currency
		}
		if in.OwnerID != nil && *in.OwnerID != current.OwnerID {
			if !policy.CanAssignOwner(actor.Role) {
				return errors.Forbidden("members cannot reassign owners")
			}
			if _, err := stores.Organizations.GetMember(ctx, actor.OrganizationID, *in.OwnerID); err != nil {
				if stderrors.Is(err, storage.ErrNotFound) {
					return errors.Validation("owner is not a member of this organization")
				}
				return err
			}
			next.OwnerID = *in.OwnerID
		}
		if in.Stage != nil {
			if err := lifecycle.ValidateStage(current.Stage, *in.Stage, actor.Role); err != nil {
				return err
			}
			next.Stage = *in.Stage
		}
		if in.Status != nil {
			next.Status = *in.Status
			// The won-amount rule gates the transition, not the steady
			// state, so it only runs when the patch carries a status.
			if err := lifecycle.ValidateStatus(next.Status, next.Amount); err != nil {
				return err
			}
		}

		updated, err = stores.Deals.UpdateDeal(ctx, next)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.NotFound("deal not found")
			}
			return err
		}

		activities := lifecycle.DerivedActivities(updated, current.Stage, current.Status, actor.UserID)
		for _, a := range activities {
			if _, err := stores.Activities.CreateActivity(ctx, a); err != nil {
				return err
			}
		}
		derived = len(activities)

		if updated.Status != current.Status {
			metrics.RecordDealTransition("status", string(updated.Status))
		}
		if updated.Stage != current.Stage {
			metrics.RecordDealTransition("stage", string(updated.Stage))
		}
		return nil
	})
	if err != nil {
		return deal.Deal{}, err
	}

	s.log.WithField("deal_id", updated.ID).
		WithField("organization_id", updated.OrganizationID).
		WithField("activities", derived).
		Info("deal updated")
	return updated, nil
}
