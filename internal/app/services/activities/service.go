// Package activities serves the append-only deal audit log. Only comments
// can be appended by callers; every other entry type is derived by the
// lifecycle rules.
package activities

import (
	"context"
	stderrors "errors"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Service reads and appends deal activities.
type Service struct {
	store storage.ActivityStore
	deals storage.DealStore
	log   *logger.Logger
}

// New constructs an activities service.
func New(store storage.ActivityStore, deals storage.DealStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("activities")
	}
	return &Service{store: store, deals: deals, log: log}
}

// List returns the deal's activities oldest first.
func (s *Service) List(ctx context.Context, actor policy.Actor, dealID int64) ([]activity.Activity, error) {
	if err := s.checkDeal(ctx, actor, dealID); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, dealID)
}

// Comment appends a comment activity authored by the actor. Callers can
// only append comments; derived entry types are reserved for the lifecycle
// rules.
func (s *Service) Comment(ctx context.Context, actor policy.Actor, dealID int64, payload map[string]interface{}) (activity.Activity, error) {
	if payload == nil {
		return activity.Activity{}, errors.Validation("comment payload is required")
	}
	if err := s.checkDeal(ctx, actor, dealID); err != nil {
		return activity.Activity{}, err
	}

	created, err := s.store.CreateActivity(ctx, activity.Activity{
		DealID:   dealID,
		AuthorID: actor.UserID,
		Type:     activity.TypeComment,
		Payload:  payload,
	})
	if err != nil {
		return activity.Activity{}, err
	}

	s.log.WithField("deal_id", dealID).
		WithField("activity_id", created.ID).
		Info("comment added")
	return created, nil
}

func (s *Service) checkDeal(ctx context.Context, actor policy.Actor, dealID int64) error {
	if _, err := s.deals.GetDeal(ctx, actor.OrganizationID, dealID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("deal not found")
		}
		return err
	}
	return nil
}
