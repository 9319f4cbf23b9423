// Package orgs serves organization membership lookups.
package orgs

import (
	"context"
	stderrors "errors"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Service answers membership questions for authenticated users.
type Service struct {
	store storage.OrganizationStore
	log   *logger.Logger
}

// New constructs an orgs service.
func New(store storage.OrganizationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orgs")
	}
	return &Service{store: store, log: log}
}

// ListMine returns every organization the user belongs to with their role.
func (s *Service) ListMine(ctx context.Context, userID int64) ([]org.UserMembership, error) {
	return s.store.ListMembershipsForUser(ctx, userID)
}

// ResolveActor confirms the user's membership in the organization and
// returns the actor every scoped service call requires.
func (s *Service) ResolveActor(ctx context.Context, organizationID, userID int64) (policy.Actor, error) {
	m, err := s.store.GetMember(ctx, organizationID, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return policy.Actor{}, errors.Forbidden("not a member of this organization")
		}
		return policy.Actor{}, err
	}
	return policy.Actor{UserID: userID, OrganizationID: organizationID, Role: m.Role}, nil
}
