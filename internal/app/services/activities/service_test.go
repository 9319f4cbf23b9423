package activities

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/contact"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/user"
	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/app/storage/memory"
	"github.com/ridgeline-labs/minicrm/internal/errors"
)

type fixture struct {
	store   *memory.Store
	service *Service
	actor   policy.Actor
	deal    deal.Deal
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	u, err := store.CreateUser(ctx, user.User{Email: "author@crm.test", HashedPassword: "x"})
	require.NoError(t, err)
	o, err := store.CreateOrganization(ctx, org.Organization{Name: "Comments Inc"})
	require.NoError(t, err)
	_, err = store.AddMember(ctx, org.Membership{OrganizationID: o.ID, UserID: u.ID, Role: org.RoleMember})
	require.NoError(t, err)
	c, err := store.CreateContact(ctx, contact.Contact{OrganizationID: o.ID, OwnerID: u.ID, Name: "Jamie"})
	require.NoError(t, err)
	d, err := store.CreateDeal(ctx, deal.Deal{
		OrganizationID: o.ID, ContactID: c.ID, OwnerID: u.ID,
		Title: "Pipeline", Amount: decimal.NewFromInt(100), Currency: "USD",
		Status: deal.StatusNew, Stage: deal.StageQualification,
	})
	require.NoError(t, err)

	return fixture{
		store:   store,
		service: New(store, store, nil),
		actor:   policy.Actor{UserID: u.ID, OrganizationID: o.ID, Role: org.RoleMember},
		deal:    d,
	}
}

func TestCommentRequiresPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Comment(ctx, f.actor, f.deal.ID, nil)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeValidation, svcErr.Code)

	// An empty payload object is still a payload.
	created, err := f.service.Comment(ctx, f.actor, f.deal.ID, map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, activity.TypeComment, created.Type)
}

func TestCommentUnknownDeal(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Comment(context.Background(), f.actor, 9999, map[string]interface{}{"body": "hi"})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeNotFound, svcErr.Code)
}
