package deals

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
	org     org.Organization
	owner   user.User
	member  user.User
	contact contact.Contact
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	ownerUser, err := store.CreateUser(ctx, user.User{Email: "owner@acme.test", HashedPassword: "x"})
	require.NoError(t, err)
	memberUser, err := store.CreateUser(ctx, user.User{Email: "member@acme.test", HashedPassword: "x"})
	require.NoError(t, err)

	o, err := store.CreateOrganization(ctx, org.Organization{Name: "Acme"})
	require.NoError(t, err)
	_, err = store.AddMember(ctx, org.Membership{OrganizationID: o.ID, UserID: ownerUser.ID, Role: org.RoleOwner})
	require.NoError(t, err)
	_, err = store.AddMember(ctx, org.Membership{OrganizationID: o.ID, UserID: memberUser.ID, Role: org.RoleMember})
	require.NoError(t, err)

	c, err := store.CreateContact(ctx, contact.Contact{OrganizationID: o.ID, OwnerID: ownerUser.ID, Name: "Jamie"})
	require.NoError(t, err)

	return fixture{
		store:   store,
		service: New(store, store, store, store, nil),
		org:     o,
		owner:   ownerUser,
		member:  memberUser,
		contact: c,
	}
}

func (f fixture) actor(u user.User, role org.Role) policy.Actor {
	return policy.Actor{UserID: u.ID, OrganizationID: f.org.ID, Role: role}
}

func TestCreateDealDefaults(t *testing.T) {
	f := newFixture(t)

	d, err := f.service.Create(context.Background(), f.actor(f.owner, org.RoleOwner), CreateInput{
		ContactID: f.contact.ID,
		Title:     "First deal",
		Amount:    decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	require.Equal(t, deal.StatusNew, d.Status)
	require.Equal(t, deal.StageQualification, d.Stage)
	require.Equal(t, "USD", d.Currency)
	require.Equal(t, f.owner.ID, d.OwnerID)
}

func TestCreateDealUnknownContact(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), f.actor(f.owner, org.RoleOwner), CreateInput{
		ContactID: 999,
		Title:     "Bad",
		Amount:    decimal.NewFromInt(1),
	})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeNotFound, svcErr.Code)
}

func TestUpdateDealDerivesActivities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.actor(f.owner, org.RoleOwner)

	d, err := f.service.Create(ctx, actor, CreateInput{
		ContactID: f.contact.ID, Title: "Pipeline", Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	stage := deal.StageProposal
	status := deal.StatusInProgress
	updated, err := f.service.Update(ctx, actor, d.ID, UpdateInput{Stage: &stage, Status: &status})
	require.NoError(t, err)
	require.Equal(t, deal.StageProposal, updated.Stage)
	require.Equal(t, deal.StatusInProgress, updated.Status)

	entries, err := f.store.ListActivities(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, activity.TypeStatusChanged, entries[0].Type)
	require.Equal(t, activity.TypeStageChanged, entries[1].Type)
	require.Equal(t, "qualification", entries[1].Payload["from"])
	require.Equal(t, "proposal", entries[1].Payload["to"])
}

func TestUpdateDealWonRequiresPositiveAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.actor(f.owner, org.RoleOwner)

	d, err := f.service.Create(ctx, actor, CreateInput{
		ContactID: f.contact.ID, Title: "Zero", Amount: decimal.Zero,
	})
	require.NoError(t, err)

	status := deal.StatusWon
	_, err = f.service.Update(ctx, actor, d.ID, UpdateInput{Status: &status})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeValidation, svcErr.Code)

	// The rejected update must leave no derived activities behind.
	entries, err := f.store.ListActivities(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, entries)

	amount := decimal.NewFromInt(10000)
	updated, err := f.service.Update(ctx, actor, d.ID, UpdateInput{Status: &status, Amount: &amount})
	require.NoError(t, err)
	require.Equal(t, deal.StatusWon, updated.Status)
}

func TestUpdateWonDealAmountWithoutStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.actor(f.owner, org.RoleOwner)

	d, err := f.service.Create(ctx, actor, CreateInput{
		ContactID: f.contact.ID, Title: "Closed", Amount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	status := deal.StatusWon
	_, err = f.service.Update(ctx, actor, d.ID, UpdateInput{Status: &status})
	require.NoError(t, err)

	// The positive-amount rule gates the transition to won only; a
	// later amount-only update on a won deal may go to zero.
	zero := decimal.Zero
	updated, err := f.service.Update(ctx, actor, d.ID, UpdateInput{Amount: &zero})
	require.NoError(t, err)
	require.Equal(t, deal.StatusWon, updated.Status)
	require.True(t, updated.Amount.IsZero())
}

func TestUpdateDealStageRetreat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.actor(f.owner, org.RoleOwner)

	d, err := f.service.Create(ctx, owner, CreateInput{
		ContactID: f.contact.ID, Title: "Retreat", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	forward := deal.StageNegotiation
	_, err = f.service.Update(ctx, owner, d.ID, UpdateInput{Stage: &forward})
	require.NoError(t, err)

	back := deal.StageProposal
	manager := f.actor(f.owner, org.RoleManager)
	_, err = f.service.Update(ctx, manager, d.ID, UpdateInput{Stage: &back})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeValidation, svcErr.Code)

	_, err = f.service.Update(ctx, owner, d.ID, UpdateInput{Stage: &back})
	require.NoError(t, err)
}

func TestMemberCannotTouchForeignDeal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.service.Create(ctx, f.actor(f.owner, org.RoleOwner), CreateInput{
		ContactID: f.contact.ID, Title: "Owned elsewhere", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	title := "hijack"
	_, err = f.service.Update(ctx, f.actor(f.member, org.RoleMember), d.ID, UpdateInput{Title: &title})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeForbidden, svcErr.Code)
}

func TestListDropsOwnerFilterForMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.actor(f.owner, org.RoleOwner), CreateInput{
		ContactID: f.contact.ID, Title: "Owner deal", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = f.service.Create(ctx, f.actor(f.member, org.RoleMember), CreateInput{
		ContactID: f.contact.ID, Title: "Member deal", Amount: decimal.NewFromInt(200),
	})
	require.NoError(t, err)

	filtered, err := f.service.List(ctx, f.actor(f.owner, org.RoleOwner), deal.Filter{OwnerID: f.owner.ID})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "Owner deal", filtered[0].Title)

	// A member's owner filter is dropped, not honored.
	all, err := f.service.List(ctx, f.actor(f.member, org.RoleMember), deal.Filter{OwnerID: f.owner.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
