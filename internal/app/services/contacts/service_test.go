package contacts

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

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
	admin   user.User
	member  user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	admin, err := store.CreateUser(ctx, user.User{Email: "admin@crm.test", HashedPassword: "x"})
	require.NoError(t, err)
	member, err := store.CreateUser(ctx, user.User{Email: "member@crm.test", HashedPassword: "x"})
	require.NoError(t, err)
	o, err := store.CreateOrganization(ctx, org.Organization{Name: "CRM Co"})
	require.NoError(t, err)
	_, err = store.AddMember(ctx, org.Membership{OrganizationID: o.ID, UserID: admin.ID, Role: org.RoleAdmin})
	require.NoError(t, err)
	_, err = store.AddMember(ctx, org.Membership{OrganizationID: o.ID, UserID: member.ID, Role: org.RoleMember})
	require.NoError(t, err)

	return fixture{store: store, service: New(store, store, nil), org: o, admin: admin, member: member}
}

func (f fixture) actor(u user.User, role org.Role) policy.Actor {
	return policy.Actor{UserID: u.ID, OrganizationID: f.org.ID, Role: role}
}

func TestCreateContactDefaultsOwner(t *testing.T) {
	f := newFixture(t)

	c, err := f.service.Create(context.Background(), f.actor(f.member, org.RoleMember), CreateInput{Name: "Dana"})
	require.NoError(t, err)
	require.Equal(t, f.member.ID, c.OwnerID)
	require.Equal(t, f.org.ID, c.OrganizationID)
}

func TestMemberCannotAssignOtherOwner(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), f.actor(f.member, org.RoleMember), CreateInput{
		Name:    "Dana",
		OwnerID: f.admin.ID,
	})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeForbidden, svcErr.Code)
}

func TestAdminAssignsOwnerMustBeMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.service.Create(ctx, f.actor(f.admin, org.RoleAdmin), CreateInput{
		Name:    "Dana",
		OwnerID: f.member.ID,
	})
	require.NoError(t, err)
	require.Equal(t, f.member.ID, c.OwnerID)

	_, err = f.service.Create(ctx, f.actor(f.admin, org.RoleAdmin), CreateInput{
		Name:    "Ghost",
		OwnerID: 12345,
	})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeValidation, svcErr.Code)
}

func TestListDropsOwnerFilterForMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.actor(f.admin, org.RoleAdmin), CreateInput{Name: "Admin contact"})
	require.NoError(t, err)
	_, err = f.service.Create(ctx, f.actor(f.member, org.RoleMember), CreateInput{Name: "Member contact"})
	require.NoError(t, err)

	filtered, err := f.service.List(ctx, f.actor(f.admin, org.RoleAdmin), contact.Filter{OwnerID: f.admin.ID})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "Admin contact", filtered[0].Name)

	all, err := f.service.List(ctx, f.actor(f.member, org.RoleMember), contact.Filter{OwnerID: f.admin.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)

	all, err = f.service.List(ctx, f.actor(f.member, org.RoleMember), contact.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSearchMatchesNameOrEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.actor(f.admin, org.RoleAdmin)

	_, err := f.service.Create(ctx, actor, CreateInput{Name: "Alice Johnson", Email: "alice@corp.test"})
	require.NoError(t, err)
	_, err = f.service.Create(ctx, actor, CreateInput{Name: "Bob", Email: "bob@johnson.test"})
	require.NoError(t, err)

	found, err := f.service.List(ctx, actor, contact.Filter{Search: "johnson"})
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = f.service.List(ctx, actor, contact.Filter{Search: "alice"})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestDeleteContactBlockedByDeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.actor(f.admin, org.RoleAdmin)

	c, err := f.service.Create(ctx, actor, CreateInput{Name: "Busy"})
	require.NoError(t, err)
	_, err = f.store.CreateDeal(ctx, deal.Deal{
		OrganizationID: f.org.ID, ContactID: c.ID, OwnerID: f.admin.ID,
		Title: "Open deal", Amount: decimal.NewFromInt(5), Currency: "USD",
		Status: deal.StatusNew, Stage: deal.StageQualification,
	})
	require.NoError(t, err)

	err = f.service.Delete(ctx, actor, c.ID)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeConflict, svcErr.Code)
}

func TestDeleteContactByMemberOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.service.Create(ctx, f.actor(f.admin, org.RoleAdmin), CreateInput{Name: "Admin owned"})
	require.NoError(t, err)

	err = f.service.Delete(ctx, f.actor(f.member, org.RoleMember), c.ID)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeForbidden, svcErr.Code)

	require.NoError(t, f.service.Delete(ctx, f.actor(f.admin, org.RoleAdmin), c.ID))

	err = f.service.Delete(ctx, f.actor(f.admin, org.RoleAdmin), c.ID)
	svcErr = errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeNotFound, svcErr.Code)
}
