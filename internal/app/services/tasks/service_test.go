package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/contact"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/task"
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

	u, err := store.CreateUser(ctx, user.User{Email: "tasks@test.test", HashedPassword: "x"})
	require.NoError(t, err)
	o, err := store.CreateOrganization(ctx, org.Organization{Name: "Tasks Co"})
	require.NoError(t, err)
	_, err = store.AddMember(ctx, org.Membership{OrganizationID: o.ID, UserID: u.ID, Role: org.RoleOwner})
	require.NoError(t, err)
	c, err := store.CreateContact(ctx, contact.Contact{OrganizationID: o.ID, OwnerID: u.ID, Name: "C"})
	require.NoError(t, err)
	d, err := store.CreateDeal(ctx, deal.Deal{
		OrganizationID: o.ID, ContactID: c.ID, OwnerID: u.ID, Title: "D",
		Amount: decimal.NewFromInt(10), Currency: "USD",
		Status: deal.StatusNew, Stage: deal.StageQualification,
	})
	require.NoError(t, err)

	return fixture{
		store:   store,
		service: New(store, store, store, nil),
		actor:   policy.Actor{UserID: u.ID, OrganizationID: o.ID, Role: org.RoleOwner},
		deal:    d,
	}
}

func TestCreateTaskNormalizesDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := time.Now().UTC().Add(48*time.Hour + 7*time.Hour)
	created, err := f.service.Create(ctx, f.actor, CreateInput{
		DealID:  f.deal.ID,
		Title:   "Call back",
		DueDate: due,
	})
	require.NoError(t, err)
	require.Equal(t, 0, created.DueDate.Hour())
	require.Equal(t, 0, created.DueDate.Minute())
	require.Equal(t, time.UTC, created.DueDate.Location())
	require.False(t, created.IsDone)
}

func TestCreateTaskRejectsPastDueDate(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), f.actor, CreateInput{
		DealID:  f.deal.ID,
		Title:   "Too late",
		DueDate: time.Now().UTC().AddDate(0, 0, -2),
	})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeValidation, svcErr.Code)
}

func TestCreateTaskAppendsActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.actor, CreateInput{
		DealID:  f.deal.ID,
		Title:   "Prepare proposal",
		DueDate: time.Now().UTC().AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	entries, err := f.store.ListActivities(ctx, f.deal.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeTaskCreated, entries[0].Type)
	require.Equal(t, created.ID, entries[0].Payload["task_id"])
	require.Equal(t, "Prepare proposal", entries[0].Payload["title"])
}

func TestCreateTaskUnknownDeal(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), f.actor, CreateInput{
		DealID:  404,
		Title:   "Ghost",
		DueDate: time.Now().UTC().AddDate(0, 0, 1),
	})
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	require.Equal(t, errors.CodeNotFound, svcErr.Code)
}

func TestUpdateTaskCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, f.actor, CreateInput{
		DealID:  f.deal.ID,
		Title:   "Finish",
		DueDate: time.Now().UTC().AddDate(0, 0, 3),
	})
	require.NoError(t, err)

	done := true
	updated, err := f.service.Update(ctx, f.actor, created.ID, UpdateInput{IsDone: &done})
	require.NoError(t, err)
	require.True(t, updated.IsDone)

	open, err := f.service.List(ctx, f.actor, task.Filter{OnlyOpen: true})
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestListTasksOrderedByDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.actor, CreateInput{
		DealID: f.deal.ID, Title: "Later", DueDate: time.Now().UTC().AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	_, err = f.service.Create(ctx, f.actor, CreateInput{
		DealID: f.deal.ID, Title: "Sooner", DueDate: time.Now().UTC().AddDate(0, 0, 1),
	})
	require.NoError(t, err)

	list, err := f.service.List(ctx, f.actor, task.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Sooner", list[0].Title)
	require.Equal(t, "Later", list[1].Title)
}
