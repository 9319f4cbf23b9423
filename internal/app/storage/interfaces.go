// Package storage defines the persistence contracts used by the application
// services, plus the transactional scope they run inside.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/contact"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/task"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/user"
)

// ErrNotFound is returned when the requested row does not exist or falls
// outside the requested organization scope.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule
// (user email, organization name, membership pair).
var ErrDuplicate = errors.New("duplicate")

// UserStore persists user records.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id int64) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// OrganizationStore persists organizations and memberships.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, o org.Organization) (org.Organization, error)
	GetOrganization(ctx context.Context, id int64) (org.Organization, error)
	AddMember(ctx context.Context, m org.Membership) (org.Membership, error)
	GetMember(ctx context.Context, organizationID, userID int64) (org.Membership, error)
	ListMembershipsForUser(ctx context.Context, userID int64) ([]org.UserMembership, error)
}

// ContactStore persists contacts.
type ContactStore interface {
	CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error)
	GetContact(ctx context.Context, organizationID, id int64) (contact.Contact, error)
	ListContacts(ctx context.Context, organizationID int64, f contact.Filter) ([]contact.Contact, error)
	DeleteContact(ctx context.Context, organizationID, id int64) error
	ContactHasDeals(ctx context.Context, contactID int64) (bool, error)
}

// DealStore persists deals and serves the analytics aggregates.
type DealStore interface {
	CreateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error)
	UpdateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error)
	GetDeal(ctx context.Context, organizationID, id int64) (deal.Deal, error)
	ListDeals(ctx context.Context, organizationID int64, f deal.Filter) ([]deal.Deal, error)

	SummarizeByStatus(ctx context.Context, organizationID int64) ([]deal.StatusTotal, error)
	AverageWonAmount(ctx context.Context, organizationID int64) (*decimal.Decimal, error)
	CountDealsCreatedSince(ctx context.Context, organizationID int64, cutoff time.Time) (int, error)
	FunnelCounts(ctx context.Context, organizationID int64) ([]deal.StageStatusCount, error)
}

// TaskStore persists tasks. Listing scopes through the parent deal's
// organization.
type TaskStore interface {
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)
	GetTask(ctx context.Context, id int64) (task.Task, error)
	UpdateTask(ctx context.Context, t task.Task) (task.Task, error)
	ListTasks(ctx context.Context, organizationID int64, f task.Filter) ([]task.Task, error)
}

// ActivityStore persists the append-only deal audit log.
type ActivityStore interface {
	CreateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error)
	ListActivities(ctx context.Context, dealID int64) ([]activity.Activity, error)
}

// Stores bundles every persistence contract. A TxRunner hands a
// transaction-scoped Stores to its callback.
type Stores struct {
	Users         UserStore
	Organizations OrganizationStore
	Contacts      ContactStore
	Deals         DealStore
	Tasks         TaskStore
	Activities    ActivityStore
}

// TxRunner runs a function inside a single transactional scope: every store
// operation performed through the callback's Stores observes one consistent
// snapshot and commits atomically, or rolls back wholesale on error.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}
