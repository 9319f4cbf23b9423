// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/contact"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/task"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/user"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
)

// Store keeps every entity in mutex-guarded maps.
type Store struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	nextID      int64
	users       map[int64]user.User
	orgs        map[int64]org.Organization
	memberships map[int64]org.Membership
	contacts    map[int64]contact.Contact
	deals       map[int64]deal.Deal
	tasks       map[int64]task.Task
	activities  map[int64]activity.Activity
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.OrganizationStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)
var _ storage.DealStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.ActivityStore = (*Store)(nil)
var _ storage.TxRunner = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		users:       make(map[int64]user.User),
		orgs:        make(map[int64]org.Organization),
		memberships: make(map[int64]org.Membership),
		contacts:    make(map[int64]contact.Contact),
		deals:       make(map[int64]deal.Deal),
		tasks:       make(map[int64]task.Task),
		activities:  make(map[int64]activity.Activity),
	}
}

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Stores returns the store bundled behind every persistence contract.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Users:         s,
		Organizations: s,
		Contacts:      s,
		Deals:         s,
		Tasks:         s,
		Activities:    s,
	}
}

// InTx serializes transactional callbacks against each other. Services
// validate before writing, so a failed callback has performed no mutation.
func (s *Store) InTx(_ context.Context, fn func(storage.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s.Stores())
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return user.User{}, storage.ErrDuplicate
		}
	}

	u.ID = s.nextIDLocked()
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

// OrganizationStore implementation --------------------------------------------

func (s *Store) CreateOrganization(_ context.Context, o org.Organization) (org.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orgs {
		if existing.Name == o.Name {
			return org.Organization{}, storage.ErrDuplicate
		}
	}

	o.ID = s.nextIDLocked()
	o.CreatedAt = time.Now().UTC()
	s.orgs[o.ID] = o
	return o, nil
}

func (s *Store) GetOrganization(_ context.Context, id int64) (org.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orgs[id]
	if !ok {
		return org.Organization{}, storage.ErrNotFound
	}
	return o, nil
}

func (s *Store) AddMember(_ context.Context, m org.Membership) (org.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.memberships {
		if existing.OrganizationID == m.OrganizationID && existing.UserID == m.UserID {
			return org.Membership{}, storage.ErrDuplicate
		}
	}

	m.ID = s.nextIDLocked()
	m.CreatedAt = time.Now().UTC()
	s.memberships[m.ID] = m
	return m, nil
}

func (s *Store) GetMember(_ context.Context, organizationID, userID int64) (org.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.OrganizationID == organizationID && m.UserID == userID {
			return m, nil
		}
	}
	return org.Membership{}, storage.ErrNotFound
}

func (s *Store) ListMembershipsForUser(_ context.Context, userID int64) ([]org.UserMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]org.UserMembership, 0)
	for _, m := range s.memberships {
		if m.UserID != userID {
			continue
		}
		o, ok := s.orgs[m.OrganizationID]
		if !ok {
			continue
		}
		result = append(result, org.UserMembership{Organization: o, Role: m.Role})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Organization.CreatedAt.Equal(result[j].Organization.CreatedAt) {
			return result[i].Organization.ID < result[j].Organization.ID
		}
		return result[i].Organization.CreatedAt.Before(result[j].Organization.CreatedAt)
	})
	return result, nil
}

// ContactStore implementation -------------------------------------------------

func (s *Store) CreateContact(_ context.Context, c contact.Contact) (contact.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextIDLocked()
	c.CreatedAt = time.Now().UTC()
	s.contacts[c.ID] = c
	return c, nil
}

func (s *Store) GetContact(_ context.Context, organizationID, id int64) (contact.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok || c.OrganizationID != organizationID {
		return contact.Contact{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListContacts(_ context.Context, organizationID int64, f contact.Filter) ([]contact.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matches := make([]contact.Contact, 0)
	for _, c := range s.contacts {
		if c.OrganizationID != organizationID {
			continue
		}
		if f.OwnerID != 0 && c.OwnerID != f.OwnerID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Email), search) {
			continue
		}
		matches = append(matches, c)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return paginate(matches, f.Page, f.PageSize), nil
}

func (s *Store) DeleteContact(_ context.Context, organizationID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.OrganizationID != organizationID {
		return storage.ErrNotFound
	}
	delete(s.contacts, id)
	return nil
}

func (s *Store) ContactHasDeals(_ context.Context, contactID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.deals {
		if d.ContactID == contactID {
			return true, nil
		}
	}
	return false, nil
}

// DealStore implementation ----------------------------------------------------

func (s *Store) CreateDeal(_ context.Context, d deal.Deal) (deal.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = s.nextIDLocked()
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.deals[d.ID] = d
	return d, nil
}

func (s *Store) UpdateDeal(_ context.Context, d deal.Deal) (deal.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.deals[d.ID]
	if !ok {
		return deal.Deal{}, storage.ErrNotFound
	}

	d.OrganizationID = original.OrganizationID
	d.ContactID = original.ContactID
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.deals[d.ID] = d
	return d, nil
}

func (s *Store) GetDeal(_ context.Context, organizationID, id int64) (deal.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deals[id]
	if !ok || d.OrganizationID != organizationID {
		return deal.Deal{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *Store) ListDeals(_ context.Context, organizationID int64, f deal.Filter) ([]deal.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]deal.Deal, 0)
	for _, d := range s.deals {
		if d.OrganizationID != organizationID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, d.Status) {
			continue
		}
		if f.Stage != "" && d.Stage != f.Stage {
			continue
		}
		if f.MinAmount != nil && d.Amount.LessThan(*f.MinAmount) {
			continue
		}
		if f.MaxAmount != nil && d.Amount.GreaterThan(*f.MaxAmount) {
			continue
		}
		if f.OwnerID != 0 && d.OwnerID != f.OwnerID {
			continue
		}
		matches = append(matches, d)
	}

	sort.Slice(matches, func(i, j int) bool {
		less := dealLess(matches[i], matches[j], f.OrderBy)
		if f.Desc {
			return !less && !dealEqual(matches[i], matches[j], f.OrderBy)
		}
		return less
	})
	return paginate(matches, f.Page, f.PageSize), nil
}

func dealLess(a, b deal.Deal, orderBy string) bool {
	switch orderBy {
	case deal.OrderByAmount:
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.LessThan(b.Amount)
		}
	case deal.OrderByUpdatedAt:
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	case deal.OrderByTitle:
		if a.Title != b.Title {
			return a.Title < b.Title
		}
	default:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}

func dealEqual(a, b deal.Deal, orderBy string) bool {
	return !dealLess(a, b, orderBy) && !dealLess(b, a, orderBy)
}

func (s *Store) SummarizeByStatus(_ context.Context, organizationID int64) ([]deal.StatusTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[deal.Status]*deal.StatusTotal)
	for _, d := range s.deals {
		if d.OrganizationID != organizationID {
			continue
		}
		t, ok := totals[d.Status]
		if !ok {
			t = &deal.StatusTotal{Status: d.Status, Amount: decimal.Zero}
			totals[d.Status] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(d.Amount)
	}

	result := make([]deal.StatusTotal, 0, len(totals))
	for _, status := range deal.Statuses() {
		if t, ok := totals[status]; ok {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (s *Store) AverageWonAmount(_ context.Context, organizationID int64) (*decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	count := int64(0)
	for _, d := range s.deals {
		if d.OrganizationID != organizationID || d.Status != deal.StatusWon {
			continue
		}
		sum = sum.Add(d.Amount)
		count++
	}
	if count == 0 {
		return nil, nil
	}
	avg := sum.Div(decimal.NewFromInt(count))
	return &avg, nil
}

func (s *Store) CountDealsCreatedSince(_ context.Context, organizationID int64, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, d := range s.deals {
		if d.OrganizationID == organizationID && !d.CreatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *Store) FunnelCounts(_ context.Context, organizationID int64) ([]deal.StageStatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[deal.Stage]map[deal.Status]int)
	for _, d := range s.deals {
		if d.OrganizationID != organizationID {
			continue
		}
		if counts[d.Stage] == nil {
			counts[d.Stage] = make(map[deal.Status]int)
		}
		counts[d.Stage][d.Status]++
	}

	result := make([]deal.StageStatusCount, 0)
	for _, stage := range deal.Stages() {
		for _, status := range deal.Statuses() {
			if n := counts[stage][status]; n > 0 {
				result = append(result, deal.StageStatusCount{Stage: stage, Status: status, Count: n})
			}
		}
	}
	return result, nil
}

// TaskStore implementation ----------------------------------------------------

func (s *Store) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextIDLocked()
	t.CreatedAt = time.Now().UTC()
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) GetTask(_ context.Context, id int64) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tasks[t.ID]
	if !ok {
		return task.Task{}, storage.ErrNotFound
	}
	t.DealID = original.DealID
	t.CreatedAt = original.CreatedAt
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) ListTasks(_ context.Context, organizationID int64, f task.Filter) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]task.Task, 0)
	for _, t := range s.tasks {
		d, ok := s.deals[t.DealID]
		if !ok || d.OrganizationID != organizationID {
			continue
		}
		if f.DealID != 0 && t.DealID != f.DealID {
			continue
		}
		if f.OnlyOpen && t.IsDone {
			continue
		}
		if !f.DueBefore.IsZero() && t.DueDate.After(f.DueBefore) {
			continue
		}
		if !f.DueAfter.IsZero() && t.DueDate.Before(f.DueAfter) {
			continue
		}
		matches = append(matches, t)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DueDate.Equal(matches[j].DueDate) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].DueDate.Before(matches[j].DueDate)
	})
	return matches, nil
}

// ActivityStore implementation ------------------------------------------------

func (s *Store) CreateActivity(_ context.Context, a activity.Activity) (activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextIDLocked()
	a.CreatedAt = time.Now().UTC()
	a.Payload = clonePayload(a.Payload)
	s.activities[a.ID] = a
	return a, nil
}

func (s *Store) ListActivities(_ context.Context, dealID int64) ([]activity.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]activity.Activity, 0)
	for _, a := range s.activities {
		if a.DealID != dealID {
			continue
		}
		a.Payload = clonePayload(a.Payload)
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func containsStatus(list []deal.Status, s deal.Status) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func clonePayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
