// Package postgres implements the storage interfaces on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/contact"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/task"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/user"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
)

// Store implements every storage interface against a PostgreSQL database.
// Inside a transaction the same Store type runs over the sqlx.Tx instead of
// the pool.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.OrganizationStore = (*Store)(nil)
var _ storage.ContactStore = (*Store)(nil)
var _ storage.DealStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.ActivityStore = (*Store)(nil)
var _ storage.TxRunner = (*Store)(nil)

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Open connects to the database at url and verifies the connection.
func Open(url string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
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

// InTx runs fn inside a database transaction.
func (s *Store) InTx(ctx context.Context, fn func(storage.Stores) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	view := &Store{q: tx}
	if err := fn(view.Stores()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return storage.ErrDuplicate
	}
	return err
}

// UserStore implementation ----------------------------------------------------

type userRow struct {
	ID             int64     `db:"id"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"hashed_password"`
	Name           string    `db:"name"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r userRow) toDomain() user.User {
	return user.User{
		ID:             r.ID,
		Email:          r.Email,
		HashedPassword: r.HashedPassword,
		Name:           r.Name,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	const query = `
		INSERT INTO users (email, hashed_password, name)
		VALUES ($1, $2, $3)
		RETURNING id, email, hashed_password, name, created_at`

	var row userRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, u.Email, u.HashedPassword, u.Name); err != nil {
		return user.User{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (user.User, error) {
	const query = `
		SELECT id, email, hashed_password, name, created_at
		FROM users WHERE id = $1`

	var row userRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, id); err != nil {
		return user.User{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	const query = `
		SELECT id, email, hashed_password, name, created_at
		FROM users WHERE lower(email) = lower($1)`

	var row userRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, email); err != nil {
		return user.User{}, mapErr(err)
	}
	return row.toDomain(), nil
}

// OrganizationStore implementation --------------------------------------------

type orgRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) CreateOrganization(ctx context.Context, o org.Organization) (org.Organization, error) {
	const query = `
		INSERT INTO organizations (name)
		VALUES ($1)
		RETURNING id, name, created_at`

	var row orgRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, o.Name); err != nil {
		return org.Organization{}, mapErr(err)
	}
	return org.Organization(row), nil
}

func (s *Store) GetOrganization(ctx context.Context, id int64) (org.Organization, error) {
	const query = `SELECT id, name, created_at FROM organizations WHERE id = $1`

	var row orgRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, id); err != nil {
		return org.Organization{}, mapErr(err)
	}
	return org.Organization(row), nil
}

type membershipRow struct {
	ID             int64     `db:"id"`
	OrganizationID int64     `db:"organization_id"`
	UserID         int64     `db:"user_id"`
	Role           string    `db:"role"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r membershipRow) toDomain() org.Membership {
	return org.Membership{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		UserID:         r.UserID,
		Role:           org.Role(r.Role),
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Store) AddMember(ctx context.Context, m org.Membership) (org.Membership, error) {
	const query = `
		INSERT INTO memberships (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, organization_id, user_id, role, created_at`

	var row membershipRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, m.OrganizationID, m.UserID, string(m.Role)); err != nil {
		return org.Membership{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetMember(ctx context.Context, organizationID, userID int64) (org.Membership, error) {
	const query = `
		SELECT id, organization_id, user_id, role, created_at
		FROM memberships WHERE organization_id = $1 AND user_id = $2`

	var row membershipRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, organizationID, userID); err != nil {
		return org.Membership{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListMembershipsForUser(ctx context.Context, userID int64) ([]org.UserMembership, error) {
	const query = `
		SELECT o.id AS org_id, o.name AS org_name, o.created_at AS org_created_at, m.role
		FROM memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY o.created_at, o.id`

	var rows []struct {
		OrgID        int64     `db:"org_id"`
		OrgName      string    `db:"org_name"`
		OrgCreatedAt time.Time `db:"org_created_at"`
		Role         string    `db:"role"`
	}
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, userID); err != nil {
		return nil, mapErr(err)
	}

	result := make([]org.UserMembership, 0, len(rows))
	for _, r := range rows {
		result = append(result, org.UserMembership{
			Organization: org.Organization{ID: r.OrgID, Name: r.OrgName, CreatedAt: r.OrgCreatedAt},
			Role:         org.Role(r.Role),
		})
	}
	return result, nil
}

// ContactStore implementation -------------------------------------------------

type contactRow struct {
	ID             int64          `db:"id"`
	OrganizationID int64          `db:"organization_id"`
	OwnerID        int64          `db:"owner_id"`
	Name           string         `db:"name"`
	Email          sql.NullString `db:"email"`
	Phone          sql.NullString `db:"phone"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r contactRow) toDomain() contact.Contact {
	return contact.Contact{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		OwnerID:        r.OwnerID,
		Name:           r.Name,
		Email:          r.Email.String,
		Phone:          r.Phone.String,
		CreatedAt:      r.CreatedAt,
	}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	const query = `
		INSERT INTO contacts (organization_id, owner_id, name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, organization_id, owner_id, name, email, phone, created_at`

	var row contactRow
	err := sqlx.GetContext(ctx, s.q, &row, query,
		c.OrganizationID, c.OwnerID, c.Name, toNullString(c.Email), toNullString(c.Phone))
	if err != nil {
		return contact.Contact{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetContact(ctx context.Context, organizationID, id int64) (contact.Contact, error) {
	const query = `
		SELECT id, organization_id, owner_id, name, email, phone, created_at
		FROM contacts WHERE organization_id = $1 AND id = $2`

	var row contactRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, organizationID, id); err != nil {
		return contact.Contact{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListContacts(ctx context.Context, organizationID int64, f contact.Filter) ([]contact.Contact, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, organization_id, owner_id, name, email, phone, created_at
		FROM contacts WHERE organization_id = $1`)
	args := []interface{}{organizationID}

	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+search+"%")
		fmt.Fprintf(&sb, " AND (name ILIKE $%d OR email ILIKE $%d)", len(args), len(args))
	}
	if f.OwnerID != 0 {
		args = append(args, f.OwnerID)
		fmt.Fprintf(&sb, " AND owner_id = $%d", len(args))
	}

	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		args = append(args, f.PageSize, (page-1)*f.PageSize)
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var rows []contactRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, sb.String(), args...); err != nil {
		return nil, mapErr(err)
	}

	result := make([]contact.Contact, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteContact(ctx context.Context, organizationID, id int64) error {
	const query = `DELETE FROM contacts WHERE organization_id = $1 AND id = $2`

	res, err := s.q.ExecContext(ctx, query, organizationID, id)
	if err != nil {
		return mapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ContactHasDeals(ctx context.Context, contactID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM deals WHERE contact_id = $1)`

	var exists bool
	if err := sqlx.GetContext(ctx, s.q, &exists, query, contactID); err != nil {
		return false, mapErr(err)
	}
	return exists, nil
}

// DealStore implementation ----------------------------------------------------

type dealRow struct {
	ID             int64           `db:"id"`
	OrganizationID int64           `db:"organization_id"`
	ContactID      int64           `db:"contact_id"`
	OwnerID        int64           `db:"owner_id"`
	Title          string          `db:"title"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	Status         string          `db:"status"`
	Stage          string          `db:"stage"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r dealRow) toDomain() deal.Deal {
	return deal.Deal{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		ContactID:      r.ContactID,
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Status:         deal.Status(r.Status),
		Stage:          deal.Stage(r.Stage),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const dealColumns = `id, organization_id, contact_id, owner_id, title, amount, currency, status, stage, created_at, updated_at`

func (s *Store) CreateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error) {
	const query = `
		INSERT INTO deals (organization_id, contact_id, owner_id, title, amount, currency, status, stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + dealColumns

	var row dealRow
	err := sqlx.GetContext(ctx, s.q, &row, query,
		d.OrganizationID, d.ContactID, d.OwnerID, d.Title, d.Amount, d.Currency,
		string(d.Status), string(d.Stage))
	if err != nil {
		return deal.Deal{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error) {
	const query = `
		UPDATE deals
		SET owner_id = $2, title = $3, amount = $4, currency = $5, status = $6, stage = $7, updated_at = now()
		WHERE id = $1
		RETURNING ` + dealColumns

	var row dealRow
	err := sqlx.GetContext(ctx, s.q, &row, query,
		d.ID, d.OwnerID, d.Title, d.Amount, d.Currency, string(d.Status), string(d.Stage))
	if err != nil {
		return deal.Deal{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetDeal(ctx context.Context, organizationID, id int64) (deal.Deal, error) {
	const query = `SELECT ` + dealColumns + ` FROM deals WHERE organization_id = $1 AND id = $2`

	var row dealRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, organizationID, id); err != nil {
		return deal.Deal{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListDeals(ctx context.Context, organizationID int64, f deal.Filter) ([]deal.Deal, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + dealColumns + ` FROM deals WHERE organization_id = $1`)
	args := []interface{}{organizationID}

	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, pq.Array(statuses))
		fmt.Fprintf(&sb, " AND status = ANY($%d)", len(args))
	}
	if f.Stage != "" {
		args = append(args, string(f.Stage))
		fmt.Fprintf(&sb, " AND stage = $%d", len(args))
	}
	if f.MinAmount != nil {
		args = append(args, *f.MinAmount)
		fmt.Fprintf(&sb, " AND amount >= $%d", len(args))
	}
	if f.MaxAmount != nil {
		args = append(args, *f.MaxAmount)
		fmt.Fprintf(&sb, " AND amount <= $%d", len(args))
	}
	if f.OwnerID != 0 {
		args = append(args, f.OwnerID)
		fmt.Fprintf(&sb, " AND owner_id = $%d", len(args))
	}

	// Order column is restricted to a fixed whitelist; never interpolate
	// caller input.
	orderBy := deal.OrderByCreatedAt
	switch f.OrderBy {
	case deal.OrderByUpdatedAt, deal.OrderByAmount, deal.OrderByTitle:
		orderBy = f.OrderBy
	}
	direction := "ASC"
	if f.Desc {
		direction = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s, id %s", orderBy, direction, direction)

	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		args = append(args, f.PageSize, (page-1)*f.PageSize)
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var rows []dealRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, sb.String(), args...); err != nil {
		return nil, mapErr(err)
	}

	result := make([]deal.Deal, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) SummarizeByStatus(ctx context.Context, organizationID int64) ([]deal.StatusTotal, error) {
	const query = `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		FROM deals WHERE organization_id = $1
		GROUP BY status`

	var rows []struct {
		Status string          `db:"status"`
		Count  int             `db:"count"`
		Amount decimal.Decimal `db:"amount"`
	}
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, organizationID); err != nil {
		return nil, mapErr(err)
	}

	byStatus := make(map[deal.Status]deal.StatusTotal, len(rows))
	for _, r := range rows {
		byStatus[deal.Status(r.Status)] = deal.StatusTotal{
			Status: deal.Status(r.Status),
			Count:  r.Count,
			Amount: r.Amount,
		}
	}
	result := make([]deal.StatusTotal, 0, len(byStatus))
	for _, status := range deal.Statuses() {
		if t, ok := byStatus[status]; ok {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *Store) AverageWonAmount(ctx context.Context, organizationID int64) (*decimal.Decimal, error) {
	const query = `SELECT AVG(amount) FROM deals WHERE organization_id = $1 AND status = 'won'`

	var avg decimal.NullDecimal
	if err := sqlx.GetContext(ctx, s.q, &avg, query, organizationID); err != nil {
		return nil, mapErr(err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Decimal, nil
}

func (s *Store) CountDealsCreatedSince(ctx context.Context, organizationID int64, cutoff time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM deals WHERE organization_id = $1 AND created_at >= $2`

	var count int
	if err := sqlx.GetContext(ctx, s.q, &count, query, organizationID, cutoff); err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

func (s *Store) FunnelCounts(ctx context.Context, organizationID int64) ([]deal.StageStatusCount, error) {
	const query = `
		SELECT stage, status, COUNT(*) AS count
		FROM deals WHERE organization_id = $1
		GROUP BY stage, status`

	var rows []struct {
		Stage  string `db:"stage"`
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, organizationID); err != nil {
		return nil, mapErr(err)
	}

	counts := make(map[deal.Stage]map[deal.Status]int)
	for _, r := range rows {
		stage := deal.Stage(r.Stage)
		if counts[stage] == nil {
			counts[stage] = make(map[deal.Status]int)
		}
		counts[stage][deal.Status(r.Status)] = r.Count
	}
	result := make([]deal.StageStatusCount, 0, len(rows))
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

type taskRow struct {
	ID          int64          `db:"id"`
	DealID      int64          `db:"deal_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	DueDate     sql.NullTime   `db:"due_date"`
	IsDone      bool           `db:"is_done"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r taskRow) toDomain() task.Task {
	t := task.Task{
		ID:          r.ID,
		DealID:      r.DealID,
		Title:       r.Title,
		Description: r.Description.String,
		IsDone:      r.IsDone,
		CreatedAt:   r.CreatedAt,
	}
	if r.DueDate.Valid {
		t.DueDate = r.DueDate.Time
	}
	return t
}

func toNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

const taskColumns = `id, deal_id, title, description, due_date, is_done, created_at`

func (s *Store) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	const query = `
		INSERT INTO tasks (deal_id, title, description, due_date, is_done)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + taskColumns

	var row taskRow
	err := sqlx.GetContext(ctx, s.q, &row, query,
		t.DealID, t.Title, toNullString(t.Description), toNullTime(t.DueDate), t.IsDone)
	if err != nil {
		return task.Task{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (task.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	var row taskRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, id); err != nil {
		return task.Task{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateTask(ctx context.Context, t task.Task) (task.Task, error) {
	const query = `
		UPDATE tasks
		SET title = $2, description = $3, due_date = $4, is_done = $5
		WHERE id = $1
		RETURNING ` + taskColumns

	var row taskRow
	err := sqlx.GetContext(ctx, s.q, &row, query,
		t.ID, t.Title, toNullString(t.Description), toNullTime(t.DueDate), t.IsDone)
	if err != nil {
		return task.Task{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTasks(ctx context.Context, organizationID int64, f task.Filter) ([]task.Task, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT t.id, t.deal_id, t.title, t.description, t.due_date, t.is_done, t.created_at
		FROM tasks t
		JOIN deals d ON d.id = t.deal_id
		WHERE d.organization_id = $1`)
	args := []interface{}{organizationID}

	if f.DealID != 0 {
		args = append(args, f.DealID)
		fmt.Fprintf(&sb, " AND t.deal_id = $%d", len(args))
	}
	if f.OnlyOpen {
		sb.WriteString(" AND NOT t.is_done")
	}
	if !f.DueBefore.IsZero() {
		args = append(args, f.DueBefore)
		fmt.Fprintf(&sb, " AND t.due_date <= $%d", len(args))
	}
	if !f.DueAfter.IsZero() {
		args = append(args, f.DueAfter)
		fmt.Fprintf(&sb, " AND t.due_date >= $%d", len(args))
	}
	sb.WriteString(" ORDER BY t.due_date NULLS LAST, t.id")

	var rows []taskRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, sb.String(), args...); err != nil {
		return nil, mapErr(err)
	}

	result := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// ActivityStore implementation ------------------------------------------------

type activityRow struct {
	ID        int64         `db:"id"`
	DealID    int64         `db:"deal_id"`
	AuthorID  sql.NullInt64 `db:"author_id"`
	Type      string        `db:"type"`
	Payload   []byte        `db:"payload"`
	CreatedAt time.Time     `db:"created_at"`
}

func (r activityRow) toDomain() (activity.Activity, error) {
	a := activity.Activity{
		ID:        r.ID,
		DealID:    r.DealID,
		AuthorID:  r.AuthorID.Int64,
		Type:      activity.Type(r.Type),
		CreatedAt: r.CreatedAt,
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &a.Payload); err != nil {
			return activity.Activity{}, fmt.Errorf("decode activity payload: %w", err)
		}
	}
	return a, nil
}

func (s *Store) CreateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return activity.Activity{}, fmt.Errorf("encode activity payload: %w", err)
	}
	author := sql.NullInt64{Int64: a.AuthorID, Valid: a.AuthorID != 0}

	const query = `
		INSERT INTO activities (deal_id, author_id, type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, deal_id, author_id, type, payload, created_at`

	var row activityRow
	if err := sqlx.GetContext(ctx, s.q, &row, query, a.DealID, author, string(a.Type), payload); err != nil {
		return activity.Activity{}, mapErr(err)
	}
	return row.toDomain()
}

func (s *Store) ListActivities(ctx context.Context, dealID int64) ([]activity.Activity, error) {
	const query = `
		SELECT id, deal_id, author_id, type, payload, created_at
		FROM activities WHERE deal_id = $1
		ORDER BY created_at, id`

	var rows []activityRow
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, dealID); err != nil {
		return nil, mapErr(err)
	}

	result := make([]activity.Activity, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}
