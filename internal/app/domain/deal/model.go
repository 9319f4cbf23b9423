// Package deal holds the deal domain model: the sales pipeline stage
// ordering, the outcome status set and the listing filters.
package deal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is a deal's outcome category. Statuses carry no ordering.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
)

// Statuses lists every valid status in declaration order. Analytics views
// zero-fill against this list.
func Statuses() []Status {
	return []Status{StatusNew, StatusInProgress, StatusWon, StatusLost}
}

// Valid reports whether the status is one of the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusWon, StatusLost:
		return true
	}
	return false
}

// Stage is a deal's position in the sales pipeline. Stages are totally
// ordered; moving to a lower order is a retreat.
type Stage string

const (
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosed        Stage = "closed"
)

var stageOrder = map[Stage]int{
	StageQualification: 1,
	StageProposal:      2,
	StageNegotiation:   3,
	StageClosed:        4,
}

// Stages lists every stage in ascending pipeline order.
func Stages() []Stage {
	return []Stage{StageQualification, StageProposal, StageNegotiation, StageClosed}
}

// Order returns the stage's position in the pipeline, 1-based. Zero for an
// unknown stage.
func (s Stage) Order() int { return stageOrder[s] }

// Valid reports whether the stage is one of the closed set.
func (s Stage) Valid() bool { return stageOrder[s] != 0 }

// Deal is a sales opportunity tied to one contact within one organization.
type Deal struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	ContactID      int64           `json:"contact_id"`
	OwnerID        int64           `json:"owner_id"`
	Title          string          `json:"title"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	Stage          Stage           `json:"stage"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Sortable listing columns. Unknown values fall back to OrderByCreatedAt.
const (
	OrderByCreatedAt = "created_at"
	OrderByUpdatedAt = "updated_at"
	OrderByAmount    = "amount"
	OrderByTitle     = "title"
)

// Filter narrows a deal listing. Page is 1-indexed. Nil amount bounds are
// unbounded; OwnerID zero means no owner filter.
type Filter struct {
	Statuses  []Status
	Stage     Stage
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	OwnerID   int64
	OrderBy   string
	Desc      bool
	Page      int
	PageSize  int
}

// StatusTotal is one row of the per-status summary aggregate.
type StatusTotal struct {
	Status Status
	Count  int
	Amount decimal.Decimal
}

// StageStatusCount is one row of the funnel aggregate.
type StageStatusCount struct {
	Stage  Stage
	Status Status
	Count  int
}
