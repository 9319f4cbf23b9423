// Package activity holds the append-only deal audit log model.
package activity

import "time"

// Type classifies an activity entry.
type Type string

const (
	TypeComment       Type = "comment"
	TypeStatusChanged Type = "status_changed"
	TypeStageChanged  Type = "stage_changed"
	TypeTaskCreated   Type = "task_created"
	TypeSystem        Type = "system"
)

// Valid reports whether the type is one of the closed set.
func (t Type) Valid() bool {
	switch t {
	case TypeComment, TypeStatusChanged, TypeStageChanged, TypeTaskCreated, TypeSystem:
		return true
	}
	return false
}

// Activity is an immutable log entry attached to a deal. Entries are never
// updated or deleted except through the parent deal's cascade.
type Activity struct {
	ID        int64                  `json:"id"`
	DealID    int64                  `json:"deal_id"`
	AuthorID  int64                  `json:"author_id,omitempty"`
	Type      Type                   `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}
