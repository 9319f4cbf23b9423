// Package task holds the task domain model.
package task

import "time"

// Task is a to-do item attached to a deal. Due dates are entered as calendar
// days and stored as the start of that UTC day.
type Task struct {
	ID          int64     `json:"id"`
	DealID      int64     `json:"deal_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date"`
	IsDone      bool      `json:"is_done"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows a task listing. Zero time bounds are unbounded.
type Filter struct {
	DealID    int64
	OnlyOpen  bool
	DueBefore time.Time
	DueAfter  time.Time
}
