// Package tasks implements deal to-do management.
package tasks

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/task"
	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Service manages tasks attached to deals.
type Service struct {
	store storage.TaskStore
	deals storage.DealStore
	tx    storage.TxRunner
	log   *logger.Logger
}

// New constructs a tasks service.
func New(store storage.TaskStore, deals storage.DealStore, tx storage.TxRunner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tasks")
	}
	return &Service{store: store, deals: deals, tx: tx, log: log}
}

// CreateInput is the caller-provided part of a new task.
type CreateInput struct {
	DealID      int64
	Title       string
	Description string
	DueDate     time.Time
}

// Create validates and stores a task, appending the task_created audit
// entry to the parent deal in the same transaction. The due date is
// normalized to the start of its UTC day and may not lie in the past.
func (s *Service) Create(ctx context.Context, actor policy.Actor, in CreateInput) (task.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return task.Task{}, errors.Validation("task title is required")
	}
	dueDate, err := normalizeDueDate(in.DueDate)
	if err != nil {
		return task.Task{}, err
	}

	var created task.Task
	err = s.tx.InTx(ctx, func(stores storage.Stores) error {
		d, err := stores.Deals.GetDeal(ctx, actor.OrganizationID, in.DealID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.NotFound("deal not found")
			}
			return err
		}
		if !policy.CanActOnResource(actor.Role, actor.UserID, d.OwnerID) {
			return errors.Forbidden("cannot add a task to a deal owned by someone else")
		}

		created, err = stores.Tasks.CreateTask(ctx, task.Task{
			DealID:      in.DealID,
			Title:       title,
			Description: strings.TrimSpace(in.Description),
			DueDate:     dueDate,
		})
		if err != nil {
			return err
		}

		_, err = stores.Activities.CreateActivity(ctx, activity.Activity{
			DealID:   in.DealID,
			AuthorID: actor.UserID,
			Type:     activity.TypeTaskCreated,
			Payload:  map[string]interface{}{"task_id": created.ID, "title": created.Title},
		})
		return err
	})
	if err != nil {
		return task.Task{}, err
	}

	s.log.WithField("task_id", created.ID).
		WithField("deal_id", created.DealID).
		Info("task created")
	return created, nil
}

// UpdateInput carries the patchable task fields. Nil leaves a field as is.
type UpdateInput struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	IsDone      *bool
}

// Update applies a partial update after confirming the task's parent deal
// sits in the actor's organization.
func (s *Service) Update(ctx context.Context, actor policy.Actor, id int64, in UpdateInput) (task.Task, error) {
	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return task.Task{}, errors.NotFound("task not found")
		}
		return task.Task{}, err
	}

	d, err := s.deals.GetDeal(ctx, actor.OrganizationID, current.DealID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return task.Task{}, errors.NotFound("task not found")
		}
		return task.Task{}, err
	}
	if !policy.CanActOnResource(actor.Role, actor.UserID, d.OwnerID) {
		return task.Task{}, errors.Forbidden("cannot modify a task on a deal owned by someone else")
	}

	next := current
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return task.Task{}, errors.Validation("task title is required")
		}
		next.Title = title
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.DueDate != nil {
		dueDate, err := normalizeDueDate(*in.DueDate)
		if err != nil {
			return task.Task{}, err
		}
		next.DueDate = dueDate
	}
	if in.IsDone != nil {
		next.IsDone = *in.IsDone
	}

	updated, err := s.store.UpdateTask(ctx, next)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return task.Task{}, errors.NotFound("task not found")
		}
		return task.Task{}, err
	}

	s.log.WithField("task_id", updated.ID).
		WithField("deal_id", updated.DealID).
		WithField("is_done", updated.IsDone).
		Info("task updated")
	return updated, nil
}

// List returns the organization's tasks matching the filter, ordered by due
// date. A deal filter outside the organization yields an empty list rather
// than an error.
func (s *Service) List(ctx context.Context, actor policy.Actor, f task.Filter) ([]task.Task, error) {
	return s.store.ListTasks(ctx, actor.OrganizationID, f)
}

// normalizeDueDate snaps the instant to the start of its UTC day and
// rejects days already behind today.
func normalizeDueDate(t time.Time) (time.Time, error) {
	if t.IsZero() {
		return time.Time{}, errors.Validation("due date is required")
	}
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(today) {
		return time.Time{}, errors.Validation("due date cannot be in the past")
	}
	return day, nil
}
