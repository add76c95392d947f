// Package tasks implements the task operations available to a signed-in
// user. Every operation takes the acting identity explicitly, checks it
// against the sharing policy and only then touches the repository.
package tasks

import (
	"context"
	"errors"
	"iter"
	"log"
	"strings"
	"time"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/chepyr/go-task-share/internal/policy"
	"github.com/google/uuid"
)

// Operation names carried by errors.
const (
	OpCreate       = "create task"
	OpFind         = "find task"
	OpList         = "list tasks"
	OpEdit         = "edit task"
	OpDelete       = "delete task"
	OpShare        = "share task"
	OpSetPriority  = "set priority"
	OpCategorize   = "categorize task"
	OpMarkComplete = "mark complete"
)

type Repository interface {
	Create(ctx context.Context, task *models.Task) error
	FindByTitle(ctx context.Context, viewerID uuid.UUID, title string) (*models.Task, error)
	FindAllVisibleTo(ctx context.Context, viewerID uuid.UUID) iter.Seq2[*models.Task, error]
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, task *models.Task) error
	AddShare(ctx context.Context, taskID, userID uuid.UUID) error
}

// IdentityLookup resolves share recipients.
type IdentityLookup interface {
	LookupByUsername(ctx context.Context, username string) (*models.User, error)
}

type Service struct {
	tasks Repository
	users IdentityLookup

	// Notifier, when set, receives an Event after every successful change.
	Notifier Notifier

	now func() time.Time
}

func NewService(tasks Repository, users IdentityLookup) *Service {
	return &Service{
		tasks: tasks,
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput holds the fields of a new task. A nil Priority means none
// and an empty Category means None.
type CreateInput struct {
	Title       string
	Description string
	Deadline    *models.Date
	Priority    *int
	Category    string
	Reminder    bool
}

// EditInput holds the fields to overwrite. Nil fields are left unchanged;
// ClearDeadline removes the deadline.
type EditInput struct {
	Title         *string
	Description   *string
	Deadline      *models.Date
	ClearDeadline bool
	Reminder      *bool
}

func (s *Service) CreateTask(ctx context.Context, actor models.Identity, input CreateInput) (*models.Task, error) {
	if !actor.Authenticated() {
		return nil, &models.PermissionError{Op: OpCreate}
	}

	task, err := models.NewTask(actor.ID, input.Title, input.Description)
	if err != nil {
		return nil, annotate(OpCreate, err)
	}
	if task.Priority, err = models.PriorityFromLevel(input.Priority); err != nil {
		return nil, annotate(OpCreate, err)
	}
	if strings.TrimSpace(input.Category) != "" {
		if task.Category, err = models.ParseCategory(input.Category); err != nil {
			return nil, annotate(OpCreate, err)
		}
	}
	task.Deadline = input.Deadline
	task.Reminder = input.Reminder
	task.CreatedAt = s.now()
	task.UpdatedAt = task.CreatedAt

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, annotate(OpCreate, err)
	}
	s.notify(ctx, EventTaskCreated, task)
	return task, nil
}

// FindTask returns the task titled title that actor can view, preferring
// actor's own task over one shared with them.
func (s *Service) FindTask(ctx context.Context, actor models.Identity, title string) (*models.Task, error) {
	return s.lookup(ctx, OpFind, actor, title)
}

// Tasks yields every task actor owns or is shared on, in creation order.
func (s *Service) Tasks(ctx context.Context, actor models.Identity) iter.Seq2[*models.Task, error] {
	if !actor.Authenticated() {
		return func(yield func(*models.Task, error) bool) {
			yield(nil, &models.PermissionError{Op: OpList})
		}
	}
	return s.tasks.FindAllVisibleTo(ctx, actor.ID)
}

func (s *Service) ListTasks(ctx context.Context, actor models.Identity) ([]*models.Task, error) {
	tasks := []*models.Task{}
	for task, err := range s.Tasks(ctx, actor) {
		if err != nil {
			return nil, annotate(OpList, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Service) EditTask(ctx context.Context, actor models.Identity, title string, input EditInput) (*models.Task, error) {
	task, err := s.lookupMutable(ctx, OpEdit, actor, title, policy.CanMutate)
	if err != nil {
		return nil, err
	}

	updated := *task
	if input.Title != nil {
		if updated.Title, err = models.ValidateTitle(*input.Title); err != nil {
			return nil, annotate(OpEdit, err)
		}
	}
	if input.Description != nil {
		if err := models.ValidateDescription(*input.Description); err != nil {
			return nil, annotate(OpEdit, err)
		}
		updated.Description = *input.Description
	}
	switch {
	case input.ClearDeadline:
		updated.Deadline = nil
	case input.Deadline != nil:
		deadline := *input.Deadline
		updated.Deadline = &deadline
	}
	if input.Reminder != nil {
		updated.Reminder = *input.Reminder
	}

	return s.save(ctx, OpEdit, &updated)
}

// DeleteTask removes the task together with all of its shares.
func (s *Service) DeleteTask(ctx context.Context, actor models.Identity, title string) error {
	task, err := s.lookupMutable(ctx, OpDelete, actor, title, policy.CanMutate)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, task); err != nil {
		return annotate(OpDelete, err)
	}
	s.notify(ctx, EventTaskDeleted, task)
	return nil
}

// ShareTask grants recipientUsername read-only access. Sharing with a user
// who already has access changes nothing and is not an error.
func (s *Service) ShareTask(ctx context.Context, actor models.Identity, title, recipientUsername string) (*models.Task, error) {
	task, err := s.lookupMutable(ctx, OpShare, actor, title, policy.CanShare)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(recipientUsername)
	if username == "" {
		return nil, &models.ValidationError{Op: OpShare, Field: "recipient", Reason: "is required"}
	}
	recipient, err := s.users.LookupByUsername(ctx, username)
	if err != nil {
		return nil, annotate(OpShare, err)
	}
	if recipient.ID == task.OwnerID {
		return nil, &models.ValidationError{Op: OpShare, Field: "recipient", Reason: "cannot share a task with its owner"}
	}
	if task.IsSharedWith(recipient.ID) {
		return task, nil
	}

	if err := s.tasks.AddShare(ctx, task.ID, recipient.ID); err != nil {
		return nil, annotate(OpShare, err)
	}
	task.SharedWith = append(task.SharedWith, recipient.ID)
	s.notify(ctx, EventTaskShared, task)
	return task, nil
}

// SetPriority sets the priority to level, which must be in [1, 10]. A nil
// level clears the priority.
func (s *Service) SetPriority(ctx context.Context, actor models.Identity, title string, level *int) (*models.Task, error) {
	task, err := s.lookupMutable(ctx, OpSetPriority, actor, title, policy.CanMutate)
	if err != nil {
		return nil, err
	}
	priority, err := models.PriorityFromLevel(level)
	if err != nil {
		return nil, annotate(OpSetPriority, err)
	}
	updated := *task
	updated.Priority = priority
	return s.save(ctx, OpSetPriority, &updated)
}

func (s *Service) Categorize(ctx context.Context, actor models.Identity, title, category string) (*models.Task, error) {
	task, err := s.lookupMutable(ctx, OpCategorize, actor, title, policy.CanMutate)
	if err != nil {
		return nil, err
	}
	parsed, err := models.ParseCategory(category)
	if err != nil {
		return nil, annotate(OpCategorize, err)
	}
	updated := *task
	updated.Category = parsed
	return s.save(ctx, OpCategorize, &updated)
}

// MarkComplete toggles the completion flag: a pending task becomes
// complete and a complete task becomes pending again. The returned task
// carries the new state.
func (s *Service) MarkComplete(ctx context.Context, actor models.Identity, title string) (*models.Task, error) {
	task, err := s.lookupMutable(ctx, OpMarkComplete, actor, title, policy.CanMutate)
	if err != nil {
		return nil, err
	}
	updated := *task
	updated.Completed = !task.Completed
	return s.save(ctx, OpMarkComplete, &updated)
}

func (s *Service) save(ctx context.Context, op string, task *models.Task) (*models.Task, error) {
	task.UpdatedAt = s.now()
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, annotate(op, err)
	}
	s.notify(ctx, EventTaskUpdated, task)
	return task, nil
}

func (s *Service) lookup(ctx context.Context, op string, actor models.Identity, title string) (*models.Task, error) {
	if !actor.Authenticated() {
		return nil, &models.PermissionError{Op: op, Title: title}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &models.NotFoundError{Op: op, Kind: "task", Key: title}
	}
	task, err := s.tasks.FindByTitle(ctx, actor.ID, title)
	if err != nil {
		return nil, annotate(op, err)
	}
	if !policy.CanView(actor.ID, task) {
		return nil, &models.NotFoundError{Op: op, Kind: "task", Key: title}
	}
	return task, nil
}

func (s *Service) lookupMutable(
	ctx context.Context, op string, actor models.Identity, title string,
	allowed func(uuid.UUID, *models.Task) bool,
) (*models.Task, error) {
	task, err := s.lookup(ctx, op, actor, title)
	if err != nil {
		return nil, err
	}
	if !allowed(actor.ID, task) {
		return nil, &models.PermissionError{Op: op, Title: task.Title}
	}
	return task, nil
}

func (s *Service) notify(ctx context.Context, kind EventType, task *models.Task) {
	if s.Notifier == nil {
		return
	}
	event := Event{Type: kind, Task: task}
	if err := s.Notifier.Notify(ctx, event); err != nil {
		log.Printf("Failed to notify %s for task %s: %v", kind, task.ID, err)
	}
}

// annotate records op on typed errors that do not carry one yet.
func annotate(op string, err error) error {
	var (
		validation *models.ValidationError
		duplicate  *models.DuplicateTitleError
		notFound   *models.NotFoundError
		permission *models.PermissionError
	)
	switch {
	case errors.As(err, &validation):
		if validation.Op == "" {
			validation.Op = op
		}
	case errors.As(err, &duplicate):
		if duplicate.Op == "" {
			duplicate.Op = op
		}
	case errors.As(err, &notFound):
		if notFound.Op == "" {
			notFound.Op = op
		}
	case errors.As(err, &permission):
		if permission.Op == "" {
			permission.Op = op
		}
	}
	return err
}
