package tasks

import (
	"context"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/google/uuid"
)

type EventType string

const (
	EventTaskCreated EventType = "task_created"
	EventTaskUpdated EventType = "task_updated"
	EventTaskDeleted EventType = "task_deleted"
	EventTaskShared  EventType = "task_shared"
	EventTaskDue     EventType = "task_due"
)

// Event describes a change to a task after it has been committed.
type Event struct {
	Type EventType
	Task *models.Task
}

// Recipients returns the owner followed by every user the task is shared
// with.
func (e Event) Recipients() []uuid.UUID {
	if e.Task == nil {
		return nil
	}
	recipients := make([]uuid.UUID, 0, len(e.Task.SharedWith)+1)
	recipients = append(recipients, e.Task.OwnerID)
	return append(recipients, e.Task.SharedWith...)
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
