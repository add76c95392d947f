// Package reminders notifies users about tasks whose deadline is close.
package reminders

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/chepyr/go-task-share/internal/tasks"
	"github.com/google/uuid"
)

type Repository interface {
	ListDueReminders(ctx context.Context, through models.Date) ([]*models.Task, error)
	MarkReminded(ctx context.Context, taskID uuid.UUID, deadline models.Date) (bool, error)
}

// Scheduler sends one task_due event per task and deadline. A task is due
// once its deadline is at most Lead days away.
type Scheduler struct {
	Tasks    Repository
	Notifier tasks.Notifier
	Interval time.Duration
	Lead     int
	Now      func() time.Time
}

func (s *Scheduler) today() models.Date {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return models.DateOf(now().UTC())
}

// RunOnce sends reminders for every task currently due and returns how
// many were sent.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.Tasks.ListDueReminders(ctx, s.today().AddDays(s.Lead))
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, task := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if s.Notifier != nil {
			if err := s.Notifier.Notify(ctx, tasks.Event{Type: tasks.EventTaskDue, Task: task}); err != nil {
				log.Printf("Failed to send reminder for task %s: %v", task.ID, err)
				continue
			}
		}
		recorded, err := s.Tasks.MarkReminded(ctx, task.ID, *task.Deadline)
		if err != nil {
			return sent, fmt.Errorf("record reminder for task %s: %w", task.ID, err)
		}
		if !recorded {
			log.Printf("Task %s changed while its reminder was sent", task.ID)
		}
		sent++
	}
	return sent, nil
}

// Run calls RunOnce every Interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if sent, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Reminder run failed: %v", err)
		} else if sent > 0 {
			log.Printf("Sent %d reminders", sent)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
