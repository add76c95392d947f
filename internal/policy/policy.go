// Package policy decides which users may view, change or share a task.
//
// The owner holds every capability. Users a task is shared with may view
// it and nothing else.
package policy

import (
	"github.com/chepyr/go-task-share/internal/models"
	"github.com/google/uuid"
)

func isOwner(userID uuid.UUID, task *models.Task) bool {
	return task != nil && userID != uuid.Nil && task.OwnerID == userID
}

// CanView reports whether userID owns task or is on its shared-with set.
func CanView(userID uuid.UUID, task *models.Task) bool {
	if isOwner(userID, task) {
		return true
	}
	return task != nil && userID != uuid.Nil && task.IsSharedWith(userID)
}

// CanMutate reports whether userID may edit, delete, re-prioritize,
// re-categorize or complete task.
func CanMutate(userID uuid.UUID, task *models.Task) bool {
	return isOwner(userID, task)
}

// CanShare reports whether userID may grant further shares of task.
func CanShare(userID uuid.UUID, task *models.Task) bool {
	return isOwner(userID, task)
}
