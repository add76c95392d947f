package models

import "fmt"

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return withOp(e.Op, fmt.Sprintf("invalid %s: %s", e.Field, e.Reason))
}

// DuplicateTitleError reports that the owner already has a task with Title.
type DuplicateTitleError struct {
	Op    string
	Title string
}

func (e *DuplicateTitleError) Error() string {
	return withOp(e.Op, fmt.Sprintf("task %q already exists", e.Title))
}

// DuplicateUsernameError reports a registration with a taken username.
type DuplicateUsernameError struct {
	Username string
}

func (e *DuplicateUsernameError) Error() string {
	return fmt.Sprintf("username %q is already taken", e.Username)
}

// NotFoundError reports a task, recipient or user that does not exist or
// is not visible to the caller. Kind is "task" or "user".
type NotFoundError struct {
	Op   string
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return withOp(e.Op, fmt.Sprintf("%s %q not found", e.Kind, e.Key))
}

// PermissionError reports that the caller lacks the capability for Op.
type PermissionError struct {
	Op    string
	Title string
}

func (e *PermissionError) Error() string {
	if e.Title == "" {
		return withOp(e.Op, "permission denied")
	}
	return withOp(e.Op, fmt.Sprintf("permission denied on task %q", e.Title))
}

// RepositoryError wraps a persistence failure the core does not interpret.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func withOp(op, msg string) string {
	if op == "" {
		return msg
	}
	return op + ": " + msg
}
