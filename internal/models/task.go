package models

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 1000

	MinPriority = 1
	MaxPriority = 10
)

// TaskStatus is derived from the completion flag.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusComplete TaskStatus = "complete"
)

// Category is one of a fixed set of task groupings.
type Category string

const (
	CategoryNone     Category = "None"
	CategoryWork     Category = "Work"
	CategorySchool   Category = "School"
	CategoryPersonal Category = "Personal"
)

var categories = []Category{CategoryNone, CategoryWork, CategorySchool, CategoryPersonal}

// ParseCategory matches s case-insensitively against the known categories
// and returns the canonical value.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", &ValidationError{
		Field:  "category",
		Reason: fmt.Sprintf("%q is not one of None, Work, School, Personal", s),
	}
}

func (c Category) Valid() bool {
	return slices.Contains(categories, c)
}

// Priority is PriorityNone or a level in [MinPriority, MaxPriority].
type Priority int

const PriorityNone Priority = 0

// NewPriority validates level. Zero is rejected; use PriorityNone to clear.
func NewPriority(level int) (Priority, error) {
	if level < MinPriority || level > MaxPriority {
		return PriorityNone, &ValidationError{
			Field:  "priority",
			Reason: fmt.Sprintf("%d is outside [%d, %d]", level, MinPriority, MaxPriority),
		}
	}
	return Priority(level), nil
}

// PriorityFromLevel maps a nil level to PriorityNone.
func PriorityFromLevel(level *int) (Priority, error) {
	if level == nil {
		return PriorityNone, nil
	}
	return NewPriority(*level)
}

func (p Priority) IsSet() bool { return p != PriorityNone }

func (p Priority) Valid() bool {
	return p == PriorityNone || (p >= MinPriority && p <= MaxPriority)
}

func (p Priority) String() string {
	if p == PriorityNone {
		return "none"
	}
	return strconv.Itoa(int(p))
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if p == PriorityNone {
		return []byte(`"none"`), nil
	}
	return []byte(strconv.Itoa(int(p))), nil
}

// Task is a task record owned by a single user and optionally shared
// read-only with others.
type Task struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Deadline    *Date       `json:"deadline"`
	Priority    Priority    `json:"priority"`
	Category    Category    `json:"category"`
	Completed   bool        `json:"completed"`
	Reminder    bool        `json:"reminder"`
	SharedWith  []uuid.UUID `json:"shared_with"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// RemindedOn is the deadline a reminder was last sent for.
	RemindedOn *Date `json:"-"`
}

// NewTask returns a pending, unshared task with default category and no
// priority.
func NewTask(ownerID uuid.UUID, title, description string) (*Task, error) {
	title, err := ValidateTitle(title)
	if err != nil {
		return nil, err
	}
	if err := ValidateDescription(description); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Priority:    PriorityNone,
		Category:    CategoryNone,
		SharedWith:  []uuid.UUID{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (t *Task) Status() TaskStatus {
	if t.Completed {
		return TaskStatusComplete
	}
	return TaskStatusPending
}

func (t *Task) IsSharedWith(userID uuid.UUID) bool {
	return slices.Contains(t.SharedWith, userID)
}

// Validate checks every field invariant of the record.
func (t *Task) Validate() error {
	if t.OwnerID == uuid.Nil {
		return &ValidationError{Field: "owner", Reason: "is required"}
	}
	if _, err := ValidateTitle(t.Title); err != nil {
		return err
	}
	if err := ValidateDescription(t.Description); err != nil {
		return err
	}
	if !t.Priority.Valid() {
		return &ValidationError{
			Field:  "priority",
			Reason: fmt.Sprintf("%d is outside [%d, %d]", int(t.Priority), MinPriority, MaxPriority),
		}
	}
	if !t.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("%q is not a known category", t.Category)}
	}
	if t.IsSharedWith(t.OwnerID) {
		return &ValidationError{Field: "shared_with", Reason: "cannot contain the owner"}
	}
	return nil
}

// ValidateTitle trims title and checks it is non-empty and short enough.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Reason: "is required"}
	}
	if len(title) > maxTitleLength {
		return "", &ValidationError{Field: "title", Reason: "must be <= 200 characters"}
	}
	return title, nil
}

func ValidateDescription(description string) error {
	if len(description) > maxDescriptionLength {
		return &ValidationError{Field: "description", Reason: "must be <= 1000 characters"}
	}
	return nil
}
