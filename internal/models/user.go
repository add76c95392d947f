package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxUsernameLength = 64
	minPasswordLength = 4
)

// Identity is the acting principal of every task operation.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// Authenticated reports whether the identity refers to a registered user.
func (i Identity) Authenticated() bool {
	return i.ID != uuid.Nil
}

// User is a registered identity together with its stored credential.
type User struct {
	Identity
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", &ValidationError{Field: "username", Reason: "is required"}
	}
	if len(username) > maxUsernameLength {
		return "", &ValidationError{Field: "username", Reason: "must be <= 64 characters"}
	}
	return username, nil
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return &ValidationError{Field: "password", Reason: "must be at least 4 characters long"}
	}
	return nil
}
