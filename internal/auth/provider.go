// Package auth registers users, verifies their passwords and issues the
// bearer tokens the HTTP layer accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chepyr/go-task-share/internal/db"
	"github.com/chepyr/go-task-share/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

type Provider struct {
	Users db.UserRepositoryInterface
	Cost  int
}

func NewProvider(users db.UserRepositoryInterface) *Provider {
	return &Provider{Users: users, Cost: bcrypt.DefaultCost}
}

func (p *Provider) Register(ctx context.Context, username, password string) (*models.User, error) {
	username, err := models.ValidateUsername(username)
	if err != nil {
		return nil, err
	}
	if err := models.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Identity:     models.Identity{ID: uuid.New(), Username: username},
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (p *Provider) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := p.Users.GetByUsername(ctx, username)
	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// LookupByUsername returns a *models.NotFoundError for unknown users.
func (p *Provider) LookupByUsername(ctx context.Context, username string) (*models.User, error) {
	return p.Users.GetByUsername(ctx, username)
}
