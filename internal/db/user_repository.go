package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/google/uuid"
)

// defines methods for user db operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, username, password_hash, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(
		ctx, query, user.ID, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return &models.DuplicateUsernameError{Username: user.Username}
	}
	return repoErr("create user", err)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username = $1`
	return r.getOne(ctx, query, username, username)
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE id = $1`
	return r.getOne(ctx, query, id, id.String())
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any, key string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "user", Key: key}
	}
	if err != nil {
		return nil, repoErr("get user", err)
	}
	return user, nil
}
