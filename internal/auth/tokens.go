package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const MinSecretLength = 32

var ErrInvalidToken = errors.New("invalid token")

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d characters", MinSecretLength)
	}
	return &Tokens{Secret: []byte(secret), TTL: ttl, now: time.Now}, nil
}

// Issue returns a signed token whose subject is the user id.
func (t *Tokens) Issue(identity models.Identity) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      identity.ID.String(),
		"username": identity.Username,
		"exp":      now.Add(t.TTL).Unix(),
		"iat":      now.Unix(),
	})

	signed, err := token.SignedString(t.Secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenString and returns the identity it was issued for.
// Tokens without an expiry or a valid subject are rejected.
func (t *Tokens) Parse(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return t.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil || id == uuid.Nil {
		return models.Identity{}, ErrInvalidToken
	}
	username, _ := claims["username"].(string)
	return models.Identity{ID: id, Username: username}, nil
}
