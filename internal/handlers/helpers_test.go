package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chepyr/go-task-share/internal/auth"
	"github.com/chepyr/go-task-share/internal/db"
	"github.com/chepyr/go-task-share/internal/models"
	"github.com/chepyr/go-task-share/internal/tasks"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = strings.Repeat("a", 32)

func setupHTTP(t *testing.T) (*Handler, *http.ServeMux, *sql.DB) {
	t.Helper()

	// in-memory sqlite DB
	dbx, err := sql.Open(db.DriverSQLite3, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbx.SetMaxOpenConns(1)
	t.Cleanup(func() { dbx.Close() })
	if err := db.Migrate(context.Background(), dbx, db.DriverSQLite3); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	tokens, err := auth.NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	provider := auth.NewProvider(db.NewUserRepository(dbx))
	provider.Cost = bcrypt.MinCost
	hub := NewWSHub()
	service := tasks.NewService(db.NewTaskRepository(dbx), provider)
	service.Notifier = hub

	rateLimiter := NewRateLimiter(100, time.Minute)
	t.Cleanup(rateLimiter.Stop)
	wsRateLimiter := NewRateLimiter(100, time.Minute)
	t.Cleanup(wsRateLimiter.Stop)

	h := &Handler{
		Tasks:         service,
		Auth:          provider,
		Tokens:        tokens,
		RateLimiter:   rateLimiter,
		WSRateLimiter: wsRateLimiter,
		WSHub:         hub,
	}
	return h, h.Routes(), dbx
}

func createUser(t *testing.T, h *Handler, username string) models.Identity {
	t.Helper()
	user, err := h.Auth.Register(context.Background(), username, "strongpass")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user.Identity
}

func bearerForUser(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return "Bearer " + signed
}

// doJSON sends body as JSON; a nil body sends no payload.
func doJSON(t *testing.T, mux http.Handler, method, target, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			payload.WriteString(raw)
		} else if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &payload)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

type taskBody struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Deadline    *string         `json:"deadline"`
	Priority    json.RawMessage `json:"priority"`
	Category    string          `json:"category"`
	Completed   bool            `json:"completed"`
	Reminder    bool            `json:"reminder"`
	Status      string          `json:"status"`
	SharedWith  []uuid.UUID     `json:"shared_with"`
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) taskBody {
	t.Helper()
	var body taskBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode task: %v body=%s", err, rec.Body.String())
	}
	return body
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v body=%s", err, rec.Body.String())
	}
	return body.Error
}
