package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/chepyr/go-task-share/internal/auth"
	"github.com/chepyr/go-task-share/internal/models"
	"github.com/chepyr/go-task-share/internal/tasks"
)

type Handler struct {
	Tasks          *tasks.Service
	Auth           *auth.Provider
	Tokens         *auth.Tokens
	RateLimiter    *RateLimiter
	WSRateLimiter  *RateLimiter
	WSHub          *WSHub
	AllowedOrigins []string
	// peers allowed to set X-Forwarded-For
	TrustedProxies []netip.Prefix
}

// Routes mounts every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", h.Register)
	mux.HandleFunc("/login", h.Login)

	mux.HandleFunc("GET /tasks", h.AuthMiddleware(h.listTasks))
	mux.HandleFunc("POST /tasks", h.AuthMiddleware(h.createTask))
	mux.HandleFunc("GET /tasks/{title}", h.AuthMiddleware(h.getTask))
	mux.HandleFunc("PUT /tasks/{title}", h.AuthMiddleware(h.editTask))
	mux.HandleFunc("PATCH /tasks/{title}", h.AuthMiddleware(h.editTask))
	mux.HandleFunc("DELETE /tasks/{title}", h.AuthMiddleware(h.deleteTask))
	mux.HandleFunc("POST /tasks/{title}/share", h.AuthMiddleware(h.shareTask))
	mux.HandleFunc("PUT /tasks/{title}/priority", h.AuthMiddleware(h.setPriority))
	mux.HandleFunc("PUT /tasks/{title}/category", h.AuthMiddleware(h.categorize))
	mux.HandleFunc("POST /tasks/{title}/complete", h.AuthMiddleware(h.markComplete))

	mux.HandleFunc("GET /ws", h.WebSocketAuth(h.HandleWebSocket))
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, errorResponse{Error: message})
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// errorStatus maps the domain error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	var (
		validation    *models.ValidationError
		duplicate     *models.DuplicateTitleError
		duplicateUser *models.DuplicateUsernameError
		notFound      *models.NotFoundError
		permission    *models.PermissionError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &duplicate), errors.As(err, &duplicateUser):
		return http.StatusConflict
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &permission):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func sendDomainError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		sendError(w, "Internal server error", status)
		return
	}
	sendError(w, err.Error(), status)
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(ct), "application/json")
}

// clientIP returns the peer address. X-Forwarded-For is read only when the
// peer is a trusted proxy, and then the rightmost hop that is not itself a
// trusted proxy is the client.
func (h *Handler) clientIP(r *http.Request) string {
	client := remoteHost(r)
	if !h.trustedProxy(client) {
		return client
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !h.trustedProxy(hop) {
			break
		}
	}
	return client
}

func (h *Handler) trustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range h.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
