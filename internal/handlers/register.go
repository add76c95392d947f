package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		log.Printf("Invalid method for register: %s", r.Method)
		sendError(w, "Use POST method", http.StatusMethodNotAllowed)
		return
	}

	ip := h.clientIP(r)
	if h.RateLimiter != nil && !h.RateLimiter.Allow(ip) {
		log.Printf("Rate limit exceeded for IP: %s", ip)
		sendError(w, "Too many register attempts. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var input credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&input); err != nil {
		log.Printf("Error decoding JSON: %v", err)
		sendError(w, "Bad JSON", http.StatusBadRequest)
		return
	}

	user, err := h.Auth.Register(r.Context(), input.Username, input.Password)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	log.Printf("User registered: %s", user.Username)
	sendJSON(w, http.StatusCreated, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		log.Printf("Invalid method for login: %s", r.Method)
		sendError(w, "Use POST method for login", http.StatusMethodNotAllowed)
		return
	}

	ip := h.clientIP(r)
	if h.RateLimiter != nil && !h.RateLimiter.Allow(ip) {
		log.Printf("Rate limit exceeded for IP: %s", ip)
		sendError(w, "Too many login attempts. Please try again later.", http.StatusTooManyRequests)
		return
	}

	var input credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&input); err != nil {
		log.Printf("Error decoding JSON: %v", err)
		sendError(w, "Bad JSON", http.StatusBadRequest)
		return
	}

	user, err := h.Auth.Authenticate(r.Context(), input.Username, input.Password)
	if err != nil {
		log.Printf("Failed login for %s: %v", input.Username, err)
		sendDomainError(w, err)
		return
	}

	token, err := h.Tokens.Issue(user.Identity)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		sendError(w, "Cannot create token", http.StatusInternalServerError)
		return
	}

	log.Printf("User logged in: %s", user.Username)
	sendJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"token":    token,
	})
}
