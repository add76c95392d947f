package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/gorilla/websocket"
)

type contextKey string

const identityKey contextKey = "identity"

// browser clients cannot set headers on a websocket handshake, so /ws also
// accepts the token as the subprotocol pair "bearer", <token>
const wsBearerProtocol = "bearer"

/*
Verify the bearer token, then put the identity it was issued for into the
request context. Handlers read it back with IdentityFromContext.
*/
func (h *Handler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return h.authenticate(headerToken, next)
}

// WebSocketAuth is AuthMiddleware that also takes the token from
// Sec-WebSocket-Protocol when no Authorization header is sent.
func (h *Handler) WebSocketAuth(next http.HandlerFunc) http.HandlerFunc {
	return h.authenticate(func(r *http.Request) (string, string) {
		if r.Header.Get("Authorization") == "" {
			if token, ok := protocolToken(r); ok {
				return token, ""
			}
		}
		return headerToken(r)
	}, next)
}

func (h *Handler) authenticate(extract func(*http.Request) (string, string), next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, problem := extract(r)
		if problem != "" {
			sendError(w, problem, http.StatusUnauthorized)
			return
		}
		identity, err := h.Tokens.Parse(tokenString)
		if err != nil {
			sendError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

// headerToken returns the bearer token, or the message to reject with.
func headerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "Missing Authorization header"
	}
	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenString == "" {
		return "", "Invalid Authorization header"
	}
	return tokenString, ""
}

func protocolToken(r *http.Request) (string, bool) {
	protocols := websocket.Subprotocols(r)
	for i, protocol := range protocols {
		if protocol == wsBearerProtocol && i+1 < len(protocols) && protocols[i+1] != "" {
			return protocols[i+1], true
		}
	}
	return "", false
}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the zero Identity for unauthenticated requests.
func IdentityFromContext(ctx context.Context) models.Identity {
	identity, _ := ctx.Value(identityKey).(models.Identity)
	return identity
}
