package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/welldanyogia/presence-stream/internal/auth"
	appctx "github.com/welldanyogia/presence-stream/internal/context"
)

// Authentication error codes
const (
	CodeTokenMissing = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid = "AUTH_TOKEN_INVALID"
)

// ErrorResponse is the envelope written when a request is rejected
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
// present reports whether the header was sent at all.
func BearerToken(r *http.Request) (token string, present bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(rest), true
}

// AuthMiddleware admits trigger callers holding a valid access token and
// records their user id as the request's actor.
type AuthMiddleware struct {
	tokenService *auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokenService: tokenService}
}

// Authenticate rejects requests without a valid bearer token with 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := BearerToken(r)
		switch {
		case !present:
			writeAuthError(w, CodeTokenMissing, "Authorization header is required")
			return
		case token == "":
			writeAuthError(w, CodeTokenInvalid, "Invalid authorization header format")
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(token)
		if err != nil {
			writeAuthError(w, CodeTokenInvalid, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(appctx.WithUserID(r.Context(), claims.UserID())))
	})
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     ErrorDetail{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}
