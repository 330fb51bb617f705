package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/keyword-research-api/internal"
)

// TokenVerifier validates a bearer token and returns the user id.
type TokenVerifier interface {
	VerifyToken(tokenString string) (string, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user id in the request context.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAppError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
				return
			}

			userID, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Warn("rejected bearer token", "path", r.URL.Path, "error", err)
				if appErr, ok := internal.IsAppError(err); ok {
					writeAppError(w, appErr)
					return
				}
				writeAppError(w, internal.NewUnauthorizedError("invalid token", internal.ErrCodeInvalidToken))
				return
			}

			next.ServeHTTP(w, r.WithContext(internal.ContextWithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeAppError(w http.ResponseWriter, appErr *internal.AppError) {
	status, body := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
