// Package auth verifies bearer tokens issued by the identity provider.
// Payment never depends on identity: on metered routes a token only tags the
// audit record and search history with a user id.
package auth

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/keyword-research-api/internal"
)

type Verifier struct {
	publicKey *rsa.PublicKey
	logger    *slog.Logger
}

func NewVerifier(cfg internal.SecurityConfig, logger *slog.Logger) (*Verifier, error) {
	key, err := cfg.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT public key: %w", err)
	}
	return &Verifier{
		publicKey: key,
		logger:    logger,
	}, nil
}

// VerifyToken validates an RS256 token and returns its subject.
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return "", internal.NewUnauthorizedError("invalid token", internal.ErrCodeInvalidToken)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", internal.NewUnauthorizedError("invalid token claims", internal.ErrCodeInvalidToken)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", internal.NewUnauthorizedError("token missing subject", internal.ErrCodeInvalidToken)
	}
	return sub, nil
}

// ResolveUser extracts and verifies an optional bearer token. Satisfies the
// payment gate's IdentityResolver: a missing or bad token yields (_, false),
// never an error.
func (v *Verifier) ResolveUser(r *http.Request) (string, bool) {
	tokenString := extractBearer(r)
	if tokenString == "" {
		return "", false
	}
	sub, err := v.VerifyToken(tokenString)
	if err != nil {
		v.logger.Debug("ignoring invalid bearer token on metered route", "error", err)
		return "", false
	}
	return sub, true
}

func extractBearer(r *http.Request) string {
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
