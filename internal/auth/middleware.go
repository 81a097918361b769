package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Revocations reports whether a token id was signed out.
type Revocations interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Middleware attaches bearer-token claims to requests. Requests without an Authorization header pass
// through anonymously; handlers decide whether a session is required.
type Middleware struct {
	Config      Config
	Revocations Revocations
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config, revocations Revocations) Middleware {
	return Middleware{Config: cfg, Revocations: revocations}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.parseRequest(r)
		if errors.Is(err, ErrMissingToken) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	claims, err := Parse(token, m.Config)
	if err != nil {
		return nil, err
	}
	if m.Revocations != nil && claims.TokenID != "" {
		revoked, err := m.Revocations.IsRevoked(r.Context(), claims.TokenID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}
