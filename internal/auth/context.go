package auth

import "context"

type contextKey string

const claimsKey contextKey = "tags-auth-claims"

// Session is the signed-in caller. It is passed explicitly to every service call that needs identity;
// a nil *Session means the caller is anonymous.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
}

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// SessionFromContext converts the request claims into a Session, or nil when anonymous.
func SessionFromContext(ctx context.Context) *Session {
	claims, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return claims.Session()
}

// Session converts claims into the explicit session handed to services.
func (c *Claims) Session() *Session {
	if c == nil || c.Subject == "" {
		return nil
	}
	return &Session{UserID: c.Subject, Email: c.Email, DisplayName: c.DisplayName}
}
