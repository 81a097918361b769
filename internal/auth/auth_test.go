package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "tags.test", TTL: time.Hour}

func TestIssueAndParseRoundTrip(t *testing.T) {
	token, issued, err := Issue(testConfig, "user-1", "a@example.com", "Asha", time.Now())
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "Asha", claims.DisplayName)
	require.Equal(t, issued.TokenID, claims.TokenID)
	require.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt, time.Second)
}

func TestParseRejectsWrongIssuerAndExpiry(t *testing.T) {
	token, _, err := Issue(Config{Secret: testConfig.Secret, Issuer: "someone-else"}, "user-1", "", "", time.Now())
	require.NoError(t, err)
	_, err = Parse(token, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, _, err := Issue(Config{Secret: testConfig.Secret, Issuer: testConfig.Issuer, TTL: time.Minute}, "user-1", "", "", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = Parse(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddlewareAnonymousPassThrough(t *testing.T) {
	var session *Session
	called := false
	handler := NewMiddleware(testConfig, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		session = SessionFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))

	require.True(t, called)
	require.Nil(t, session)
}

func TestMiddlewareAttachesSession(t *testing.T) {
	token, _, err := Issue(testConfig, "user-9", "n@example.com", "Nia", time.Now())
	require.NoError(t, err)

	var session *Session
	handler := NewMiddleware(testConfig, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, session)
	require.Equal(t, "user-9", session.UserID)
}

func TestMiddlewareRejectsRevokedAndMalformed(t *testing.T) {
	token, issued, err := Issue(testConfig, "user-9", "", "", time.Now())
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})
	handler := NewMiddleware(testConfig, revokedSet{issued.TokenID: {}}).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

type revokedSet map[string]struct{}

func (r revokedSet) IsRevoked(_ context.Context, id string) (bool, error) {
	_, ok := r[id]
	return ok, nil
}
