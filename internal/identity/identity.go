// Package identity signs users up and in, revokes sessions and manages profiles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"example.com/tags/internal/auth"
	"example.com/tags/internal/domain"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// EventKind names an auth state transition.
type EventKind string

const (
	SignedUp  EventKind = "signed_up"
	SignedIn  EventKind = "signed_in"
	SignedOut EventKind = "signed_out"
)

// Event is delivered to listeners registered with OnAuthStateChange. Session is nil after sign out.
type Event struct {
	Kind    EventKind
	UserID  string
	Session *auth.Session
}

// Credentials are returned on successful sign up or sign in.
type Credentials struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"-"`
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source used for token issue and CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// Service is the identity provider.
type Service struct {
	users    domain.UserStore
	tokens   auth.Config
	denylist Denylist
	now      func() time.Time
	cost     int

	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(Event)
}

// NewService constructs a Service.
func NewService(users domain.UserStore, tokens auth.Config, denylist Denylist, opts ...Option) *Service {
	if denylist == nil {
		denylist = NewMemoryDenylist()
	}
	s := &Service{
		users:     users,
		tokens:    tokens,
		denylist:  denylist,
		now:       time.Now,
		cost:      bcrypt.DefaultCost,
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revocations exposes the denylist to the bearer middleware.
func (s *Service) Revocations() auth.Revocations {
	return s.denylist
}

// SignUp creates an account and its profile record, then signs the user in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*Credentials, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)

	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if displayName == "" {
		missing = append(missing, "display_name")
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Fields: missing}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &domain.ValidationError{Fields: []string{"email"}, Reason: "email address is not valid"}
	}
	if len(password) < MinPasswordLength {
		return nil, &domain.ValidationError{Fields: []string{"password"}, Reason: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		Rating:       0,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, domain.Network(err)
	}

	creds, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.notify(Event{Kind: SignedUp, UserID: user.ID, Session: sessionOf(user)})
	return creds, nil
}

// SignIn verifies credentials and issues a token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, domain.Network(err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	creds, err := s.issue(*user)
	if err != nil {
		return nil, err
	}
	s.notify(Event{Kind: SignedIn, UserID: user.ID, Session: sessionOf(*user)})
	return creds, nil
}

// SignOut revokes the token carried by claims.
func (s *Service) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return domain.ErrAuthRequired
	}
	if claims.TokenID != "" {
		if err := s.denylist.Revoke(ctx, claims.TokenID, claims.ExpiresAt.Sub(s.now())); err != nil {
			return domain.Network(err)
		}
	}
	s.notify(Event{Kind: SignedOut, UserID: claims.Subject})
	return nil
}

// Profile returns the user record for id.
func (s *Service) Profile(ctx context.Context, id string) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, domain.Network(err)
	}
	return user, nil
}

// UpdateProfile changes the caller's display name and bio.
func (s *Service) UpdateProfile(ctx context.Context, session *auth.Session, displayName, bio string) (*domain.User, error) {
	if session == nil || session.UserID == "" {
		return nil, domain.ErrAuthRequired
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, &domain.ValidationError{Fields: []string{"display_name"}}
	}
	user, err := s.users.UpdateProfile(ctx, session.UserID, displayName, strings.TrimSpace(bio))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		return nil, domain.Network(err)
	}
	return user, nil
}

// OnAuthStateChange registers fn for sign up, sign in and sign out events. The returned function
// removes the registration. Listeners run synchronously on the caller's goroutine.
func (s *Service) OnAuthStateChange(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(ev Event) {
	s.mu.RLock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *Service) issue(user domain.User) (*Credentials, error) {
	token, claims, err := auth.Issue(s.tokens, user.ID, user.Email, user.DisplayName, s.now())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Credentials{Token: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}

func sessionOf(user domain.User) *auth.Session {
	return &auth.Session{UserID: user.ID, Email: user.Email, DisplayName: user.DisplayName}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
