// Package api exposes HTTP handlers for the tags service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"example.com/tags/internal/directory"
	"example.com/tags/internal/domain"
	"example.com/tags/internal/identity"
	"example.com/tags/internal/membership"
	"example.com/tags/internal/places"
	"example.com/tags/internal/submission"
)

// ActivityReader fetches a single activity.
type ActivityReader interface {
	GetActivity(ctx context.Context, id string) (*domain.Activity, error)
}

// Deps are the services the handlers coordinate.
type Deps struct {
	Identity    *identity.Service
	Directory   *directory.Directory
	Activities  ActivityReader
	Tracker     *membership.Tracker
	Submissions *submission.Service
	Places      *places.Resolver
	// SearchDebounce is the live search input window; zero uses places.DefaultDebounce.
	SearchDebounce time.Duration
	// StoreTimeout bounds every store-backed request; zero disables the bound.
	StoreTimeout time.Duration
}

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithLogger overrides the handler logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	deps   Deps
	logger *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(deps Deps, opts ...Option) *Handler {
	h := &Handler{
		deps:   deps,
		logger: log.New(log.Writer(), "[api] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auth/signup", h.signUp)
	mux.HandleFunc("POST /v1/auth/signin", h.signIn)
	mux.HandleFunc("POST /v1/auth/signout", h.signOut)
	mux.HandleFunc("GET /v1/me", h.me)
	mux.HandleFunc("PATCH /v1/me", h.updateMe)
	mux.HandleFunc("GET /v1/me/activities/created", h.createdActivities)
	mux.HandleFunc("GET /v1/me/activities/joined", h.joinedActivities)
	mux.HandleFunc("GET /v1/me/membership", h.myMembership)
	mux.HandleFunc("GET /v1/users/{id}", h.userProfile)

	mux.HandleFunc("GET /v1/activities", h.listActivities)
	mux.HandleFunc("GET /v1/activities/pins", h.activityPins)
	mux.HandleFunc("GET /v1/activities/{id}", h.getActivity)
	mux.HandleFunc("POST /v1/activities", h.createActivity)
	mux.HandleFunc("POST /v1/activities/{id}/join", h.joinActivity)
	mux.HandleFunc("POST /v1/activities/{id}/leave", h.leaveActivity)

	mux.HandleFunc("GET /v1/places/reverse", h.reverseGeocode)
	mux.HandleFunc("GET /v1/places/search", h.searchPlaces)
	mux.HandleFunc("GET /v1/places/live", h.liveSearch)

	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.deps.StoreTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.deps.StoreTimeout)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// writeServiceError maps domain errors onto stable responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"type":   "validation_failed",
			"detail": validation.Error(),
			"fields": validation.Fields,
		})
	case errors.Is(err, domain.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound), errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusBadGateway, "store_unavailable", err.Error())
	default:
		h.logger.Printf("unhandled error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
