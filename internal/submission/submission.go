// Package submission validates new activities and hands them to the store.
package submission

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/tags/internal/auth"
	"example.com/tags/internal/domain"
	"example.com/tags/internal/observability"
)

// Fields are the values collected for a new activity.
type Fields struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	JoinType        string   `json:"join_type"`
	MaxParticipants int      `json:"max_participants,omitempty"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	LocationName    string   `json:"location_name"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	// Timezone is the submitter's IANA zone or ±HH:MM offset. Date and Time are read in it; blank
	// uses the server clock's zone.
	Timezone        string   `json:"timezone,omitempty"`
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source used for same-day checks and CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides how activity ids are assigned.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// Service orchestrates activity creation.
type Service struct {
	store domain.ActivityStore
	now   func() time.Time
	newID func() string
}

// NewService constructs a Service.
func NewService(store domain.ActivityStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks fields against now, read in the submitter's zone, and returns the parsed activity
// skeleton. Failures are *domain.ValidationError.
func Validate(f Fields, now time.Time) (domain.Activity, error) {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"title", f.Title},
		{"description", f.Description},
		{"category", f.Category},
		{"join_type", f.JoinType},
		{"date", f.Date},
		{"time", f.Time},
		{"location", f.LocationName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}

	var point domain.Coordinate
	if f.Latitude == nil || f.Longitude == nil {
		if !slices.Contains(missing, "location") {
			missing = append(missing, "location")
		}
	} else {
		point = domain.Coordinate{Latitude: *f.Latitude, Longitude: *f.Longitude}
		if !point.Valid() {
			return domain.Activity{}, &domain.ValidationError{Fields: []string{"location"}, Reason: "location must be a valid coordinate"}
		}
	}
	if len(missing) > 0 {
		return domain.Activity{}, &domain.ValidationError{Fields: missing}
	}

	category, err := domain.ParseCategory(f.Category)
	if err != nil {
		return domain.Activity{}, &domain.ValidationError{Fields: []string{"category"}, Reason: err.Error()}
	}
	kind, err := domain.ParseJoinKind(f.JoinType)
	if err != nil {
		return domain.Activity{}, &domain.ValidationError{Fields: []string{"join_type"}, Reason: err.Error()}
	}
	joinType := domain.JoinType{Kind: kind}
	if kind == domain.JoinLimited {
		joinType.MaxParticipants = f.MaxParticipants
	}
	if err := joinType.Validate(); err != nil {
		return domain.Activity{}, &domain.ValidationError{Fields: []string{"max_participants"}, Reason: err.Error()}
	}

	loc, err := resolveZone(f.Timezone, now.Location())
	if err != nil {
		return domain.Activity{}, &domain.ValidationError{Fields: []string{"timezone"}, Reason: err.Error()}
	}
	now = now.In(loc)

	draft := NewDraft(func() time.Time { return now })
	if _, err := draft.PickDate(f.Date); err != nil {
		return domain.Activity{}, &domain.ValidationError{Fields: []string{"date"}, Reason: err.Error()}
	}
	if err := draft.PickTime(f.Time); err != nil {
		return domain.Activity{}, &domain.ValidationError{Fields: []string{"time"}, Reason: err.Error()}
	}
	if draft.Date() == today(now) {
		at, _ := combine(draft.Date(), draft.Time(), now.Location())
		if !at.After(now) {
			return domain.Activity{}, &domain.ValidationError{Fields: []string{"time"}, Reason: ErrTimeInPast.Error()}
		}
	}

	return domain.Activity{
		Title:        strings.TrimSpace(f.Title),
		Description:  strings.TrimSpace(f.Description),
		Category:     category,
		JoinType:     joinType,
		Date:         draft.Date(),
		Time:         draft.Time(),
		Location:     domain.NewLocation(strings.TrimSpace(f.LocationName), point),
		Participants: []string{},
	}, nil
}

// Submit validates fields and creates the activity on behalf of session. Store failures are returned
// with their message intact.
func (s *Service) Submit(ctx context.Context, session *auth.Session, f Fields) (domain.Activity, error) {
	if session == nil || session.UserID == "" {
		observability.RecordSubmission("unauthenticated")
		return domain.Activity{}, domain.ErrAuthRequired
	}

	now := s.now()
	activity, err := Validate(f, now)
	if err != nil {
		observability.RecordSubmission("invalid")
		return domain.Activity{}, err
	}
	activity.ID = s.newID()
	activity.CreatedBy = session.UserID
	activity.CreatedAt = now.UTC()

	if err := s.store.CreateActivity(ctx, activity); err != nil {
		observability.RecordSubmission("error")
		return domain.Activity{}, domain.Network(err)
	}
	observability.RecordSubmission("created")
	return activity, nil
}
