// Package directory serves the activity feed, the map pins and the caller's own activity views.
package directory

import (
	"context"
	"log"
	"slices"
	"strings"

	"example.com/tags/internal/auth"
	"example.com/tags/internal/domain"
)

// Pin is a map marker for an activity with a known point.
type Pin struct {
	ActivityID string          `json:"activity_id"`
	Title      string          `json:"title"`
	Category   domain.Category `json:"category"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
}

// Option configures optional behaviour for the Directory.
type Option func(*Directory)

// WithLogger overrides the logger used to report failed loads.
func WithLogger(logger *log.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

// Directory reads activities from the store.
type Directory struct {
	store  domain.ActivityStore
	logger *log.Logger
}

// New constructs a Directory backed by store.
func New(store domain.ActivityStore, opts ...Option) *Directory {
	d := &Directory{
		store:  store,
		logger: log.New(log.Writer(), "[directory] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load returns every activity newest first. A store failure yields an empty list.
func (d *Directory) Load(ctx context.Context) []domain.Activity {
	activities, _ := d.Snapshot(ctx)
	return activities
}

// Snapshot is Load that also reports whether the store failed and the list is a degraded empty one.
func (d *Directory) Snapshot(ctx context.Context) (activities []domain.Activity, degraded bool) {
	activities, err := d.store.ListActivities(ctx)
	if err != nil {
		d.logger.Printf("load activities failed: %v", err)
		return []domain.Activity{}, true
	}
	if activities == nil {
		activities = []domain.Activity{}
	}
	slices.SortStableFunc(activities, func(a, b domain.Activity) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return activities, false
}

// Filter keeps activities whose title contains text, ignoring case. Blank text returns the input.
func Filter(activities []domain.Activity, text string) []domain.Activity {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return activities
	}
	out := make([]domain.Activity, 0, len(activities))
	for _, a := range activities {
		if strings.Contains(strings.ToLower(a.Title), needle) {
			out = append(out, a)
		}
	}
	return out
}

// Pins returns one marker per activity with a valid point.
func Pins(activities []domain.Activity) []Pin {
	pins := make([]Pin, 0, len(activities))
	for _, a := range activities {
		point, ok := a.Location.Point()
		if !ok {
			continue
		}
		pins = append(pins, Pin{
			ActivityID: a.ID,
			Title:      a.Title,
			Category:   a.Category,
			Latitude:   point.Latitude,
			Longitude:  point.Longitude,
		})
	}
	return pins
}

// Created returns the activities the caller created, from a fresh load. Degraded is set when the
// store could not be read.
func (d *Directory) Created(ctx context.Context, session *auth.Session) (activities []domain.Activity, degraded bool, err error) {
	return d.mine(ctx, session, func(a domain.Activity, userID string) bool {
		return a.CreatedBy == userID
	})
}

// Joined returns the activities whose participant set contains the caller, from a fresh load.
func (d *Directory) Joined(ctx context.Context, session *auth.Session) (activities []domain.Activity, degraded bool, err error) {
	return d.mine(ctx, session, func(a domain.Activity, userID string) bool {
		return a.HasParticipant(userID)
	})
}

func (d *Directory) mine(ctx context.Context, session *auth.Session, keep func(domain.Activity, string) bool) ([]domain.Activity, bool, error) {
	if session == nil {
		return nil, false, domain.ErrAuthRequired
	}
	activities, degraded := d.Snapshot(ctx)
	out := make([]domain.Activity, 0)
	for _, a := range activities {
		if keep(a, session.UserID) {
			out = append(out, a)
		}
	}
	return out, degraded, nil
}
