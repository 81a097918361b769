// Package domain defines the records and store contracts shared by the tags service.
package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Category is the fixed set of activity kinds.
type Category string

const (
	CategoryCoffee  Category = "Coffee"
	CategoryWalk    Category = "Walk"
	CategoryRun     Category = "Run"
	CategoryWorkout Category = "Workout"
	CategoryFood    Category = "Food"
	CategoryDrinks  Category = "Drinks"
	CategoryStudy   Category = "Study"
	CategoryOther   Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryCoffee, CategoryWalk, CategoryRun, CategoryWorkout,
	CategoryFood, CategoryDrinks, CategoryStudy, CategoryOther,
}

// ParseCategory matches value against the known categories ignoring case.
func ParseCategory(value string) (Category, error) {
	value = strings.TrimSpace(value)
	for _, c := range Categories {
		if strings.EqualFold(string(c), value) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", value)
}

// JoinKind is the policy governing who may join an activity.
type JoinKind string

const (
	JoinOpen     JoinKind = "open"
	JoinOneOnOne JoinKind = "one_on_one"
	JoinLimited  JoinKind = "limited"
)

// ParseJoinKind matches value against the known join kinds ignoring case.
func ParseJoinKind(value string) (JoinKind, error) {
	switch JoinKind(strings.ToLower(strings.TrimSpace(value))) {
	case JoinOpen:
		return JoinOpen, nil
	case JoinOneOnOne:
		return JoinOneOnOne, nil
	case JoinLimited:
		return JoinLimited, nil
	}
	return "", fmt.Errorf("unknown join type %q", value)
}

// JoinType carries the join policy and, for Limited, its capacity.
// Capacity is advisory: it is reported but never blocks a join.
type JoinType struct {
	Kind            JoinKind
	MaxParticipants int
}

// Validate checks that Limited carries a positive capacity.
func (j JoinType) Validate() error {
	switch j.Kind {
	case JoinOpen, JoinOneOnOne:
		return nil
	case JoinLimited:
		if j.MaxParticipants <= 0 {
			return fmt.Errorf("limited join type requires a positive capacity")
		}
		return nil
	}
	return fmt.Errorf("unknown join type %q", j.Kind)
}

// Capacity returns the advisory participant limit, or 0 when unbounded.
func (j JoinType) Capacity() int {
	switch j.Kind {
	case JoinOneOnOne:
		return 1
	case JoinLimited:
		return j.MaxParticipants
	}
	return 0
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the point is finite and inside the WGS84 range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) || math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// String renders the coordinate the way it is shown when no place name is known.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Latitude, c.Longitude)
}

// Location is a named place. Latitude and Longitude are nil when no point was recorded.
type Location struct {
	Name      string
	Latitude  *float64
	Longitude *float64
}

// NewLocation builds a Location from a concrete point.
func NewLocation(name string, point Coordinate) Location {
	lat, lon := point.Latitude, point.Longitude
	return Location{Name: name, Latitude: &lat, Longitude: &lon}
}

// Point returns the coordinate when both values are present and valid.
func (l Location) Point() (Coordinate, bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return Coordinate{}, false
	}
	c := Coordinate{Latitude: *l.Latitude, Longitude: *l.Longitude}
	return c, c.Valid()
}

// Activity is a user-created, time and place bound social event.
type Activity struct {
	ID           string
	Title        string
	Description  string
	Category     Category
	JoinType     JoinType
	Date         string // YYYY-MM-DD
	Time         string // HH:MM
	Location     Location
	CreatedBy    string
	CreatedAt    time.Time
	Participants []string
}

// HasParticipant reports whether userID is in the participant set.
func (a Activity) HasParticipant(userID string) bool {
	return slices.Contains(a.Participants, userID)
}

// AtCapacity reports whether the advisory capacity has been reached.
func (a Activity) AtCapacity() bool {
	limit := a.JoinType.Capacity()
	return limit > 0 && len(a.Participants) >= limit
}

// NormalizeParticipants removes blanks and duplicates while keeping first-seen order.
func NormalizeParticipants(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
