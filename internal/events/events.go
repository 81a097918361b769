// Package events defines event payloads shared by the outbox producer and consumers.
package events

import "time"

// Event types written to the outbox.
const (
	TypeActivityCreated   = "activity.created"
	TypeParticipantJoined = "participant.joined"
	TypeParticipantLeft   = "participant.left"
)

// Topics events are routed to.
const (
	TopicActivities = "activity_events"
	TopicMembership = "membership_events"
)

// ActivityCreated represents the message emitted when a new activity is accepted.
type ActivityCreated struct {
	ActivityID string    `json:"activity_id"`
	CreatedBy  string    `json:"created_by"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	JoinType   string    `json:"join_type"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CreatedAt  time.Time `json:"created_at"`
}

// MembershipChanged is emitted when a participant set actually changes.
type MembershipChanged struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	Joined     bool      `json:"joined"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Route describes where an event type is published.
type Route struct {
	Topic         string
	SchemaSubject string
}

// Routes maps event types to their topic and schema subject.
var Routes = map[string]Route{
	TypeActivityCreated:   {Topic: TopicActivities, SchemaSubject: TopicActivities + "-value"},
	TypeParticipantJoined: {Topic: TopicMembership, SchemaSubject: TopicMembership + "-value"},
	TypeParticipantLeft:   {Topic: TopicMembership, SchemaSubject: TopicMembership + "-value"},
}
