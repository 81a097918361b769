package outbox

import "example.com/tags/internal/events"

const activityCreatedSchema = `{
  "type": "object",
  "title": "ActivityCreated",
  "properties": {
    "activity_id": {"type": "string"},
    "created_by": {"type": "string"},
    "title": {"type": "string"},
    "category": {"type": "string", "enum": ["Coffee", "Walk", "Run", "Workout", "Food", "Drinks", "Study", "Other"]},
    "join_type": {"type": "string", "enum": ["open", "one_on_one", "limited"]},
    "date": {"type": "string"},
    "time": {"type": "string"},
    "latitude": {"type": "number", "minimum": -90, "maximum": 90},
    "longitude": {"type": "number", "minimum": -180, "maximum": 180},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "created_by", "title", "category", "join_type", "date", "time", "latitude", "longitude", "created_at"],
  "additionalProperties": false
}`

const membershipChangedSchema = `{
  "type": "object",
  "title": "MembershipChanged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "joined": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "joined", "occurred_at"],
  "additionalProperties": false
}`

// schemaCatalog maps event type to its JSON schema definition.
var schemaCatalog = map[string]string{
	events.TypeActivityCreated:   activityCreatedSchema,
	events.TypeParticipantJoined: membershipChangedSchema,
	events.TypeParticipantLeft:   membershipChangedSchema,
}
