package domain

import "context"

// ActivityStore is the document-store contract for activities.
type ActivityStore interface {
	CreateActivity(ctx context.Context, activity Activity) error
	GetActivity(ctx context.Context, id string) (*Activity, error)
	// ListActivities returns every activity ordered newest first by CreatedAt.
	ListActivities(ctx context.Context) ([]Activity, error)
	// AddParticipant is an idempotent set union. changed is false when the user was already present.
	AddParticipant(ctx context.Context, activityID, userID string) (changed bool, err error)
	// RemoveParticipant is an idempotent set removal. changed is false when the user was absent.
	RemoveParticipant(ctx context.Context, activityID, userID string) (changed bool, err error)
	// JoinedActivityIDs returns the ids of activities whose participant set contains userID.
	JoinedActivityIDs(ctx context.Context, userID string) ([]string, error)
}

// UserStore is the document-store contract for user profiles.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id, displayName, bio string) (*User, error)
}
