// Package postgres stores activities, users and outbox events in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/tags/internal/domain"
	"example.com/tags/internal/events"
	"example.com/tags/internal/observability"
)

const activityColumns = `activity_id, title, description, category, join_type, max_participants, activity_date, activity_time,
        location_name, latitude, longitude, created_by, created_at, participants`

// Option configures optional behaviour for the Store.
type Option func(*Store)

// WithLogger overrides the logger used to report skipped rows.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store provides Postgres-backed persistence for activities, users and outbox events.
type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
	now    func() time.Time
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: log.New(log.Writer(), "[postgres] ", log.LstdFlags|log.Lshortfile),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateActivity persists the activity and records an activity.created outbox event in one transaction.
func (s *Store) CreateActivity(ctx context.Context, a domain.Activity) (err error) {
	point, ok := a.Location.Point()
	if !ok {
		return &domain.ValidationError{Fields: []string{"location"}, Reason: "location must be a valid coordinate"}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Network(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertActivity = `INSERT INTO activities (activity_id, title, description, category, join_type, max_participants,
            activity_date, activity_time, location_name, latitude, longitude, created_by, created_at, participants)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	participants := domain.NormalizeParticipants(a.Participants)
	if _, err = tx.Exec(ctx, insertActivity,
		a.ID,
		a.Title,
		a.Description,
		string(a.Category),
		string(a.JoinType.Kind),
		a.JoinType.MaxParticipants,
		a.Date,
		a.Time,
		a.Location.Name,
		point.Latitude,
		point.Longitude,
		a.CreatedBy,
		a.CreatedAt,
		participants,
	); err != nil {
		return domain.Network(err)
	}

	if err = insertOutbox(ctx, tx, "activity", a.ID, events.TypeActivityCreated, a.CreatedBy, events.ActivityCreated{
		ActivityID: a.ID,
		CreatedBy:  a.CreatedBy,
		Title:      a.Title,
		Category:   string(a.Category),
		JoinType:   string(a.JoinType.Kind),
		Date:       a.Date,
		Time:       a.Time,
		Latitude:   point.Latitude,
		Longitude:  point.Longitude,
		CreatedAt:  a.CreatedAt,
	}); err != nil {
		return domain.Network(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.Network(err)
	}
	observability.RecordActivityPersisted(a.CreatedAt)
	return nil
}

// GetActivity retrieves an activity by id.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id = $1`, id)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		if errors.Is(err, domain.ErrCorruptRecord) {
			return nil, err
		}
		return nil, domain.Network(err)
	}
	return &a, nil
}

// ListActivities returns every activity newest first. Rows that fail to decode are logged and skipped.
func (s *Store) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY created_at DESC, activity_id DESC`)
	if err != nil {
		return nil, domain.Network(err)
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			if errors.Is(err, domain.ErrCorruptRecord) {
				s.logger.Printf("skipping activity: %v", err)
				continue
			}
			return nil, domain.Network(err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Network(err)
	}
	return results, nil
}

// JoinedActivityIDs returns the ids of activities whose participant set contains userID.
func (s *Store) JoinedActivityIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT activity_id FROM activities WHERE $1 = ANY(participants) ORDER BY activity_id`, userID)
	if err != nil {
		return nil, domain.Network(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, domain.Network(err)
	}
	return ids, nil
}

// AddParticipant unions userID into the participant set. The update and its outbox event share a
// transaction; nothing is written when the user is already present.
func (s *Store) AddParticipant(ctx context.Context, activityID, userID string) (bool, error) {
	return s.changeParticipants(ctx, activityID, userID, true)
}

// RemoveParticipant removes userID from the participant set.
func (s *Store) RemoveParticipant(ctx context.Context, activityID, userID string) (bool, error) {
	return s.changeParticipants(ctx, activityID, userID, false)
}

func (s *Store) changeParticipants(ctx context.Context, activityID, userID string, join bool) (changed bool, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, domain.Network(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	stmt := `UPDATE activities SET participants = array_append(participants, $2)
        WHERE activity_id = $1 AND NOT ($2 = ANY(participants))`
	eventType := events.TypeParticipantJoined
	if !join {
		stmt = `UPDATE activities SET participants = array_remove(participants, $2)
        WHERE activity_id = $1 AND $2 = ANY(participants)`
		eventType = events.TypeParticipantLeft
	}

	tag, err := tx.Exec(ctx, stmt, activityID, userID)
	if err != nil {
		return false, domain.Network(err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM activities WHERE activity_id = $1)`, activityID).Scan(&exists); err != nil {
			return false, domain.Network(err)
		}
		if !exists {
			err = domain.ErrActivityNotFound
			return false, err
		}
		return false, tx.Commit(ctx)
	}

	if err = insertOutbox(ctx, tx, "activity", activityID, eventType, activityID, events.MembershipChanged{
		ActivityID: activityID,
		UserID:     userID,
		Joined:     join,
		OccurredAt: s.now().UTC(),
	}); err != nil {
		return false, domain.Network(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, domain.Network(err)
	}
	return true, nil
}

// CreateUser persists a user profile.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, email, display_name, photo_url, bio, rating, password_hash, created_at, updated_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		u.ID, u.Email, u.DisplayName, u.PhotoURL, u.Bio, u.Rating, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrEmailTaken
		}
		return domain.Network(err)
	}
	return nil
}

const userColumns = `user_id, email, display_name, photo_url, bio, rating, password_hash, created_at`

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, id)
}

// GetUserByEmail retrieves a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// UpdateProfile changes the mutable profile fields and returns the updated record.
func (s *Store) UpdateProfile(ctx context.Context, id, displayName, bio string) (*domain.User, error) {
	return s.getUser(ctx,
		`UPDATE users SET display_name = $2, bio = $3, updated_at = NOW() WHERE user_id = $1 RETURNING `+userColumns,
		id, displayName, bio)
}

func (s *Store) getUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Bio, &u.Rating, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Network(err)
	}
	return &u, nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a                   domain.Activity
		category, kind      string
		maxParticipants     int
		latitude, longitude *float64
		participants        []string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &category, &kind, &maxParticipants, &a.Date, &a.Time,
		&a.Location.Name, &latitude, &longitude, &a.CreatedBy, &a.CreatedAt, &participants); err != nil {
		return domain.Activity{}, err
	}

	parsedCategory, err := domain.ParseCategory(category)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("%w: activity %s: %v", domain.ErrCorruptRecord, a.ID, err)
	}
	parsedKind, err := domain.ParseJoinKind(kind)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("%w: activity %s: %v", domain.ErrCorruptRecord, a.ID, err)
	}
	a.Category = parsedCategory
	a.JoinType = domain.JoinType{Kind: parsedKind}
	if parsedKind == domain.JoinLimited {
		a.JoinType.MaxParticipants = maxParticipants
	}
	a.Location.Latitude = latitude
	a.Location.Longitude = longitude
	a.Participants = domain.NormalizeParticipants(participants)
	return a, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType, partitionKey string, payload any) error {
	route, ok := events.Routes[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		route.Topic,
		route.SchemaSubject,
		partitionKey,
		body,
	)
	return err
}
