// Package membership tracks which activities each user has joined.
//
// The store owns the participant sets. The Tracker keeps an optimistic per-user view that is updated
// after every successful join or leave, refreshed by Reconcile (store wins) and kept in step with
// other instances by applying membership events from the bus.
package membership

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"example.com/tags/internal/auth"
	"example.com/tags/internal/domain"
	"example.com/tags/internal/events"
	"example.com/tags/internal/observability"
)

// State is a user's membership in one activity.
type State string

const (
	NotJoined State = "not_joined"
	Joined    State = "joined"
)

// FeedbackKind names the cosmetic confirmation shown after a state change.
type FeedbackKind string

const (
	Celebrate FeedbackKind = "celebrate"
	Farewell  FeedbackKind = "farewell"
)

const (
	celebrateFor = 3 * time.Second
	farewellFor  = 2 * time.Second
)

// Feedback is a time-bounded confirmation. Starting a new one for the same activity replaces it.
type Feedback struct {
	Kind      FeedbackKind  `json:"kind"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ActiveAt reports whether the feedback is still showing at now.
func (f Feedback) ActiveAt(now time.Time) bool {
	return now.Before(f.StartedAt.Add(f.Duration))
}

// Outcome is the result of a join or leave.
type Outcome struct {
	ActivityID string    `json:"activity_id"`
	State      State     `json:"state"`
	Changed    bool      `json:"changed"`
	Feedback   *Feedback `json:"feedback,omitempty"`
}

// Option configures optional behaviour for the Tracker.
type Option func(*Tracker)

// WithClock overrides the time source used for feedback.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker runs the join/leave state machine against the store.
type Tracker struct {
	store domain.ActivityStore
	now   func() time.Time
	group singleflight.Group

	mu       sync.RWMutex
	joined   map[string]map[string]struct{}
	gen      map[string]uint64
	feedback map[feedbackKey]Feedback
}

type feedbackKey struct {
	userID     string
	activityID string
}

// NewTracker constructs a Tracker backed by store.
func NewTracker(store domain.ActivityStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		now:      time.Now,
		joined:   make(map[string]map[string]struct{}),
		gen:      make(map[string]uint64),
		feedback: make(map[feedbackKey]Feedback),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Join adds the caller to the activity's participant set.
func (t *Tracker) Join(ctx context.Context, session *auth.Session, activityID string) (Outcome, error) {
	return t.transition(ctx, session, activityID, true)
}

// Leave removes the caller from the activity's participant set.
func (t *Tracker) Leave(ctx context.Context, session *auth.Session, activityID string) (Outcome, error) {
	return t.transition(ctx, session, activityID, false)
}

func (t *Tracker) transition(ctx context.Context, session *auth.Session, activityID string, join bool) (Outcome, error) {
	op := "leave"
	if join {
		op = "join"
	}
	if session == nil || session.UserID == "" {
		observability.RecordMembership(op, "unauthenticated")
		return Outcome{}, domain.ErrAuthRequired
	}
	userID := session.UserID

	key := fmt.Sprintf("%s:%s:%s", op, activityID, userID)
	value, err, _ := t.group.Do(key, func() (any, error) {
		var (
			changed bool
			err     error
		)
		if join {
			changed, err = t.store.AddParticipant(ctx, activityID, userID)
		} else {
			changed, err = t.store.RemoveParticipant(ctx, activityID, userID)
		}
		if err != nil {
			return Outcome{}, err
		}
		return t.commit(userID, activityID, join, changed), nil
	})
	if err != nil {
		observability.RecordMembership(op, "error")
		if !errors.Is(err, domain.ErrActivityNotFound) {
			err = domain.Network(err)
		}
		return Outcome{}, fmt.Errorf("%s activity %s: %w", op, activityID, err)
	}

	outcome := value.(Outcome)
	if outcome.Changed {
		observability.RecordMembership(op, "changed")
	} else {
		observability.RecordMembership(op, "unchanged")
	}
	return outcome, nil
}

// commit records a confirmed store change locally and starts feedback when the set changed.
func (t *Tracker) commit(userID, activityID string, join, changed bool) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setLocked(userID, activityID, join)
	outcome := Outcome{ActivityID: activityID, State: stateOf(join), Changed: changed}
	if !changed {
		return outcome
	}

	fb := Feedback{Kind: Celebrate, StartedAt: t.now(), Duration: celebrateFor}
	if !join {
		fb = Feedback{Kind: Farewell, StartedAt: t.now(), Duration: farewellFor}
	}
	t.feedback[feedbackKey{userID, activityID}] = fb
	outcome.Feedback = &fb
	return outcome
}

// setLocked changes one entry of the user's view and bumps the user's generation.
func (t *Tracker) setLocked(userID, activityID string, join bool) {
	t.gen[userID]++
	set, ok := t.joined[userID]
	if !ok {
		set = make(map[string]struct{})
		t.joined[userID] = set
	}
	if join {
		set[activityID] = struct{}{}
	} else {
		delete(set, activityID)
	}
}

// State returns the locally known membership state.
func (t *Tracker) State(userID, activityID string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.joined[userID][activityID]
	return stateOf(ok)
}

// Joined returns the locally known joined activity ids, sorted.
func (t *Tracker) Joined(userID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.joined[userID]))
	for id := range t.joined[userID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Lookup returns the locally known state and whether the user has a tracked view at all.
func (t *Tracker) Lookup(userID, activityID string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, tracked := t.joined[userID]
	if !tracked {
		return NotJoined, false
	}
	_, ok := set[activityID]
	return stateOf(ok), true
}

// Tracked reports whether the user has a local view.
func (t *Tracker) Tracked(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.joined[userID]
	return ok
}

// ActiveFeedback returns the feedback still showing for the pair, if any.
func (t *Tracker) ActiveFeedback(userID, activityID string) (Feedback, bool) {
	key := feedbackKey{userID, activityID}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	fb, ok := t.feedback[key]
	if !ok {
		return Feedback{}, false
	}
	if !fb.ActiveAt(now) {
		delete(t.feedback, key)
		return Feedback{}, false
	}
	return fb, true
}

// Users returns every user with a tracked view.
func (t *Tracker) Users() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := make([]string, 0, len(t.joined))
	for id := range t.joined {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}

// reconcileAttempts bounds how often Reconcile re-reads the store while local changes keep landing.
const reconcileAttempts = 3

// Reconcile replaces the user's local view with the store's participant sets and returns the number
// of entries that were corrected. A store read that raced a local change is discarded and retried;
// the local view already reflects confirmed store writes.
func (t *Tracker) Reconcile(ctx context.Context, userID string) (int, error) {
	for range reconcileAttempts {
		t.mu.RLock()
		before := t.gen[userID]
		t.mu.RUnlock()

		ids, err := t.store.JoinedActivityIDs(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("reconcile %s: %w", userID, err)
		}
		truth := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			truth[id] = struct{}{}
		}

		t.mu.Lock()
		if t.gen[userID] != before {
			t.mu.Unlock()
			continue
		}
		local := t.joined[userID]
		corrections := 0
		for id := range local {
			if _, ok := truth[id]; !ok {
				corrections++
			}
		}
		for id := range truth {
			if _, ok := local[id]; !ok {
				corrections++
			}
		}
		t.joined[userID] = truth
		t.gen[userID]++
		t.mu.Unlock()

		observability.RecordReconcileCorrections(corrections)
		return corrections, nil
	}
	return 0, nil
}

// Apply folds a membership event published by any instance into the local view. Events for users
// this instance has not seen through a join, leave or sign-in are ignored.
func (t *Tracker) Apply(event events.MembershipChanged) {
	if event.UserID == "" || event.ActivityID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.joined[event.UserID]; !ok {
		return
	}
	t.setLocked(event.UserID, event.ActivityID, event.Joined)
}

func stateOf(joined bool) State {
	if joined {
		return Joined
	}
	return NotJoined
}
