package membership

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/tags/internal/auth"
	"example.com/tags/internal/domain"
	"example.com/tags/internal/events"
	"example.com/tags/internal/observability"
)

type memoryStore struct {
	domain.ActivityStore

	mu           sync.Mutex
	participants map[string][]string
	err          error
	calls        atomic.Int32
	gate         chan struct{}
	readGate     chan struct{}
	readStarted  chan struct{}
}

func newMemoryStore(activityIDs ...string) *memoryStore {
	s := &memoryStore{participants: make(map[string][]string)}
	for _, id := range activityIDs {
		s.participants[id] = []string{}
	}
	return s
}

func (s *memoryStore) AddParticipant(_ context.Context, activityID, userID string) (bool, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	current, ok := s.participants[activityID]
	if !ok {
		return false, domain.ErrActivityNotFound
	}
	if slices.Contains(current, userID) {
		return false, nil
	}
	s.participants[activityID] = append(current, userID)
	return true, nil
}

func (s *memoryStore) RemoveParticipant(_ context.Context, activityID, userID string) (bool, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	current, ok := s.participants[activityID]
	if !ok {
		return false, domain.ErrActivityNotFound
	}
	idx := slices.Index(current, userID)
	if idx < 0 {
		return false, nil
	}
	s.participants[activityID] = slices.Delete(current, idx, idx+1)
	return true, nil
}

// JoinedActivityIDs holds the first read after the snapshot is taken when readGate is set.
func (s *memoryStore) JoinedActivityIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	var ids []string
	for id, users := range s.participants {
		if slices.Contains(users, userID) {
			ids = append(ids, id)
		}
	}
	gate := s.readGate
	s.readGate = nil
	s.mu.Unlock()

	if gate != nil {
		s.readStarted <- struct{}{}
		<-gate
	}
	return ids, nil
}

func (s *memoryStore) members(activityID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.participants[activityID]...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var alice = &auth.Session{UserID: "alice"}

func TestJoinThenLeaveRoundTrip(t *testing.T) {
	store := newMemoryStore("a1")
	tracker := NewTracker(store)

	outcome, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)
	require.Equal(t, Joined, outcome.State)
	require.True(t, outcome.Changed)
	require.Equal(t, Joined, tracker.State("alice", "a1"))
	require.Equal(t, []string{"alice"}, store.members("a1"))

	outcome, err = tracker.Leave(context.Background(), alice, "a1")
	require.NoError(t, err)
	require.Equal(t, NotJoined, outcome.State)
	require.True(t, outcome.Changed)
	require.Equal(t, NotJoined, tracker.State("alice", "a1"))
	require.Empty(t, store.members("a1"))
}

func TestDoubleJoinDoesNotDuplicate(t *testing.T) {
	store := newMemoryStore("a1")
	tracker := NewTracker(store)
	before := testutil.ToFloat64(observability.MembershipCount("join", "unchanged"))

	_, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)
	outcome, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)

	require.False(t, outcome.Changed)
	require.Nil(t, outcome.Feedback)
	require.Equal(t, []string{"alice"}, store.members("a1"))
	require.Equal(t, before+1, testutil.ToFloat64(observability.MembershipCount("join", "unchanged")))
}

func TestConcurrentDuplicateJoinsAreCollapsed(t *testing.T) {
	store := newMemoryStore("a1")
	store.gate = make(chan struct{})
	tracker := NewTracker(store)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Join(context.Background(), alice, "a1")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return store.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	require.Equal(t, []string{"alice"}, store.members("a1"))
	require.Equal(t, Joined, tracker.State("alice", "a1"))
}

func TestJoinRequiresSession(t *testing.T) {
	store := newMemoryStore("a1")
	tracker := NewTracker(store)

	_, err := tracker.Join(context.Background(), nil, "a1")
	require.ErrorIs(t, err, domain.ErrAuthRequired)
	_, err = tracker.Leave(context.Background(), nil, "a1")
	require.ErrorIs(t, err, domain.ErrAuthRequired)

	require.Zero(t, store.calls.Load())
	require.Empty(t, store.members("a1"))
}

func TestStoreFailureLeavesStateUnchanged(t *testing.T) {
	store := newMemoryStore("a1")
	tracker := NewTracker(store)

	_, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)

	store.err = errors.New("connection reset by peer")
	_, err = tracker.Leave(context.Background(), alice, "a1")
	require.ErrorIs(t, err, domain.ErrNetwork)
	require.Contains(t, err.Error(), "connection reset by peer")
	require.Equal(t, Joined, tracker.State("alice", "a1"))
}

func TestJoinUnknownActivity(t *testing.T) {
	tracker := NewTracker(newMemoryStore())

	_, err := tracker.Join(context.Background(), alice, "missing")
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
	require.NotErrorIs(t, err, domain.ErrNetwork)
	require.Equal(t, NotJoined, tracker.State("alice", "missing"))
}

func TestFeedbackExpiresAndIsReplaced(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	tracker := NewTracker(newMemoryStore("a1"), WithClock(clock.Now))

	outcome, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)
	require.NotNil(t, outcome.Feedback)
	require.Equal(t, Celebrate, outcome.Feedback.Kind)
	require.Equal(t, 3*time.Second, outcome.Feedback.Duration)

	clock.Advance(time.Second)
	_, err = tracker.Leave(context.Background(), alice, "a1")
	require.NoError(t, err)

	fb, ok := tracker.ActiveFeedback("alice", "a1")
	require.True(t, ok)
	require.Equal(t, Farewell, fb.Kind)

	clock.Advance(2 * time.Second)
	_, ok = tracker.ActiveFeedback("alice", "a1")
	require.False(t, ok)
}

func TestReconcileStoreWins(t *testing.T) {
	store := newMemoryStore("a1", "a2", "a3")
	tracker := NewTracker(store)

	_, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)

	store.mu.Lock()
	store.participants["a1"] = []string{}
	store.participants["a2"] = []string{"alice"}
	store.mu.Unlock()

	n, err := tracker.Reconcile(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"a2"}, tracker.Joined("alice"))

	n, err = tracker.Reconcile(context.Background(), "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReconcileFailureKeepsView(t *testing.T) {
	store := newMemoryStore("a1")
	tracker := NewTracker(store)
	_, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)

	store.err = errors.New("timeout")
	_, err = tracker.Reconcile(context.Background(), "alice")
	require.Error(t, err)
	require.Equal(t, []string{"a1"}, tracker.Joined("alice"))
}

func TestApplyMembershipEvents(t *testing.T) {
	tracker := NewTracker(newMemoryStore())
	_, err := tracker.Reconcile(context.Background(), "bob")
	require.NoError(t, err)

	tracker.Apply(events.MembershipChanged{ActivityID: "a9", UserID: "bob", Joined: true})
	require.Equal(t, Joined, tracker.State("bob", "a9"))

	tracker.Apply(events.MembershipChanged{ActivityID: "a9", UserID: "bob", Joined: false})
	require.Equal(t, NotJoined, tracker.State("bob", "a9"))

	tracker.Apply(events.MembershipChanged{ActivityID: "", UserID: "bob", Joined: true})
	require.Empty(t, tracker.Joined("bob"))
}

func TestApplyIgnoresUntrackedUsers(t *testing.T) {
	tracker := NewTracker(newMemoryStore("a1"))

	for _, user := range []string{"u1", "u2", "u3"} {
		tracker.Apply(events.MembershipChanged{ActivityID: "a1", UserID: user, Joined: true})
		tracker.Apply(events.MembershipChanged{ActivityID: "a1", UserID: user, Joined: false})
	}
	require.Empty(t, tracker.Users())
	require.False(t, tracker.Tracked("u1"))

	_, err := tracker.Reconcile(context.Background(), "u1")
	require.NoError(t, err)
	tracker.Apply(events.MembershipChanged{ActivityID: "a1", UserID: "u1", Joined: true})

	require.Equal(t, []string{"u1"}, tracker.Users())
	state, tracked := tracker.Lookup("u1", "a1")
	require.True(t, tracked)
	require.Equal(t, Joined, state)
	_, tracked = tracker.Lookup("u2", "a1")
	require.False(t, tracked)
}

func TestReconcileDoesNotLoseConcurrentJoin(t *testing.T) {
	store := newMemoryStore("a1")
	readGate := make(chan struct{})
	store.readGate = readGate
	store.readStarted = make(chan struct{}, 1)
	tracker := NewTracker(store)

	done := make(chan error, 1)
	go func() {
		_, err := tracker.Reconcile(context.Background(), "alice")
		done <- err
	}()
	<-store.readStarted

	_, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)
	close(readGate)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconcile did not finish")
	}
	require.Equal(t, []string{"alice"}, store.members("a1"))
	require.Equal(t, Joined, tracker.State("alice", "a1"))
}

func TestReconcilerRunOnce(t *testing.T) {
	store := newMemoryStore("a1", "a2")
	tracker := NewTracker(store)
	_, err := tracker.Join(context.Background(), alice, "a1")
	require.NoError(t, err)
	_, err = tracker.Reconcile(context.Background(), "bob")
	require.NoError(t, err)
	tracker.Apply(events.MembershipChanged{ActivityID: "a2", UserID: "bob", Joined: true})

	store.mu.Lock()
	store.participants["a1"] = []string{}
	store.mu.Unlock()

	r := NewReconciler(tracker, time.Minute, time.Second, WithReconcilerLogger(log.New(io.Discard, "", 0)))
	require.Equal(t, 2, r.RunOnce(context.Background()))
	require.Empty(t, tracker.Joined("alice"))
	require.Empty(t, tracker.Joined("bob"))
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	tracker := NewTracker(newMemoryStore())
	r := NewReconciler(tracker, 5*time.Millisecond, time.Second, WithReconcilerLogger(log.New(io.Discard, "", 0)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
