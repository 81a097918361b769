package places

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) deliver(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recorder) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

type countingSearch struct {
	mu      sync.Mutex
	queries []string
}

func (c *countingSearch) search(_ context.Context, query string) []Candidate {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	return []Candidate{{Label: query, Latitude: 1, Longitude: 2}}
}

func (c *countingSearch) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func TestSearcherDebouncesRapidInput(t *testing.T) {
	rec := &recorder{}
	backend := &countingSearch{}
	s := NewSearcher(context.Background(), backend.search, 30*time.Millisecond, rec.deliver)
	defer s.Close()

	s.Submit("k")
	s.Submit("ko")
	last := s.Submit("kor")

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"kor"}, backend.calls())

	got := rec.snapshot()[0]
	require.Equal(t, last, got.Token)
	require.Equal(t, "kor", got.Query)
	require.Equal(t, "kor", got.Candidates[0].Label)
}

func TestSearcherDropsStaleResponse(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	started := make(chan string, 2)

	search := func(_ context.Context, query string) []Candidate {
		started <- query
		if query == "slow" {
			<-release
		}
		return []Candidate{{Label: query}}
	}
	s := NewSearcher(context.Background(), search, 5*time.Millisecond, rec.deliver)
	defer s.Close()

	s.Submit("slow")
	require.Equal(t, "slow", <-started)

	latest := s.Submit("fast")
	require.Equal(t, "fast", <-started)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	time.Sleep(20 * time.Millisecond)

	results := rec.snapshot()
	require.Len(t, results, 1)
	require.Equal(t, latest, results[0].Token)
	require.Equal(t, "fast", results[0].Query)
}

func TestSearcherBlankQueryDeliversImmediately(t *testing.T) {
	rec := &recorder{}
	backend := &countingSearch{}
	s := NewSearcher(context.Background(), backend.search, time.Hour, rec.deliver)
	defer s.Close()

	s.Submit("pending")
	token := s.Submit("   ")

	results := rec.snapshot()
	require.Len(t, results, 1)
	require.Equal(t, token, results[0].Token)
	require.NotNil(t, results[0].Candidates)
	require.Empty(t, results[0].Candidates)
	require.Empty(t, backend.calls())
}

func TestSearcherCloseSuppressesDelivery(t *testing.T) {
	rec := &recorder{}
	started := make(chan struct{})

	search := func(ctx context.Context, query string) []Candidate {
		close(started)
		<-ctx.Done()
		return []Candidate{{Label: query}}
	}
	s := NewSearcher(context.Background(), search, time.Millisecond, rec.deliver)

	s.Submit("indiranagar")
	<-started
	s.Close()

	require.Empty(t, rec.snapshot())
	require.Zero(t, s.Submit("again"))
}

func TestSearcherTokensIncrease(t *testing.T) {
	s := NewSearcher(context.Background(), (&countingSearch{}).search, time.Hour, func(Result) {})
	defer s.Close()

	first := s.Submit("a")
	second := s.Submit("b")
	require.Greater(t, second, first)
	require.Equal(t, second, s.Latest())
}
