package places

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reverse      string
	reverseCode  int
	nearby       string
	search       string
	reverseCalls atomic.Int32
	searchCalls  atomic.Int32
	lastQuery    atomic.Value
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/reverse":
			f.reverseCalls.Add(1)
			assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
			assert.Equal(t, "json", r.URL.Query().Get("format"))
			if f.reverseCode != 0 {
				w.WriteHeader(f.reverseCode)
				return
			}
			_, _ = io.WriteString(w, f.reverse)
		case "/search":
			f.searchCalls.Add(1)
			f.lastQuery.Store(r.URL.RawQuery)
			assert.Equal(t, "TagsTest/1.0", r.Header.Get("User-Agent"))
			if r.URL.Query().Get("q") == "" {
				_, _ = io.WriteString(w, f.nearby)
				return
			}
			_, _ = io.WriteString(w, f.search)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(t *testing.T, srv *httptest.Server, cache Cache) *Resolver {
	t.Helper()
	return NewResolver(Options{
		ReverseURL:   srv.URL + "/reverse",
		ReverseKey:   "secret-key",
		SearchURL:    srv.URL,
		UserAgent:    "TagsTest/1.0",
		CountryCodes: "in",
		Timeout:      2 * time.Second,
		CacheTTL:     time.Minute,
	}, cache, WithLogger(log.New(io.Discard, "", 0)))
}

func TestResolveNamePrefersPointOfInterest(t *testing.T) {
	provider := &fakeProvider{reverse: `{
		"display_name": "14, MG Road, Bengaluru, Karnataka, India",
		"address": {"road": "MG Road", "cafe": "Joe's Coffee", "city": "Bengaluru"}
	}`}
	resolver := newTestResolver(t, provider.server(t), nil)

	require.Equal(t, "Joe's Coffee", resolver.ResolveName(context.Background(), 12.9756, 77.6050))
	require.EqualValues(t, 0, provider.searchCalls.Load())
}

func TestResolveNameUsesNameBeforeAddress(t *testing.T) {
	provider := &fakeProvider{reverse: `{"name": "Cubbon Park", "address": {"school": "St Joseph's"}}`}
	resolver := newTestResolver(t, provider.server(t), nil)

	require.Equal(t, "Cubbon Park", resolver.ResolveName(context.Background(), 12.97, 77.59))
}

func TestResolveNameSchoolBeatsCafe(t *testing.T) {
	provider := &fakeProvider{reverse: `{"address": {"cafe": "Third Wave", "school": "Bishop Cotton"}}`}
	resolver := newTestResolver(t, provider.server(t), nil)

	require.Equal(t, "Bishop Cotton", resolver.ResolveName(context.Background(), 12.97, 77.59))
}

func TestResolveNameFallsBackToProximitySearch(t *testing.T) {
	provider := &fakeProvider{
		reverse: `{}`,
		nearby:  `[{"display_name": "Lalbagh Botanical Garden", "lat": "12.95", "lon": "77.58"}]`,
	}
	resolver := newTestResolver(t, provider.server(t), nil)

	require.Equal(t, "Lalbagh Botanical Garden", resolver.ResolveName(context.Background(), 12.9507, 77.5848))
	require.EqualValues(t, 1, provider.searchCalls.Load())
}

func TestResolveNameDegradesToCoordinates(t *testing.T) {
	cases := map[string]*fakeProvider{
		"empty everywhere": {reverse: `{}`, nearby: `[]`},
		"provider error":   {reverseCode: http.StatusInternalServerError},
		"malformed json":   {reverse: `{"address":`},
		"not found":        {reverseCode: http.StatusNotFound, nearby: `[]`},
	}
	for name, provider := range cases {
		t.Run(name, func(t *testing.T) {
			resolver := newTestResolver(t, provider.server(t), nil)
			require.Equal(t, "12.97560, 77.60500", resolver.ResolveName(context.Background(), 12.9756, 77.6050))
		})
	}
}

func TestResolveNameNetworkFailureDegrades(t *testing.T) {
	provider := &fakeProvider{}
	srv := provider.server(t)
	resolver := newTestResolver(t, srv, nil)
	srv.Close()

	require.Equal(t, "1.00000, 2.00000", resolver.ResolveName(context.Background(), 1, 2))
}

func TestResolveNameUsesCache(t *testing.T) {
	provider := &fakeProvider{reverse: `{"address": {"cafe": "Joe's Coffee"}}`}
	cache := newMemoryCache()
	resolver := newTestResolver(t, provider.server(t), cache)

	require.Equal(t, "Joe's Coffee", resolver.ResolveName(context.Background(), 12.9756, 77.6050))
	require.Equal(t, "Joe's Coffee", resolver.ResolveName(context.Background(), 12.9756, 77.6050))
	require.EqualValues(t, 1, provider.reverseCalls.Load())
}

func TestSearchReturnsAtMostFiveCandidates(t *testing.T) {
	provider := &fakeProvider{search: `[
		{"display_name": "Koramangala 1", "lat": "12.93", "lon": "77.62"},
		{"display_name": "Koramangala 2", "lat": "12.94", "lon": "77.62"},
		{"display_name": "broken", "lat": "north", "lon": "77.62"},
		{"display_name": "Koramangala 3", "lat": "12.95", "lon": "77.62"},
		{"display_name": "Koramangala 4", "lat": "12.96", "lon": "77.62"},
		{"display_name": "Koramangala 5", "lat": "12.97", "lon": "77.62"},
		{"display_name": "Koramangala 6", "lat": "12.98", "lon": "77.62"}
	]`}
	resolver := newTestResolver(t, provider.server(t), nil)

	candidates := resolver.Search(context.Background(), " koramangala ")
	require.Len(t, candidates, MaxCandidates)
	require.Equal(t, "Koramangala 1", candidates[0].Label)
	require.InDelta(t, 12.93, candidates[0].Latitude, 1e-9)
	require.Equal(t, "Koramangala 5", candidates[4].Label)

	raw := provider.lastQuery.Load().(string)
	require.Contains(t, raw, "limit=5")
	require.Contains(t, raw, "countrycodes=in")
}

func TestSearchBlankQuerySkipsNetwork(t *testing.T) {
	provider := &fakeProvider{}
	resolver := newTestResolver(t, provider.server(t), nil)

	candidates := resolver.Search(context.Background(), "   ")
	require.NotNil(t, candidates)
	require.Empty(t, candidates)
	require.EqualValues(t, 0, provider.searchCalls.Load())
}

func TestSearchFailureYieldsEmptyList(t *testing.T) {
	provider := &fakeProvider{search: `not json`}
	resolver := newTestResolver(t, provider.server(t), nil)

	candidates := resolver.Search(context.Background(), "indiranagar")
	require.NotNil(t, candidates)
	require.Empty(t, candidates)
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *memoryCache) Set(_ context.Context, key, value string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// gatedProvider holds every request until release is closed.
func gatedProvider(t *testing.T, body string) (srv *httptest.Server, arrived chan struct{}, release chan struct{}, calls *atomic.Int32) {
	t.Helper()
	arrived = make(chan struct{}, 8)
	release = make(chan struct{})
	calls = &atomic.Int32{}
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		arrived <- struct{}{}
		<-release
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, arrived, release, calls
}

func TestSearchSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	srv, arrived, release, calls := gatedProvider(t, `[{"display_name":"Joe's Coffee, Indiranagar","lat":"12.97","lon":"77.64"}]`)
	resolver := newTestResolver(t, srv, nil)

	first, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan []Candidate, 1)
	go func() { firstDone <- resolver.Search(first, "joe") }()
	<-arrived

	secondDone := make(chan []Candidate, 1)
	go func() { secondDone <- resolver.Search(context.Background(), "joe") }()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.Empty(t, <-firstDone)

	close(release)
	select {
	case got := <-secondDone:
		require.Len(t, got, 1)
		require.Equal(t, "Joe's Coffee, Indiranagar", got[0].Label)
	case <-time.After(3 * time.Second):
		t.Fatal("second caller never returned")
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestResolveNameSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	srv, arrived, release, calls := gatedProvider(t, `{"address":{"cafe":"Joe's Coffee"}}`)
	resolver := NewResolver(Options{
		ReverseURL: srv.URL + "/reverse",
		SearchURL:  srv.URL,
		Timeout:    2 * time.Second,
	}, nil, WithLogger(log.New(io.Discard, "", 0)))

	first, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan string, 1)
	go func() { firstDone <- resolver.ResolveName(first, 12.9, 77.6) }()
	<-arrived

	secondDone := make(chan string, 1)
	go func() { secondDone <- resolver.ResolveName(context.Background(), 12.9, 77.6) }()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	require.Equal(t, "12.90000, 77.60000", <-firstDone)

	close(release)
	select {
	case got := <-secondDone:
		require.Equal(t, "Joe's Coffee", got)
	case <-time.After(3 * time.Second):
		t.Fatal("second caller never returned")
	}
	require.Equal(t, int32(1), calls.Load())
}
