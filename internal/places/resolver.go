// Package places turns coordinates and free text into human-readable places using external geocoding
// providers. Provider failures never reach callers: names degrade to the coordinate string and
// searches degrade to an empty candidate list.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"example.com/tags/internal/domain"
)

// MaxCandidates bounds the number of search results returned.
const MaxCandidates = 5

// Candidate is a ranked forward-search result.
type Candidate struct {
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Options configures a Resolver.
type Options struct {
	ReverseURL    string
	ReverseKey    string
	SearchURL     string
	UserAgent     string
	CountryCodes  string
	Timeout       time.Duration
	RatePerSecond float64
	CacheTTL      time.Duration
}

// Option configures optional behaviour for the Resolver.
type Option func(*Resolver)

// WithLogger overrides the logger used to report degraded lookups.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.provider.client = client
	}
}

// Resolver resolves coordinates to place names and text to place candidates.
type Resolver struct {
	opts     Options
	provider *provider
	cache    Cache
	group    singleflight.Group
	logger   *log.Logger
}

// NewResolver constructs a Resolver. A nil cache disables caching.
func NewResolver(opts Options, cache Cache, options ...Option) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Second
	}
	if cache == nil {
		cache = NoopCache{}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	r := &Resolver{
		opts:  opts,
		cache: cache,
		provider: &provider{
			client:    &http.Client{},
			limiter:   rate.NewLimiter(limit, 1),
			userAgent: opts.UserAgent,
			timeout:   opts.Timeout,
		},
		logger: log.New(log.Writer(), "[places] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// ResolveName returns a human-readable name for the coordinate. It never fails: any provider error
// degrades to the "lat, lon" string.
func (r *Resolver) ResolveName(ctx context.Context, lat, lon float64) string {
	point := domain.Coordinate{Latitude: lat, Longitude: lon}
	fallback := point.String()
	if !point.Valid() {
		return fallback
	}

	key := "places:reverse:" + strings.ReplaceAll(fallback, " ", "")
	if cached, ok := r.cache.Get(ctx, key); ok {
		return cached
	}

	// The shared lookup outlives any single caller; the provider timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolveUncached(shared, point), nil
	})
	var name string
	select {
	case <-ctx.Done():
		return fallback
	case res := <-ch:
		name = res.Val.(string)
	}
	if name != fallback {
		r.cache.Set(ctx, key, name, r.opts.CacheTTL)
	}
	return name
}

func (r *Resolver) resolveUncached(ctx context.Context, point domain.Coordinate) string {
	fallback := point.String()

	var rev reverseResponse
	params := url.Values{}
	if r.opts.ReverseKey != "" {
		params.Set("key", r.opts.ReverseKey)
	}
	params.Set("lat", formatCoord(point.Latitude))
	params.Set("lon", formatCoord(point.Longitude))
	params.Set("format", "json")

	err := r.provider.getJSON(ctx, "reverse", r.opts.ReverseURL, params, &rev)
	if err != nil && !errors.Is(err, errNoResult) {
		r.logger.Printf("reverse geocode failed (%s): %v", fallback, err)
		return fallback
	}
	if name := rev.label(); name != "" {
		return name
	}

	name, err := r.nearest(ctx, point)
	if err != nil {
		r.logger.Printf("proximity search failed (%s): %v", fallback, err)
		return fallback
	}
	if name == "" {
		return fallback
	}
	return name
}

// nearest runs a proximity search around the point and returns the first hit's label.
func (r *Resolver) nearest(ctx context.Context, point domain.Coordinate) (string, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")
	params.Set("extratags", "1")
	params.Set("lat", formatCoord(point.Latitude))
	params.Set("lon", formatCoord(point.Longitude))
	params.Set("radius", "30")

	var hits []searchHit
	if err := r.provider.getJSON(ctx, "nearby", r.searchEndpoint(), params, &hits); err != nil {
		if errors.Is(err, errNoResult) {
			return "", nil
		}
		return "", err
	}
	for _, hit := range hits {
		if label := strings.TrimSpace(hit.DisplayName); label != "" {
			return label, nil
		}
	}
	return "", nil
}

// Search returns up to MaxCandidates ranked candidates for the query. Blank queries and provider
// failures yield an empty list.
func (r *Resolver) Search(ctx context.Context, query string) []Candidate {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Candidate{}
	}

	key := fmt.Sprintf("places:search:%s:%s", r.opts.CountryCodes, strings.ToLower(query))
	if cached, ok := r.cache.Get(ctx, key); ok {
		var candidates []Candidate
		if err := json.Unmarshal([]byte(cached), &candidates); err == nil {
			return candidates
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.searchUncached(shared, query)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return []Candidate{}
	case res = <-ch:
	}
	if res.Err != nil {
		r.logger.Printf("place search failed (%q): %v", query, res.Err)
		return []Candidate{}
	}
	candidates := res.Val.([]Candidate)

	if encoded, err := json.Marshal(candidates); err == nil {
		r.cache.Set(ctx, key, string(encoded), r.opts.CacheTTL)
	}
	return append([]Candidate(nil), candidates...)
}

func (r *Resolver) searchUncached(ctx context.Context, query string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", fmt.Sprint(MaxCandidates))
	if r.opts.CountryCodes != "" {
		params.Set("countrycodes", r.opts.CountryCodes)
	}
	params.Set("q", query)

	var hits []searchHit
	if err := r.provider.getJSON(ctx, "search", r.searchEndpoint(), params, &hits); err != nil {
		if errors.Is(err, errNoResult) {
			return []Candidate{}, nil
		}
		return nil, err
	}

	candidates := make([]Candidate, 0, MaxCandidates)
	for _, hit := range hits {
		if len(candidates) == MaxCandidates {
			break
		}
		if c, ok := hit.candidate(); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func (r *Resolver) searchEndpoint() string {
	return strings.TrimRight(r.opts.SearchURL, "/") + "/search"
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
