package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"example.com/tags/internal/domain"
)

// poiPreference is the order in which address components are preferred as a place label.
var poiPreference = []string{
	"school", "college", "university",
	"cafe", "restaurant", "bar", "pub", "fast_food", "shop",
	"road", "neighbourhood", "suburb", "village", "town", "city",
}

// reverseResponse is the subset of a LocationIQ/Nominatim reverse payload we read.
type reverseResponse struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// label picks the structured point-of-interest label before the generic formatted address.
func (r reverseResponse) label() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	for _, key := range poiPreference {
		if value := strings.TrimSpace(r.Address[key]); value != "" {
			return value
		}
	}
	return strings.TrimSpace(r.DisplayName)
}

// searchHit is one entry of a Nominatim search payload. Coordinates arrive as strings.
type searchHit struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (h searchHit) candidate() (Candidate, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(h.Lat), 64)
	if err != nil {
		return Candidate{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(h.Lon), 64)
	if err != nil {
		return Candidate{}, false
	}
	if !(domain.Coordinate{Latitude: lat, Longitude: lon}).Valid() || strings.TrimSpace(h.DisplayName) == "" {
		return Candidate{}, false
	}
	return Candidate{Label: strings.TrimSpace(h.DisplayName), Latitude: lat, Longitude: lon}, true
}

// errNoResult marks a provider response that carried no usable place.
var errNoResult = errors.New("no result")

// ProviderError represents a non-successful provider response.
type ProviderError struct {
	Op     string
	Status int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider responded with status %d", e.Op, e.Status)
}

// provider performs rate-limited, time-bounded JSON requests against a geocoding API.
type provider struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	timeout   time.Duration
}

func (p *provider) getJSON(ctx context.Context, op, endpoint string, params url.Values, dest any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		recordProvider(op, "rate_limited", 0)
		return err
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, errNoResult):
			outcome = "empty"
		case err != nil:
			outcome = "error"
		}
		recordProvider(op, outcome, time.Since(start))
	}()

	target := endpoint
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errNoResult
	}
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &ProviderError{Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
