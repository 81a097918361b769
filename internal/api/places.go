package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"example.com/tags/internal/domain"
	"example.com/tags/internal/places"
)

const (
	liveReadLimit    = 4096
	liveIdleTimeout  = 2 * time.Minute
	liveWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Live search serves public place data only.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// ReverseResponse is returned by GET /v1/places/reverse.
type ReverseResponse struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SearchResponse is returned by GET /v1/places/search.
type SearchResponse struct {
	Items []places.Candidate `json:"items"`
}

// LiveQuery is a message read from a live search socket.
type LiveQuery struct {
	Query string `json:"query"`
}

func (h *Handler) reverseGeocode(w http.ResponseWriter, r *http.Request) {
	point, err := parsePoint(r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	name := h.deps.Places.ResolveName(r.Context(), point.Latitude, point.Longitude)
	writeJSON(w, http.StatusOK, ReverseResponse{Name: name, Latitude: point.Latitude, Longitude: point.Longitude})
}

func (h *Handler) searchPlaces(w http.ResponseWriter, r *http.Request) {
	items := h.deps.Places.Search(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, SearchResponse{Items: items})
}

// liveSearch runs a debounced search session for the lifetime of a websocket connection. Only the
// response to the latest query is written back.
func (h *Handler) liveSearch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	searcher := places.NewSearcher(ctx, h.deps.Places.Search, h.deps.SearchDebounce, h.liveDeliver(conn, cancel))
	defer searcher.Close()

	conn.SetReadLimit(liveReadLimit)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveIdleTimeout))
		var msg LiveQuery
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("live search read ended: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		searcher.Submit(msg.Query)
	}
}

// liveWriter is the write side of a live search socket.
type liveWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
	Close() error
}

// liveDeliver writes results to conn. A failed write ends the session and closes conn so the read
// loop returns without waiting out its idle deadline.
func (h *Handler) liveDeliver(conn liveWriter, cancel context.CancelFunc) func(places.Result) {
	return func(res places.Result) {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(res); err != nil {
			h.logger.Printf("live search write failed: %v", err)
			cancel()
			_ = conn.Close()
		}
	}
}

func parsePoint(rawLat, rawLon string) (domain.Coordinate, error) {
	var invalid []string
	lat, err := strconv.ParseFloat(strings.TrimSpace(rawLat), 64)
	if err != nil {
		invalid = append(invalid, "lat")
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(rawLon), 64)
	if err != nil {
		invalid = append(invalid, "lon")
	}
	if len(invalid) > 0 {
		return domain.Coordinate{}, &domain.ValidationError{Fields: invalid}
	}
	point := domain.Coordinate{Latitude: lat, Longitude: lon}
	if !point.Valid() {
		return domain.Coordinate{}, &domain.ValidationError{Fields: []string{"lat", "lon"}, Reason: "coordinate out of range"}
	}
	return point, nil
}
