package places

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultDebounce is the input inactivity window before a search is issued.
const DefaultDebounce = 400 * time.Millisecond

// SearchFunc runs one forward search.
type SearchFunc func(ctx context.Context, query string) []Candidate

// Result is a search response delivered to a Searcher's owner.
type Result struct {
	Token      uint64      `json:"token"`
	Query      string      `json:"query"`
	Candidates []Candidate `json:"candidates"`
}

// Searcher debounces free-text input and delivers only the response for the most recently issued
// query. Each Submit advances a monotonically increasing token; a response whose token is no
// longer the latest is dropped, whatever order the HTTP responses complete in. All work is bound to
// the Searcher's lifetime: after Close nothing is delivered.
//
// deliver is called serially and must not call Submit or Close.
type Searcher struct {
	search  SearchFunc
	delay   time.Duration
	deliver func(Result)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	token    uint64
	timer    *time.Timer
	inflight context.CancelFunc
	closed   bool

	deliverMu sync.Mutex
	wg        sync.WaitGroup
}

// NewSearcher constructs a Searcher bound to parent.
func NewSearcher(parent context.Context, search SearchFunc, delay time.Duration, deliver func(Result)) *Searcher {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(parent)
	return &Searcher{
		search:  search,
		delay:   delay,
		deliver: deliver,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit records new input and returns its token. A blank query cancels pending work and delivers an
// empty candidate list without touching the network. Submit returns 0 once the Searcher is closed.
func (s *Searcher) Submit(query string) uint64 {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.token++
	token := s.token
	s.stopPendingLocked()

	if query == "" {
		s.mu.Unlock()
		s.publish(Result{Token: token, Query: "", Candidates: []Candidate{}})
		return token
	}

	s.wg.Add(1)
	s.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.fire(token, query)
	})
	s.mu.Unlock()
	return token
}

// Latest returns the most recently issued token.
func (s *Searcher) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Close cancels in-flight searches, suppresses later deliveries and waits for background work.
func (s *Searcher) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.stopPendingLocked()
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// stopPendingLocked stops a debounce timer that has not fired and cancels the in-flight search.
func (s *Searcher) stopPendingLocked() {
	if s.timer != nil {
		if s.timer.Stop() {
			s.wg.Done()
		}
		s.timer = nil
	}
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
}

func (s *Searcher) fire(token uint64, query string) {
	s.mu.Lock()
	if s.closed || token != s.token {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.inflight = cancel
	s.mu.Unlock()

	candidates := s.search(ctx, query)
	cancel()
	if candidates == nil {
		candidates = []Candidate{}
	}
	s.publish(Result{Token: token, Query: query, Candidates: candidates})
}

func (s *Searcher) publish(result Result) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	current := !s.closed && result.Token == s.token
	s.mu.Unlock()
	if !current {
		recordStale()
		return
	}
	s.deliver(result)
}
