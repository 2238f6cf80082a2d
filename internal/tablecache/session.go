package tablecache

import (
	"context"
	"sync"
	"time"

	"enigh/internal/logging"
	"enigh/internal/metrics"
)

type entry struct {
	cache    *Cache
	lastSeen time.Time
}

// SessionStore hands out one Cache per session id and forgets sessions that
// stay idle longer than the TTL. Session caches read through one shared,
// path-keyed store, so a table is held in memory once however many sessions
// open it. At most max sessions are kept; the least recently seen is evicted
// to make room.
type SessionStore struct {
	ttl     time.Duration
	max     int
	shared  *Cache
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewSessionStore creates a store. maxSessions of zero or less means no limit. load
// reads tables into the shared store; m is passed to every session Cache.
func NewSessionStore(ttl time.Duration, maxSessions int, load Loader, m *metrics.Metrics) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		max:      maxSessions,
		shared:   New(load, nil),
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the cache of a session, creating it when needed.
func (s *SessionStore) Get(id string) *Cache {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		if s.max > 0 && len(s.sessions) >= s.max {
			s.evictOldest()
		}
		e = &entry{cache: New(s.shared.Get, s.metrics)}
		s.sessions[id] = e
		s.observe()
	}
	e.lastSeen = s.now()
	return e.cache
}

// Shared is the store every session cache reads through. Callers without a
// session, such as the JSON API, use it directly.
func (s *SessionStore) Shared() *Cache {
	return s.shared
}

// Reload drops the tables of a session and of the shared store so the next
// request reads the files again. Other sessions keep the tables they already
// hold until they reload or expire.
func (s *SessionStore) Reload(id string) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		e.cache.Clear()
	}
	s.shared.Clear()
}

func (s *SessionStore) evictOldest() {
	var oldest string
	var seen time.Time
	for id, e := range s.sessions {
		if oldest == "" || e.lastSeen.Before(seen) {
			oldest, seen = id, e.lastSeen
		}
	}
	delete(s.sessions, oldest)
}

// Len is the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops sessions idle for longer than the TTL and returns how many.
func (s *SessionStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.observe()
	}
	if len(s.sessions) == 0 {
		s.shared.Clear()
	}
	return removed
}

// Run prunes on every interval until ctx is done.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	logger := logging.Component("tablecache")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				logger.Debug().Int("removed", n).Int("active", s.Len()).Msg("pruned idle sessions")
			}
		}
	}
}

func (s *SessionStore) observe() {
	if s.metrics != nil {
		s.metrics.Sessions.Set(float64(len(s.sessions)))
	}
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying the session cache.
func NewContext(ctx context.Context, c *Cache) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the session cache stored by NewContext.
func FromContext(ctx context.Context) (*Cache, bool) {
	c, ok := ctx.Value(contextKey{}).(*Cache)
	return c, ok
}
