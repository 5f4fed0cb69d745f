package search

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/leadmap/internal/leads"
)

// ErrSessionNotFound is returned for unknown or evicted session IDs.
var ErrSessionNotFound = errors.New("search session not found")

// Session is one search and the leads it produced.
type Session struct {
	ID        string
	Account   string
	Query     string
	CreatedAt time.Time
	Store     *leads.Store

	finished bool // guarded by Sessions.mu
}

// Sessions is an in-memory registry of search sessions. When full, the
// oldest finished session is evicted. Sessions whose search is still running
// are evicted only when every slot is running.
type Sessions struct {
	mu        sync.Mutex
	max       int
	byID      map[string]*Session
	order     []string
	storeOpts []leads.Option
	now       func() time.Time
}

// NewSessions creates a registry holding at most maxSessions sessions.
// storeOpts configure each session's lead store.
func NewSessions(maxSessions int, storeOpts ...leads.Option) *Sessions {
	if maxSessions <= 0 {
		maxSessions = 100
	}
	return &Sessions{
		max:       maxSessions,
		byID:      make(map[string]*Session),
		storeOpts: storeOpts,
		now:       time.Now,
	}
}

// Create registers a new empty session.
func (s *Sessions) Create(account, query string) *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		Account:   account,
		Query:     query,
		CreatedAt: s.now().UTC(),
		Store:     leads.New(s.storeOpts...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.order) >= s.max {
		s.evictLocked()
	}
	s.byID[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	return sess
}

// evictLocked removes the oldest finished session, or the oldest session
// when none has finished.
func (s *Sessions) evictLocked() {
	idx := 0
	for i, id := range s.order {
		if s.byID[id].finished {
			idx = i
			break
		}
	}
	delete(s.byID, s.order[idx])
	s.order = append(s.order[:idx], s.order[idx+1:]...)
}

// Finish marks a session's search as complete, making it eligible for
// eviction ahead of running ones. Unknown IDs are ignored.
func (s *Sessions) Finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.byID[id]; ok {
		sess.finished = true
	}
}

// Get returns the session with the given ID.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes a session. Unknown IDs are ignored.
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
