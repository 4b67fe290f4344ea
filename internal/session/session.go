// Package session keeps per-user exploration state: thresholds, the current
// country target and the current ranked priorities. Sessions are plain data;
// the ranking core is re-run on every threshold change.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/priority"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = eris.New("session: not found")

// DefaultTTL is the idle lifetime of a session.
const DefaultTTL = 30 * time.Minute

// Session is a snapshot of one user's state.
type Session struct {
	ID         string                `json:"id"`
	Thresholds priority.Thresholds   `json:"thresholds"`
	TargetCode string                `json:"targetCode,omitempty"`
	TargetName string                `json:"targetName,omitempty"`
	Neighbors  []string              `json:"neighbors"`
	Filtered   []priority.AreaRecord `json:"filtered"`
	CreatedAt  time.Time             `json:"createdAt"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

func (s *Session) clone() Session {
	out := *s
	out.Neighbors = slices.Clone(s.Neighbors)
	out.Filtered = slices.Clone(s.Filtered)
	return out
}

// Store is an in-memory, TTL-evicted session store safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	records  []priority.AreaRecord
	ttl      time.Duration

	nowFunc func() time.Time
}

// NewStore creates a store ranking against records. A non-positive ttl uses
// DefaultTTL.
func NewStore(records []priority.AreaRecord, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*Session),
		records:  records,
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

// Create starts a session with the default thresholds and their ranking.
func (s *Store) Create() Session {
	now := s.nowFunc()
	th := priority.DefaultThresholds()
	sess := &Session{
		ID:         uuid.NewString(),
		Thresholds: th,
		Neighbors:  []string{},
		Filtered:   priority.FilterPriorities(s.records, th),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	zap.L().Debug("session: created", zap.String("session_id", sess.ID))
	return sess.clone()
}

// Get returns the session and refreshes its idle timer.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	sess.UpdatedAt = s.nowFunc()
	return sess.clone(), nil
}

// SetThresholds stores new thresholds and recomputes the ranked set. The
// thresholds are expected to be validated by the caller.
func (s *Store) SetThresholds(id string, th priority.Thresholds) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	sess.Thresholds = th
	sess.Filtered = priority.FilterPriorities(s.records, th)
	sess.UpdatedAt = s.nowFunc()
	return sess.clone(), nil
}

// SetTarget records the selected country and its neighbor names.
func (s *Store) SetTarget(id, code, name string, neighbors []string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	sess.TargetCode = code
	sess.TargetName = name
	sess.Neighbors = slices.Clone(neighbors)
	if sess.Neighbors == nil {
		sess.Neighbors = []string{}
	}
	sess.UpdatedAt = s.nowFunc()
	return sess.clone(), nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions, expired ones included until the
// next Sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	var removed int
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		zap.L().Debug("session: swept idle sessions", zap.Int("removed", removed))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// lookup must be called with mu held. Expired sessions are removed eagerly.
func (s *Store) lookup(id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.nowFunc().Sub(sess.UpdatedAt) > s.ttl {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	return sess, nil
}
