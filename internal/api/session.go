package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/afpdata/mailsift/internal/query"
)

// ErrAuthentication marks a session-gate mismatch. All interaction
// except re-entry of the secret is blocked until the gate passes.
var ErrAuthentication = eris.New("authentication failed")

// Session holds per-session state: whether the gate has been passed
// and the last successful result set, kept for CSV export. This is
// deliberately explicit state passed around by reference, never a
// package-level global. Request handlers run concurrently, so the
// mutable fields are guarded by the session's own mutex; lastSeen is
// guarded by the store's lock instead, which is always held where it
// is touched.
type Session struct {
	Token     string
	CreatedAt time.Time

	mu            sync.Mutex
	authenticated bool
	lastResults   *query.ResultSet

	lastSeen time.Time
}

// Authenticate marks the gate as passed for this session's lifetime.
func (s *Session) Authenticate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
}

// IsAuthenticated reports whether the gate has been passed.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// SetLastResults replaces the session's exportable result set. Pass
// nil after a failed query so export can never serve stale rows.
func (s *Session) SetLastResults(rs *query.ResultSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResults = rs
}

// LastResults returns the session's exportable result set, nil when
// no successful search has run.
func (s *Session) LastResults() *query.ResultSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResults
}

// SessionStore tracks active sessions by token.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store whose sessions expire after idleTTL
// without activity.
func NewSessionStore(idleTTL time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Create mints a new unauthenticated session.
func (s *SessionStore) Create() *Session {
	token := newToken()
	now := s.now()
	sess := &Session{Token: token, CreatedAt: now, lastSeen: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = sess
	return sess
}

// Get returns the session for token, refreshing its idle timer.
// Expired or unknown tokens return nil.
func (s *SessionStore) Get(token string) *Session {
	if token == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	now := s.now()
	if now.Sub(sess.lastSeen) > s.idleTTL {
		delete(s.sessions, token)
		return nil
	}
	sess.lastSeen = now
	return sess
}

// Sweep removes idle sessions.
func (s *SessionStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for token, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.idleTTL {
			delete(s.sessions, token)
		}
	}
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Janitor sweeps idle sessions periodically until ctx is cancelled.
// Without it, a session is only removed when its own token comes back
// after expiry, and abandoned sessions pin their result sets forever.
func (s *SessionStore) Janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
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

func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// rand.Read only fails when the OS entropy source is broken,
		// at which point serving sessions at all is unsafe.
		panic(err)
	}
	return hex.EncodeToString(b)
}
