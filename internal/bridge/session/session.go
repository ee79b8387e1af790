// Package session owns the bridge's session identifier and the
// reconnection-attempt policy for when to reuse versus rotate it (§3,
// §4.6 "Session-id policy").
package session

import (
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// RotateAfterAttempt is the reconnect-attempt count at which the
// supervisor stops reusing originalSessionId and starts minting a fresh
// one, per §4.6: "From the third attempt onward, generate a fresh random
// session id".
const RotateAfterAttempt = 3

// Session is the tuple of §3: (sessionId, originalSessionId, endpointUrl).
type Session struct {
	mux               sync.RWMutex
	id                string
	originalId        string
	originalIdFrozen  bool
	endpoint          string
}

// New mints a fresh session with a random id. originalSessionId is frozen
// the first time Freeze is called (at first successful handshake).
func New() *Session {
	id := uuid.New().String()
	return &Session{id: id, originalId: id}
}

// ID returns the current session id.
func (s *Session) ID() string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.id
}

// OriginalID returns originalSessionId, frozen at first successful
// handshake (or the startup id if no handshake has completed yet).
func (s *Session) OriginalID() string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.originalId
}

// Freeze captures the current id as originalSessionId exactly once. A
// successful reconnect resets counters but never re-freezes (§4.6).
func (s *Session) Freeze() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if !s.originalIdFrozen {
		s.originalId = s.id
		s.originalIdFrozen = true
	}
}

// Rotate applies the session-id policy for reconnect attempt number
// attempt (1-based): attempts 1 and 2 reuse originalSessionId; attempt 3
// onward mints a fresh random id. originalSessionId itself never changes.
func (s *Session) Rotate(attempt int) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if attempt < RotateAfterAttempt {
		s.id = s.originalId
		return
	}
	s.id = uuid.New().String()
}

// Endpoint returns the per-session POST URL delivered by the SSE
// "endpoint" event, or "" if it has not arrived yet.
func (s *Session) Endpoint() string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.endpoint
}

// SetEndpoint records the POST endpoint URL.
func (s *Session) SetEndpoint(endpoint string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.endpoint = endpoint
}

// ClearEndpoint drops the known endpoint, e.g. on leaving READY.
func (s *Session) ClearEndpoint() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.endpoint = ""
}

// StreamURL appends (or replaces) the session_id query parameter on base,
// the upstream SSE URL, per §6 step 1.
func StreamURL(base, sessionId string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("session_id", sessionId)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
