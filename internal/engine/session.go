package engine

import (
	"sync"
	"time"
)

// Capture is the most recent unenrolled card read observed while a
// detection session is active.
type Capture struct {
	UID      string    `json:"uid"`
	Hostname string    `json:"hostname"`
	At       time.Time `json:"at"`
}

// DetectionSession is the transient capture mode used to auto-fill an
// unregistered card's UID during enrollment.
//
// At most one session is active at a time: a Start while already active
// preempts the previous session rather than queuing, since only one
// enrollment form is expected to be open. A capture persists until the
// session is stopped or a newer scan replaces it; Peek never consumes
// it. All methods are safe for concurrent use.
type DetectionSession struct {
	mu      sync.Mutex
	active  bool
	scope   string
	capture *Capture
}

// NewDetectionSession creates an idle session.
func NewDetectionSession() *DetectionSession {
	return &DetectionSession{}
}

// Start activates the session for the given caller scope, discarding
// any previous session's captured state.
func (s *DetectionSession) Start(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.scope = scope
	s.capture = nil
}

// Stop deactivates the session and clears the captured state. Safe to
// call on an idle session.
func (s *DetectionSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.scope = ""
	s.capture = nil
}

// Active reports whether the session is currently capturing.
func (s *DetectionSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Scope returns the caller scope of the active session, or "" when
// idle.
func (s *DetectionSession) Scope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Peek returns the current capture without mutating it. The second
// return is false when the session is idle or nothing has been
// captured yet.
func (s *DetectionSession) Peek() (Capture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || s.capture == nil {
		return Capture{}, false
	}
	return *s.capture, true
}

// Offer presents a card read to the session. It is captured only while
// the session is active; a newer read replaces an earlier one. Returns
// true when the read was captured.
func (s *DetectionSession) Offer(uid, hostname string, at time.Time) bool {
	if uid == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.capture = &Capture{UID: uid, Hostname: hostname, At: at.UTC()}
	return true
}
