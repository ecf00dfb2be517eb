package server

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/latino/vm"
)

// Session is one evaluation workspace: an interactive VM whose bindings
// persist across requests, driven by its own worker.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	worker *VMWorker
	out    *bytes.Buffer // VM output; only touched on the worker goroutine

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed returns the time of the most recent lookup of the session.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionStore manages evaluation sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	vmOpts   []vm.Option
}

// NewSessionStore creates a session store. opts are applied to every
// session VM after the interactive setting.
func NewSessionStore(opts ...vm.Option) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		vmOpts:   opts,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	out := &bytes.Buffer{}
	opts := append([]vm.Option(nil), s.vmOpts...)
	// Sessions keep their bindings between requests and capture output,
	// whatever the options say.
	opts = append(opts, vm.WithInteractive(true), vm.WithOutput(out))

	now := time.Now()
	session := &Session{
		ID:       uuid.NewString(),
		Name:     name,
		Created:  now,
		worker:   NewVMWorker(vm.New(opts...)),
		out:      out,
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if ok {
		session.touch()
	}
	return session, ok
}

// Destroy removes a session and stops its worker. It reports whether the
// session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.worker.Stop()
	}
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep destroys sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var stale []*Session
	for id, session := range s.sessions {
		if session.LastUsed().Before(cutoff) {
			stale = append(stale, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range stale {
		session.worker.Stop()
	}
	return len(stale)
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function. A non-positive interval or ttl disables sweeping.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	if interval <= 0 || ttl <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(ttl); n > 0 {
					log.Infof("expired %d idle sessions", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Close destroys every session.
func (s *SessionStore) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.worker.Stop()
	}
}
