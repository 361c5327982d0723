package session

import (
	"context"
	"sort"
	"sync"
)

// Store persists one Session per browser profile. Implementations must make Set,
// Clear and Update atomic: a reader never sees a session with only some slots
// written.
type Store interface {
	Get(ctx context.Context, profile string) (Session, error)
	Set(ctx context.Context, profile string, sess Session) error
	Clear(ctx context.Context, profile string) error
	// Update applies fn to the stored session and writes the result as one unit.
	// It returns ErrNoSession when the profile has no session.
	Update(ctx context.Context, profile string, fn func(Session) (Session, error)) error
	// Profiles lists the profiles that currently hold a session.
	Profiles(ctx context.Context) ([]string, error)
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Get returns a copy of the profile's session.
func (s *MemoryStore) Get(ctx context.Context, profile string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[profile]
	if !ok {
		return Session{}, ErrNoSession
	}
	return cloneSession(sess), nil
}

// Set replaces the profile's session.
func (s *MemoryStore) Set(ctx context.Context, profile string, sess Session) error {
	if !sess.Complete() {
		return ErrPartialSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[profile] = cloneSession(sess)
	return nil
}

// Clear removes the profile's session.
func (s *MemoryStore) Clear(ctx context.Context, profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, profile)
	return nil
}

// Update runs fn under the store lock.
func (s *MemoryStore) Update(ctx context.Context, profile string, fn func(Session) (Session, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[profile]
	if !ok {
		return ErrNoSession
	}
	next, err := fn(cloneSession(current))
	if err != nil {
		return err
	}
	if !next.Complete() {
		return ErrPartialSession
	}
	s.sessions[profile] = cloneSession(next)
	return nil
}

// Profiles returns the stored profile keys in sorted order.
func (s *MemoryStore) Profiles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profiles := make([]string, 0, len(s.sessions))
	for profile := range s.sessions {
		profiles = append(profiles, profile)
	}
	sort.Strings(profiles)
	return profiles, nil
}

func cloneSession(sess Session) Session {
	if sess.Profile != nil {
		sess.Profile = append([]byte(nil), sess.Profile...)
	}
	return sess
}

var _ Store = (*MemoryStore)(nil)
