package identity

import (
	"context"
	"sync"

	"campus-care-api/internal/access"
	"campus-care-api/internal/model"
)

type Status int

const (
	StatusSignedOut Status = iota
	StatusLoading
	StatusSignedIn
)

type State struct {
	Status  Status
	Profile *model.Profile
}

func (s State) Subject() access.Subject {
	return access.Subject{Loading: s.Status == StatusLoading, Profile: s.Profile}
}

// Session is the auth context of one client connection. Listeners hear
// about sign-in, sign-out and token refresh. Feeds opened on behalf of the
// session are registered with Track and torn down when the principal
// signs out or changes.
type Session struct {
	resolver *Resolver

	mu        sync.Mutex
	state     State
	token     string
	listeners map[int]func(State)
	tracked   map[int]func()
	nextID    int

	notifyMu sync.Mutex
}

func NewSession(r *Resolver) *Session {
	return &Session{
		resolver:  r,
		listeners: make(map[int]func(State)),
		tracked:   make(map[int]func()),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe calls fn with the current state and on every change until
// the returned cancel func runs.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	st := s.state
	s.mu.Unlock()

	fn(st)
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetToken signs the session in, or refreshes it with a new token. When
// the token belongs to a different principal the previous principal's
// feeds are torn down first.
func (s *Session) SetToken(ctx context.Context, raw string) (model.Profile, error) {
	s.publish(State{Status: StatusLoading, Profile: s.State().Profile}, nil)

	p, err := s.resolver.Resolve(ctx, raw)
	if err != nil {
		s.Clear()
		return model.Profile{}, err
	}

	s.mu.Lock()
	prev := s.state.Profile
	s.token = raw
	s.mu.Unlock()

	var teardown []func()
	if prev != nil && prev.ID != p.ID {
		teardown = s.untrackAll()
	}
	s.publish(State{Status: StatusSignedIn, Profile: &p}, teardown)
	return p, nil
}

// Clear signs the session out and cancels every tracked feed.
func (s *Session) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	s.publish(State{Status: StatusSignedOut}, s.untrackAll())
}

// Track registers cancel to run on sign-out. The returned func removes it
// again once the feed ends on its own.
func (s *Session) Track(cancel func()) (untrack func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.tracked[id] = cancel
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.tracked, id)
		s.mu.Unlock()
	}
}

func (s *Session) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

func (s *Session) Authorize(allowed ...model.Role) access.Decision {
	return access.Authorize(s.State().Subject(), allowed)
}

func (s *Session) untrackAll() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(), 0, len(s.tracked))
	for id, fn := range s.tracked {
		out = append(out, fn)
		delete(s.tracked, id)
	}
	return out
}

// publish runs teardown before listeners see the new state. Deliveries
// are serialized so listeners observe states in order.
func (s *Session) publish(st State, teardown []func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	for _, fn := range teardown {
		fn()
	}

	s.mu.Lock()
	s.state = st
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
