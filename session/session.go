// Package session keeps the live replay sessions of the service, keyed by
// story and flow, and drives them on behalf of a controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/replay"
	"github.com/hairizuan-noorazman/ui-replay/summary"
)

var (
	// ErrSessionNotFound is returned when no session exists for a key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidCommand is returned for an unknown controller command.
	ErrInvalidCommand = errors.New("invalid command")
)

// Key identifies a session by the flow it replays.
type Key struct {
	Story string `json:"storyName"`
	Flow  string `json:"flowName"`
}

func (k Key) String() string {
	return k.Story + "/" + k.Flow
}

// Command is a controller instruction attached to a continue request.
type Command string

const (
	CommandNone           Command = ""
	CommandDisconnect     Command = "disconnect"
	CommandAbolish        Command = "abolish"
	CommandSwitchToRecord Command = "switch-to-record"
)

// ParseCommand validates a raw command.
func ParseCommand(raw string) (Command, error) {
	switch c := Command(raw); c {
	case CommandNone, CommandDisconnect, CommandAbolish, CommandSwitchToRecord:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, raw)
	}
}

// Replayer is the engine a session drives.
type Replayer interface {
	Start(ctx context.Context) (replay.Result, error)
	Next(ctx context.Context, f flow.Flow, index int) (replay.Result, error)
	Disconnect(ctx context.Context) summary.Report
	Abolish(ctx context.Context) summary.Report
	SwitchToRecord(ctx context.Context)
	Cursor() int
	State() replay.State
	Summary() *summary.Summary
}

// Session is one registered replay.
type Session struct {
	ID        uuid.UUID
	Key       Key
	Replayer  Replayer
	CreatedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
	busy       int
}

func newSession(key Key, r Replayer) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.New(),
		Key:        key,
		Replayer:   r,
		CreatedAt:  now,
		lastActive: now,
	}
}

// begin marks a request in flight.
func (s *Session) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy++
	s.lastActive = time.Now()
}

// done marks a request finished.
func (s *Session) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy--
	s.lastActive = time.Now()
}

// LastActive returns when the controller last touched the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// IsIdle reports whether the session has had no request in flight for longer than timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy == 0 && time.Since(s.lastActive) > timeout
}

// Info is a read-only view of a session.
type Info struct {
	ID         string         `json:"id"`
	StoryName  string         `json:"storyName"`
	FlowName   string         `json:"flowName"`
	Cursor     int            `json:"cursor"`
	State      replay.State   `json:"state"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastActive time.Time      `json:"lastActive"`
	Summary    summary.Report `json:"summary"`
}

// Info snapshots the session.
func (s *Session) Info() Info {
	return Info{
		ID:         s.ID.String(),
		StoryName:  s.Key.Story,
		FlowName:   s.Key.Flow,
		Cursor:     s.Replayer.Cursor(),
		State:      s.Replayer.State(),
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive(),
		Summary:    s.Replayer.Summary().Snapshot(),
	}
}

// Store is an in-memory session store.
type Store struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
}

// NewStore creates a new in-memory session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[Key]*Session),
	}
}

// Set stores a session, returning the one it replaced, if any.
func (s *Store) Set(session *Session) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[session.Key]
	s.sessions[session.Key] = session
	return prev
}

// Get retrieves a session from the store.
func (s *Store) Get(key Key) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[key]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Take removes and returns a session.
func (s *Store) Take(key Key) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[key]
	if !exists {
		return nil, ErrSessionNotFound
	}
	delete(s.sessions, key)
	return session, nil
}

// TakeIf removes the session for key only if it is still the given one.
func (s *Store) TakeIf(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[session.Key] != session {
		return false
	}
	delete(s.sessions, session.Key)
	return true
}

// List returns all sessions ordered by key.
func (s *Store) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Idle returns sessions idle for longer than timeout.
func (s *Store) Idle(timeout time.Duration) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, session := range s.sessions {
		if session.IsIdle(timeout) {
			out = append(out, session)
		}
	}
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
