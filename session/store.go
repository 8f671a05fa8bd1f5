package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/repositories"
	"go.uber.org/zap"
)

// ErrClosed is returned by Init once the store has been closed
var ErrClosed = errors.New("session store closed")

// Status reports whether the store finished its initial load
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
)

// Snapshot is a consistent view of the store. Role is empty when there is
// no session.
type Snapshot struct {
	Session *models.Session `json:"session"`
	Role    models.Role     `json:"role,omitempty"`
	Status  Status          `json:"status"`
}

// Backend is the auth-state source a store follows
type Backend interface {
	// OnAuthStateChange registers fn and returns its unsubscribe func
	OnAuthStateChange(fn func(models.AuthEvent)) (func(), error)
	// GetSession returns the current session as an INITIAL_SESSION event
	GetSession(ctx context.Context) (models.AuthEvent, error)
}

// RoleResolver derives the role of a subject. It never fails.
type RoleResolver interface {
	ResolveRole(ctx context.Context, subjectID string) models.Role
}

// Store holds the session and role of one application instance.
//
// Events are applied latest-wins by sequence number. The role is resolved
// for every event before the event is committed, and a resolution that
// finishes after a newer event was committed is discarded, so a snapshot
// never pairs a session with another session's role.
type Store struct {
	backend        Backend
	resolver       RoleResolver
	resolveTimeout time.Duration
	logger         *zap.Logger

	mu           sync.RWMutex
	session      *models.Session
	role         models.Role
	lastSeq      uint64
	applied      bool
	listeners    map[int]func(*models.Session)
	nextListener int
	unsubscribe  func()
	closed       bool

	ready     chan struct{}
	readyOnce sync.Once
}

// NewStore creates a store following backend. Call Init before use.
func NewStore(backend Backend, resolver RoleResolver, resolveTimeout time.Duration, logger *zap.Logger) *Store {
	if resolveTimeout == 0 {
		resolveTimeout = 5 * time.Second
	}
	return &Store{
		backend:        backend,
		resolver:       resolver,
		resolveTimeout: resolveTimeout,
		logger:         logger,
		listeners:      make(map[int]func(*models.Session)),
		ready:          make(chan struct{}),
	}
}

// Init subscribes to the backend stream (dropping any earlier
// subscription), loads the current session once, resolves its role and
// marks the store ready. The store is ready even when loading fails; it
// then holds no session.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if prev != nil {
		prev()
	}

	defer s.markReady()

	unsubscribe, err := s.backend.OnAuthStateChange(s.handleEvent)
	if err != nil {
		s.logger.Error("failed to subscribe to auth state", zap.Error(err))
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	ev, err := s.backend.GetSession(ctx)
	if err != nil {
		s.logger.Warn("failed to load current session", zap.Error(err))
		return nil
	}
	s.handleEvent(ev)
	return nil
}

// handleEvent applies one auth event. Stale events are dropped before and
// after role resolution.
func (s *Store) handleEvent(ev models.AuthEvent) {
	if !s.accepts(ev.Seq) {
		s.logger.Debug("dropping stale auth event",
			zap.String("event", string(ev.Kind)),
			zap.Uint64("seq", ev.Seq))
		return
	}

	var role models.Role
	if ev.Session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.resolveTimeout)
		ctx = repositories.WithAccessToken(ctx, ev.Session.AccessToken)
		ctx = repositories.WithSubject(ctx, ev.Session.SubjectID)
		role = s.resolver.ResolveRole(ctx, ev.Session.SubjectID)
		cancel()
	}

	s.mu.Lock()
	if s.closed || (s.applied && ev.Seq <= s.lastSeq) {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded role resolution", zap.Uint64("seq", ev.Seq))
		return
	}
	s.session = ev.Session.Clone()
	s.role = role
	s.lastSeq = ev.Seq
	s.applied = true

	listeners := make([]func(*models.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	current := s.session.Clone()
	s.mu.Unlock()

	s.logger.Debug("auth event applied",
		zap.String("event", string(ev.Kind)),
		zap.Uint64("seq", ev.Seq),
		zap.String("role", string(role)))

	for _, fn := range listeners {
		fn(current.Clone())
	}
}

func (s *Store) accepts(seq uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && (!s.applied || seq > s.lastSeq)
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// CurrentSession returns a copy of the session, or nil when absent
func (s *Store) CurrentSession() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Role returns the role committed with the current session
func (s *Store) Role() models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Store) hasSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// Snapshot returns session, role and status read together
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := StatusLoading
	select {
	case <-s.ready:
		status = StatusReady
	default:
	}
	return Snapshot{Session: s.session.Clone(), Role: s.role, Status: status}
}

// Subscribe registers fn to be called with the new session (or nil) after
// every applied change.
func (s *Store) Subscribe(fn func(*models.Session)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// WaitReady blocks until Init finished or ctx is done
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops the backend subscription and all listeners. Events and
// role resolutions that complete afterwards are ignored. Dropping the
// subscription waits for an in-flight event handler, so Close can block
// for up to the role resolution timeout.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.listeners = make(map[int]func(*models.Session))
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.markReady()
}
