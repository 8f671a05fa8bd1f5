package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/digitechhorizons/portal/forms"
	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Client is the per-visitor handle on the auth service
type Client interface {
	Backend
	forms.AuthClient
	SignOut(ctx context.Context) error
	SetSessionFromRedirect(ctx context.Context, accessToken, refreshToken, linkType string) error
	Close()
}

// ClientFactory creates the auth handle of a new visitor
type ClientFactory func() Client

// Visitor is the application instance of one browser
type Visitor struct {
	ID     string
	Store  *Store
	Client Client
	Forms  *forms.Set

	lastSeen time.Time
}

// ManagerConfig configures visitor lifetimes
type ManagerConfig struct {
	IdleTTL time.Duration
	// AnonymousTTL is the idle lifetime of visitors without a session.
	// Capped at IdleTTL.
	AnonymousTTL  time.Duration
	MaxVisitors   int
	ReadyTimeout  time.Duration
	SweepSchedule string
}

// Manager owns every visitor of the process. Visitors are created on
// first use and torn down when idle; teardown always closes the store
// (dropping its subscription) before the client.
type Manager struct {
	cfg       ManagerConfig
	newClient ClientFactory
	resolver  RoleResolver
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	visitors map[string]*Visitor
	cron     *cron.Cron
}

// NewManager creates a visitor manager
func NewManager(cfg ManagerConfig, newClient ClientFactory, resolver RoleResolver, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.AnonymousTTL == 0 {
		cfg.AnonymousTTL = 5 * time.Minute
	}
	if cfg.AnonymousTTL > cfg.IdleTTL {
		cfg.AnonymousTTL = cfg.IdleTTL
	}
	if cfg.MaxVisitors <= 0 {
		cfg.MaxVisitors = 10000
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 1m"
	}
	return &Manager{
		cfg:       cfg,
		newClient: newClient,
		resolver:  resolver,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		visitors:  make(map[string]*Visitor),
	}
}

// Get returns the visitor with id, creating a new one (with a fresh id)
// when id is unknown. created reports whether a new visitor was made.
// At MaxVisitors the least recently seen visitor is torn down first,
// preferring one without a session.
func (m *Manager) Get(id string) (v *Visitor, created bool) {
	m.mu.Lock()
	if v, ok := m.visitors[id]; ok && id != "" {
		v.lastSeen = m.now()
		m.mu.Unlock()
		return v, false
	}

	var evicted []*Visitor
	for len(m.visitors) >= m.cfg.MaxVisitors {
		victim := m.evictionCandidate()
		delete(m.visitors, victim.ID)
		evicted = append(evicted, victim)
	}

	id = uuid.NewString()
	client := m.newClient()
	logger := m.logger.With(zap.String("visitor_id", id))
	v = &Visitor{
		ID:       id,
		Store:    NewStore(client, m.resolver, m.cfg.ReadyTimeout, logger),
		Client:   client,
		Forms:    forms.NewSet(client, m.metrics, logger),
		lastSeen: m.now(),
	}
	m.visitors[v.ID] = v
	m.metrics.ActiveVisitors.Set(float64(len(m.visitors)))
	m.mu.Unlock()

	for _, old := range evicted {
		m.logger.Debug("evicted visitor at capacity", zap.String("visitor_id", old.ID))
		go old.close()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ReadyTimeout)
		defer cancel()
		if err := v.Store.Init(ctx); err != nil {
			logger.Warn("visitor session store init failed", zap.Error(err))
		}
	}()

	logger.Debug("visitor created")
	return v, true
}

// evictionCandidate picks the least recently seen anonymous visitor, or
// the least recently seen visitor when every one holds a session. Caller
// holds m.mu and the map is non-empty.
func (m *Manager) evictionCandidate() *Visitor {
	var oldest, oldestAnon *Visitor
	for _, v := range m.visitors {
		if oldest == nil || v.lastSeen.Before(oldest.lastSeen) {
			oldest = v
		}
		if !v.Store.hasSession() && (oldestAnon == nil || v.lastSeen.Before(oldestAnon.lastSeen)) {
			oldestAnon = v
		}
	}
	if oldestAnon != nil {
		return oldestAnon
	}
	return oldest
}

// Lookup returns the visitor with id without creating one
func (m *Manager) Lookup(id string) (*Visitor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visitors[id]
	if ok {
		v.lastSeen = m.now()
	}
	return v, ok
}

// Drop tears down the visitor with id
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	v, ok := m.visitors[id]
	if ok {
		delete(m.visitors, id)
		m.metrics.ActiveVisitors.Set(float64(len(m.visitors)))
	}
	m.mu.Unlock()

	if ok {
		v.close()
	}
}

// Sweep tears down every visitor idle for longer than its TTL and returns
// how many were dropped. Visitors without a session use AnonymousTTL.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	var expired []*Visitor
	for id, v := range m.visitors {
		ttl := m.cfg.IdleTTL
		if !v.Store.hasSession() {
			ttl = m.cfg.AnonymousTTL
		}
		if now.Sub(v.lastSeen) > ttl {
			expired = append(expired, v)
			delete(m.visitors, id)
		}
	}
	m.metrics.ActiveVisitors.Set(float64(len(m.visitors)))
	m.mu.Unlock()

	for _, v := range expired {
		v.close()
	}
	if len(expired) > 0 {
		m.logger.Info("swept idle visitors", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Start schedules the idle sweep
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return fmt.Errorf("visitor manager already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(m.cfg.SweepSchedule, func() { m.Sweep(m.now()) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", m.cfg.SweepSchedule, err)
	}
	c.Start()
	m.cron = c

	m.logger.Info("started visitor manager",
		zap.Duration("idle_ttl", m.cfg.IdleTTL),
		zap.String("sweep_schedule", m.cfg.SweepSchedule))
	return nil
}

// Stop ends the sweep, waiting for a running one, and tears down every
// visitor
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	visitors := m.visitors
	m.visitors = make(map[string]*Visitor)
	m.metrics.ActiveVisitors.Set(0)
	m.mu.Unlock()

	for _, v := range visitors {
		v.close()
	}

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of live visitors
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}

func (v *Visitor) close() {
	v.Store.Close()
	v.Client.Close()
}
