package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clientRecorder struct {
	mu      sync.Mutex
	clients []*fakeBackend
}

func (r *clientRecorder) factory() Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := newFakeBackend()
	r.clients = append(r.clients, b)
	return b
}

func newTestManager(t *testing.T) (*Manager, *clientRecorder, *observability.Metrics) {
	t.Helper()
	return newTestManagerWith(t, ManagerConfig{IdleTTL: time.Minute, ReadyTimeout: time.Second})
}

func newTestManagerWith(t *testing.T, cfg ManagerConfig) (*Manager, *clientRecorder, *observability.Metrics) {
	t.Helper()
	rec := &clientRecorder{}
	metrics := observability.NewNopMetrics()
	m := NewManager(cfg, rec.factory, &roleTable{}, metrics, zap.NewNop())
	return m, rec, metrics
}

func (b *fakeBackend) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// signInVisitor waits for the visitor's store and pushes a signed-in event
func signInVisitor(t *testing.T, v *Visitor, b *fakeBackend, subject string) {
	t.Helper()
	require.NoError(t, v.Store.WaitReady(context.Background()))
	require.Eventually(t, func() bool { return b.active() == 1 }, time.Second, 5*time.Millisecond)
	b.emit(models.AuthEvent{Seq: 1, Kind: models.AuthEventSignedIn, Session: sessionFor(subject)})
	require.NotNil(t, v.Store.CurrentSession())
}

func TestManager_GetCreatesAndReuses(t *testing.T) {
	m, rec, metrics := newTestManager(t)

	v, created := m.Get("")
	require.True(t, created)
	require.NotEmpty(t, v.ID)
	require.NoError(t, v.Store.WaitReady(context.Background()))

	again, created := m.Get(v.ID)
	assert.False(t, created)
	assert.Same(t, v, again)
	assert.Len(t, rec.clients, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveVisitors))
}

func TestManager_UnknownIDGetsFreshVisitor(t *testing.T) {
	m, _, _ := newTestManager(t)

	v, created := m.Get("forged-id")
	assert.True(t, created)
	assert.NotEqual(t, "forged-id", v.ID)
}

func TestManager_DropClosesStoreAndClient(t *testing.T) {
	m, rec, _ := newTestManager(t)

	v, _ := m.Get("")
	require.NoError(t, v.Store.WaitReady(context.Background()))
	require.Eventually(t, func() bool { return rec.clients[0].active() == 1 }, time.Second, 5*time.Millisecond)

	m.Drop(v.ID)

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, rec.clients[0].active())
	assert.Equal(t, 1, rec.clients[0].closed)
	_, ok := m.Lookup(v.ID)
	assert.False(t, ok)
}

func TestManager_SweepDropsIdleVisitors(t *testing.T) {
	m, rec, _ := newTestManager(t)
	start := time.Now()
	m.now = func() time.Time { return start }

	idle, _ := m.Get("")
	m.now = func() time.Time { return start.Add(50 * time.Second) }
	fresh, _ := m.Get("")

	dropped := m.Sweep(start.Add(90 * time.Second))

	assert.Equal(t, 1, dropped)
	_, ok := m.Lookup(idle.ID)
	assert.False(t, ok)
	_, ok = m.Lookup(fresh.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, rec.clients[0].closed)
	assert.Equal(t, 0, rec.clients[1].closed)
}

func TestManager_CookielessFloodIsCapped(t *testing.T) {
	m, rec, metrics := newTestManagerWith(t, ManagerConfig{IdleTTL: time.Minute, MaxVisitors: 3, ReadyTimeout: time.Second})
	start := time.Now()

	var ids []string
	for i := 0; i < 50; i++ {
		m.now = func() time.Time { return start.Add(time.Duration(i) * time.Second) }
		v, created := m.Get("")
		require.True(t, created)
		ids = append(ids, v.ID)
	}

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ActiveVisitors))
	for _, id := range ids[47:] {
		_, ok := m.Lookup(id)
		assert.True(t, ok)
	}
	_, ok := m.Lookup(ids[0])
	assert.False(t, ok)
	for _, c := range rec.clients[:47] {
		assert.Eventually(t, func() bool { return c.closeCount() == 1 }, time.Second, 5*time.Millisecond)
	}
}

func TestManager_CapEvictsAnonymousVisitorsFirst(t *testing.T) {
	m, rec, _ := newTestManagerWith(t, ManagerConfig{IdleTTL: time.Minute, MaxVisitors: 2, ReadyTimeout: time.Second})
	start := time.Now()

	m.now = func() time.Time { return start }
	member, _ := m.Get("")
	signInVisitor(t, member, rec.clients[0], "member")

	m.now = func() time.Time { return start.Add(time.Second) }
	anon, _ := m.Get("")
	m.now = func() time.Time { return start.Add(2 * time.Second) }
	m.Get("")

	_, ok := m.Lookup(member.ID)
	assert.True(t, ok)
	_, ok = m.Lookup(anon.ID)
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return rec.clients[1].closeCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rec.clients[0].closeCount())
}

func TestManager_SweepUsesShorterTTLWithoutSession(t *testing.T) {
	m, rec, _ := newTestManagerWith(t, ManagerConfig{IdleTTL: time.Minute, AnonymousTTL: 10 * time.Second, ReadyTimeout: time.Second})
	start := time.Now()
	m.now = func() time.Time { return start }

	member, _ := m.Get("")
	signInVisitor(t, member, rec.clients[0], "member")
	anon, _ := m.Get("")

	assert.Equal(t, 1, m.Sweep(start.Add(30*time.Second)))
	_, ok := m.Lookup(member.ID)
	assert.True(t, ok)
	_, ok = m.Lookup(anon.ID)
	assert.False(t, ok)
}

func TestManager_StartRejectsBadSchedule(t *testing.T) {
	rec := &clientRecorder{}
	m := NewManager(ManagerConfig{SweepSchedule: "not a schedule"}, rec.factory, &roleTable{}, observability.NewNopMetrics(), zap.NewNop())

	assert.Error(t, m.Start())
}

func TestManager_StopTearsDownEverything(t *testing.T) {
	m, rec, metrics := newTestManager(t)
	require.NoError(t, m.Start())
	assert.Error(t, m.Start())

	m.Get("")
	m.Get("")

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, 0, m.Len())
	for _, c := range rec.clients {
		assert.Equal(t, 1, c.closed)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveVisitors))
}

func TestVisitorContext(t *testing.T) {
	_, ok := VisitorFromContext(context.Background())
	assert.False(t, ok)

	v := &Visitor{ID: "v1"}
	got, ok := VisitorFromContext(WithVisitor(context.Background(), v))
	require.True(t, ok)
	assert.Same(t, v, got)
}
