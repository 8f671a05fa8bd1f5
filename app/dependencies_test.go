package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/digitechhorizons/portal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	return &config.Config{
		Environment: "test",
		Backend: config.BackendConfig{
			URL:         backend.URL,
			AnonKey:     "anon",
			JWTSecret:   "secret",
			HTTPTimeout: time.Second,
		},
		Session: config.SessionConfig{
			CookieName:    "dh_visitor",
			IdleTTL:       time.Minute,
			ReadyTimeout:  time.Second,
			SweepSchedule: "@every 1m",
		},
		Pixel: config.PixelConfig{
			QueueSize: 8,
			Workers:   1,
			Timeout:   time.Second,
		},
		Observability: config.ObservabilityConfig{LogLevel: "debug"},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("wires the REST record source without a database", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Nil(t, deps.RepoFactory)
		require.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.Repos.Profiles)
		assert.NotNil(t, deps.Repos.Protection)

		assert.NotNil(t, deps.Backend)
		assert.NotNil(t, deps.Validator)
		assert.NotNil(t, deps.Roles)
		assert.NotNil(t, deps.Visitors)
		assert.NotNil(t, deps.Pixel)
		assert.NotNil(t, deps.Contact)
		assert.NotNil(t, deps.Dashboard)
		assert.NotNil(t, deps.AuthHandler())
		assert.NotNil(t, deps.Guard)
		assert.NotNil(t, deps.Pages)

		v, created := deps.Visitors.Get("")
		assert.True(t, created)
		assert.NotNil(t, v.Forms)

		require.NoError(t, deps.Close(ctx))
		assert.Equal(t, 0, deps.Visitors.Len())
	})

	t.Run("bad sweep schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Session.SweepSchedule = "every now and then"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))

		assert.Nil(t, deps)
		assert.ErrorContains(t, err, "failed to initialize sessions")
	})

	t.Run("unreachable database", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database = &config.DatabaseConfig{
			Host:     "invalid-host-that-does-not-exist",
			Port:     5432,
			User:     "portal",
			Database: "portal",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))

		assert.Nil(t, deps)
		assert.ErrorContains(t, err, "failed to initialize repositories")
	})
}

func TestDependenciesMetrics(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	families, err := deps.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["portal_active_visitors"])
}
