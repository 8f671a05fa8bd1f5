package supabase

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/digitechhorizons/portal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []models.AuthEvent
}

func (r *eventRecorder) record(ev models.AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []models.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuthEvent(nil), r.events...)
}

func TestAuthSession_SignInPublishesEvent(t *testing.T) {
	f, client := newFakeBackend(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, tokenBody("at", "rt", "user-1", time.Now().Add(time.Hour)))
	})

	a := client.NewAuthSession(nil, time.Minute, zap.NewNop())
	defer a.Close()

	rec := &eventRecorder{}
	unsubscribe, err := a.OnAuthStateChange(rec.record)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, a.SignInWithPassword(context.Background(), "user@example.com", "Secret1!"))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.AuthEventSignedIn, events[0].Kind)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, "user-1", events[0].Session.SubjectID)

	current, err := a.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AuthEventInitialSession, current.Kind)
	assert.Equal(t, uint64(1), current.Seq)
	assert.Equal(t, "user-1", current.Session.SubjectID)
}

func TestAuthSession_FailedSignInKeepsSession(t *testing.T) {
	f, client := newFakeBackend(t)
	attempts := 0
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			writeJSON(w, 200, tokenBody("at", "rt", "user-1", time.Now().Add(time.Hour)))
			return
		}
		writeJSON(w, 400, map[string]string{"error": "invalid_grant", "error_description": "Invalid login credentials"})
	})

	a := client.NewAuthSession(nil, time.Minute, zap.NewNop())
	defer a.Close()

	require.NoError(t, a.SignInWithPassword(context.Background(), "user@example.com", "Secret1!"))
	err := a.SignInWithPassword(context.Background(), "user@example.com", "wrong")
	assert.Equal(t, KindInvalidCredentials, KindOf(err))

	current, err := a.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), current.Seq)
	assert.Equal(t, "user-1", current.Session.SubjectID)
}

func TestAuthSession_SignOut(t *testing.T) {
	f, client := newFakeBackend(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, tokenBody("at", "rt", "user-1", time.Now().Add(time.Hour)))
	})
	f.handle("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	a := client.NewAuthSession(nil, time.Minute, zap.NewNop())
	defer a.Close()
	rec := &eventRecorder{}
	_, err := a.OnAuthStateChange(rec.record)
	require.NoError(t, err)

	require.NoError(t, a.SignInWithPassword(context.Background(), "user@example.com", "Secret1!"))
	require.NoError(t, a.SignOut(context.Background()))

	req, _ := f.last()
	assert.Equal(t, "Bearer at", req.Header.Get("Authorization"))

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.AuthEventSignedOut, events[1].Kind)
	assert.Nil(t, events[1].Session)
	assert.Equal(t, uint64(2), events[1].Seq)

	// signing out without a session is a no-op
	calls := f.callCount()
	require.NoError(t, a.SignOut(context.Background()))
	assert.Equal(t, calls, f.callCount())
}

func TestAuthSession_GetSessionRefreshesExpired(t *testing.T) {
	f, client := newFakeBackend(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "refresh_token" {
			writeJSON(w, 200, tokenBody("at-2", "rt-2", "user-1", time.Now().Add(time.Hour)))
			return
		}
		writeJSON(w, 400, map[string]string{"msg": "unexpected grant"})
	})

	// installed directly so no background timer is armed
	a := client.NewAuthSession(nil, 0, zap.NewNop())
	a.mu.Lock()
	a.session = &models.Session{SubjectID: "user-1", AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(-time.Minute)}
	a.seq = 1
	a.mu.Unlock()
	defer a.Close()

	current, err := a.GetSession(context.Background())

	require.NoError(t, err)
	require.NotNil(t, current.Session)
	assert.Equal(t, "at-2", current.Session.AccessToken)
	assert.Equal(t, uint64(2), current.Seq)
}

func TestAuthSession_RejectedRefreshSignsOut(t *testing.T) {
	f, client := newFakeBackend(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 400, map[string]string{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token"})
	})

	a := client.NewAuthSession(nil, 0, zap.NewNop())
	a.mu.Lock()
	a.session = &models.Session{SubjectID: "user-1", RefreshToken: "stale", ExpiresAt: time.Now().Add(-time.Minute)}
	a.mu.Unlock()
	defer a.Close()

	rec := &eventRecorder{}
	_, err := a.OnAuthStateChange(rec.record)
	require.NoError(t, err)

	current, err := a.GetSession(context.Background())

	require.NoError(t, err)
	assert.Nil(t, current.Session)
	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.AuthEventSignedOut, events[0].Kind)
}

func TestAuthSession_BackgroundRefresh(t *testing.T) {
	f, client := newFakeBackend(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "refresh_token" {
			writeJSON(w, 200, tokenBody("at-2", "rt-2", "user-1", time.Now().Add(time.Hour)))
			return
		}
		writeJSON(w, 200, tokenBody("at-1", "rt-1", "user-1", time.Now().Add(2*time.Second)))
	})

	// margin larger than the lifetime fires the refresh right away
	a := client.NewAuthSession(nil, time.Minute, zap.NewNop())
	defer a.Close()

	refreshed := make(chan models.AuthEvent, 1)
	_, err := a.OnAuthStateChange(func(ev models.AuthEvent) {
		if ev.Kind == models.AuthEventTokenRefreshed {
			refreshed <- ev
		}
	})
	require.NoError(t, err)

	require.NoError(t, a.SignInWithPassword(context.Background(), "user@example.com", "Secret1!"))

	select {
	case ev := <-refreshed:
		assert.Equal(t, "at-2", ev.Session.AccessToken)
		assert.Equal(t, uint64(2), ev.Seq)
	case <-time.After(3 * time.Second):
		t.Fatal("expected TOKEN_REFRESHED")
	}
}

func TestAuthSession_UnsubscribeAndClose(t *testing.T) {
	f, client := newFakeBackend(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, tokenBody("at", "rt", "user-1", time.Now().Add(time.Hour)))
	})

	a := client.NewAuthSession(nil, time.Minute, zap.NewNop())
	first, second := &eventRecorder{}, &eventRecorder{}
	unsubscribeFirst, err := a.OnAuthStateChange(first.record)
	require.NoError(t, err)
	_, err = a.OnAuthStateChange(second.record)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Subscribers())

	unsubscribeFirst()
	unsubscribeFirst()
	assert.Equal(t, 1, a.Subscribers())

	require.NoError(t, a.SignInWithPassword(context.Background(), "user@example.com", "Secret1!"))
	assert.Empty(t, first.all())
	assert.Len(t, second.all(), 1)

	a.Close()
	assert.Equal(t, 0, a.Subscribers())

	// a sign-in completing after teardown emits nothing
	require.NoError(t, a.SignInWithPassword(context.Background(), "user@example.com", "Secret1!"))
	assert.Len(t, second.all(), 1)

	_, err = a.OnAuthStateChange(second.record)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.GetSession(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAuthSession_SlowHandlerDelaysUnsubscribe(t *testing.T) {
	f, client := newFakeBackend(t)
	f.handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, tokenBody("at", "rt", "user-1", time.Now().Add(time.Hour)))
	})

	a := client.NewAuthSession(nil, time.Minute, zap.NewNop())
	defer a.Close()

	entered, release := make(chan struct{}), make(chan struct{})
	var handled bool
	unsubscribe, err := a.OnAuthStateChange(func(models.AuthEvent) {
		close(entered)
		<-release
		handled = true
	})
	require.NoError(t, err)

	signedIn := make(chan error, 1)
	go func() { signedIn <- a.SignInWithPassword(context.Background(), "user@example.com", "Secret1!") }()
	<-entered

	unsubscribed := make(chan struct{})
	go func() {
		unsubscribe()
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatal("unsubscribe returned while a handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-signedIn)
	assert.True(t, handled, "sign-in returns only after subscribers saw the event")
	select {
	case <-unsubscribed:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe never returned")
	}
}

func TestAuthSession_SetSessionFromRedirect(t *testing.T) {
	_, client := newFakeBackend(t)
	validator := NewTokenValidator(ValidatorConfig{BaseURL: testBaseURL, JWTSecret: "secret"})
	a := client.NewAuthSession(validator, time.Minute, zap.NewNop())
	defer a.Close()

	rec := &eventRecorder{}
	_, err := a.OnAuthStateChange(rec.record)
	require.NoError(t, err)

	sub := uuid.New()
	token := signHS256(t, "secret", testClaims(sub.String(), time.Now().Add(time.Hour)))

	require.NoError(t, a.SetSessionFromRedirect(context.Background(), token, "rt", "recovery"))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.AuthEventPasswordRecovery, events[0].Kind)
	assert.Equal(t, sub.String(), events[0].Session.SubjectID)

	forged := signHS256(t, "not-the-secret", testClaims(sub.String(), time.Now().Add(time.Hour)))
	err = a.SetSessionFromRedirect(context.Background(), forged, "rt", "signup")
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Len(t, rec.all(), 1)
}

func TestAuthSession_UpdatePasswordRequiresSession(t *testing.T) {
	_, client := newFakeBackend(t)
	a := client.NewAuthSession(nil, time.Minute, zap.NewNop())
	defer a.Close()

	err := a.UpdatePassword(context.Background(), "N3w!Passw0rd")
	assert.Equal(t, KindUnauthorized, KindOf(err))
}
