package supabase

import (
	"context"
	"errors"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/digitechhorizons/portal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned once an AuthSession has been closed
var ErrClosed = errors.New("auth session closed")

// retry delay after a refresh that failed on transport
const refreshRetryDelay = 30 * time.Second

// AuthSession holds the auth state of one visitor: its tokens, the
// auth-state event stream and the background token refresh.
//
// Each subscription gets its own bus topic so it can be removed without
// touching the others. Handlers run synchronously on the publishing
// goroutine and must not subscribe or unsubscribe from inside a handler.
// The bus holds its lock while a handler runs, so a slow handler (a role
// lookup) delays every Unsubscribe and Publish on this session until it
// returns. Callers of SignIn and friends rely on that: when they return,
// every subscriber has seen the event.
type AuthSession struct {
	client        *Client
	validator     *TokenValidator
	refreshMargin time.Duration
	logger        *zap.Logger
	bus           evbus.Bus
	refreshGroup  singleflight.Group

	mu           sync.Mutex
	session      *models.Session
	seq          uint64
	topics       map[string]func(models.AuthEvent)
	refreshTimer *time.Timer
	closed       bool
}

// NewAuthSession creates the auth state of one visitor. validator may be
// nil, in which case tokens handed in by the browser are checked against
// the backend user endpoint instead.
func (c *Client) NewAuthSession(validator *TokenValidator, refreshMargin time.Duration, logger *zap.Logger) *AuthSession {
	return &AuthSession{
		client:        c,
		validator:     validator,
		refreshMargin: refreshMargin,
		logger:        logger,
		bus:           evbus.New(),
		topics:        make(map[string]func(models.AuthEvent)),
	}
}

// OnAuthStateChange registers fn for every future auth-state change.
// The returned func removes the registration; calling it twice is safe.
func (a *AuthSession) OnAuthStateChange(fn func(models.AuthEvent)) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}

	topic := "auth:" + uuid.NewString()
	if err := a.bus.Subscribe(topic, fn); err != nil {
		return nil, err
	}
	a.topics[topic] = fn

	var once sync.Once
	return func() {
		once.Do(func() { a.unsubscribe(topic) })
	}, nil
}

func (a *AuthSession) unsubscribe(topic string) {
	a.mu.Lock()
	fn, ok := a.topics[topic]
	delete(a.topics, topic)
	a.mu.Unlock()

	if ok {
		_ = a.bus.Unsubscribe(topic, fn)
	}
}

// Subscribers returns the number of live registrations
func (a *AuthSession) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.topics)
}

// GetSession returns the current session as an INITIAL_SESSION event
// carrying the sequence number it reflects. An expired session is
// refreshed first.
func (a *AuthSession) GetSession(ctx context.Context) (models.AuthEvent, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return models.AuthEvent{}, ErrClosed
	}
	s, seq := a.session.Clone(), a.seq
	a.mu.Unlock()

	if s != nil && s.Expired(a.client.now()) {
		refreshed, err := a.refresh(ctx)
		if err != nil && KindOf(err) == KindTransport {
			return models.AuthEvent{}, err
		}
		a.mu.Lock()
		s, seq = refreshed.Clone(), a.seq
		a.mu.Unlock()
	}

	return models.AuthEvent{Seq: seq, Kind: models.AuthEventInitialSession, Session: s}, nil
}

// SignInWithPassword signs in and emits SIGNED_IN. A failed attempt
// leaves the current session untouched.
func (a *AuthSession) SignInWithPassword(ctx context.Context, email, password string) error {
	s, err := a.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	a.commit(models.AuthEventSignedIn, s, nil)
	return nil
}

// SignUp registers an account; an immediately active account emits SIGNED_IN
func (a *AuthSession) SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*SignUpResult, error) {
	res, err := a.client.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		a.commit(models.AuthEventSignedIn, res.Session, nil)
	}
	return res, nil
}

// SignOut revokes the session and emits SIGNED_OUT. The local session is
// cleared even when the revoke call fails.
func (a *AuthSession) SignOut(ctx context.Context) error {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()

	if s == nil {
		return nil
	}

	err := a.client.SignOut(ctx, s.AccessToken)
	a.commit(models.AuthEventSignedOut, nil, nil)
	return err
}

// ResendConfirmation resends the sign-up confirmation email
func (a *AuthSession) ResendConfirmation(ctx context.Context, email string) error {
	return a.client.ResendConfirmation(ctx, email)
}

// ResetPasswordForEmail sends a password recovery link
func (a *AuthSession) ResetPasswordForEmail(ctx context.Context, email string) error {
	return a.client.ResetPasswordForEmail(ctx, email)
}

// UpdatePassword changes the password of the signed-in user and emits USER_UPDATED
func (a *AuthSession) UpdatePassword(ctx context.Context, password string) error {
	a.mu.Lock()
	s, seq := a.session.Clone(), a.seq
	a.mu.Unlock()

	if s == nil {
		return &Error{Kind: KindUnauthorized, Status: 401, Message: "no active session"}
	}

	user, err := a.client.UpdatePassword(ctx, s.AccessToken, password)
	if err != nil {
		return err
	}
	if user.Email != "" {
		s.Email = user.Email
	}
	a.commit(models.AuthEventUserUpdated, s, &seq)
	return nil
}

// SetSessionFromRedirect installs the tokens carried by an email link
// (sign-up confirmation or password recovery). linkType "recovery" emits
// PASSWORD_RECOVERY, anything else SIGNED_IN.
func (a *AuthSession) SetSessionFromRedirect(ctx context.Context, accessToken, refreshToken, linkType string) error {
	s := &models.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     a.client.now(),
	}

	if a.validator != nil {
		claims, err := a.validator.ValidateToken(ctx, accessToken)
		if err != nil {
			return &Error{Kind: KindUnauthorized, Status: 401, Message: "invalid redirect token", Err: err}
		}
		s.SubjectID = claims.SubjectID.String()
		s.Email = claims.Email
		s.ExpiresAt = claims.ExpiresAt
	} else {
		user, err := a.client.GetUser(ctx, accessToken)
		if err != nil {
			return err
		}
		s.SubjectID = user.ID
		s.Email = user.Email
		if claims, err := ExtractClaims(accessToken); err == nil {
			s.ExpiresAt = claims.ExpiresAt
		}
	}

	kind := models.AuthEventSignedIn
	if linkType == "recovery" {
		kind = models.AuthEventPasswordRecovery
	}
	a.commit(kind, s, nil)
	return nil
}

// Close stops the refresh timer and drops every subscription.
// Later calls never emit events.
func (a *AuthSession) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.refreshTimer != nil {
		a.refreshTimer.Stop()
	}
	topics := a.topics
	a.topics = make(map[string]func(models.AuthEvent))
	a.mu.Unlock()

	for topic, fn := range topics {
		_ = a.bus.Unsubscribe(topic, fn)
	}
}

// commit replaces the session, bumps the sequence number and publishes the
// event. With expectSeq set it only applies when nothing else happened
// since that sequence number was read.
func (a *AuthSession) commit(kind models.AuthEventKind, s *models.Session, expectSeq *uint64) bool {
	a.mu.Lock()
	if a.closed || (expectSeq != nil && *expectSeq != a.seq) {
		a.mu.Unlock()
		return false
	}
	a.seq++
	a.session = s.Clone()
	ev := models.AuthEvent{Seq: a.seq, Kind: kind, Session: s.Clone()}
	a.scheduleRefreshLocked()

	topics := make([]string, 0, len(a.topics))
	for topic := range a.topics {
		topics = append(topics, topic)
	}
	a.mu.Unlock()

	a.logger.Debug("auth state changed",
		zap.String("event", string(kind)),
		zap.Uint64("seq", ev.Seq))

	for _, topic := range topics {
		a.bus.Publish(topic, ev)
	}
	return true
}

// refresh exchanges the refresh token once, however many callers ask at
// the same time. A rejected refresh token signs the visitor out.
func (a *AuthSession) refresh(ctx context.Context) (*models.Session, error) {
	v, err, _ := a.refreshGroup.Do("refresh", func() (interface{}, error) {
		a.mu.Lock()
		s, seq := a.session, a.seq
		a.mu.Unlock()

		if s == nil {
			return (*models.Session)(nil), nil
		}

		fresh, err := a.client.RefreshSession(ctx, s.RefreshToken)
		if err != nil {
			if KindOf(err) != KindTransport {
				a.logger.Info("refresh token rejected, signing out", zap.Error(err))
				a.commit(models.AuthEventSignedOut, nil, &seq)
			}
			return (*models.Session)(nil), err
		}

		if !a.commit(models.AuthEventTokenRefreshed, fresh, &seq) {
			// superseded by a newer change; report what is current
			a.mu.Lock()
			fresh = a.session.Clone()
			a.mu.Unlock()
		}
		return fresh, nil
	})
	return v.(*models.Session), err
}

// scheduleRefreshLocked arms the timer to refresh refreshMargin before
// expiry. Caller holds a.mu.
func (a *AuthSession) scheduleRefreshLocked() {
	if a.refreshTimer != nil {
		a.refreshTimer.Stop()
		a.refreshTimer = nil
	}
	if a.session == nil || a.session.ExpiresAt.IsZero() || a.session.RefreshToken == "" {
		return
	}

	delay := a.session.ExpiresAt.Sub(a.client.now()) - a.refreshMargin
	if delay < 0 {
		delay = 0
	}
	a.refreshTimer = time.AfterFunc(delay, a.backgroundRefresh)
}

func (a *AuthSession) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), a.client.cfg.HTTPTimeout)
	defer cancel()

	if _, err := a.refresh(ctx); err != nil {
		a.logger.Warn("background token refresh failed", zap.Error(err))
		if KindOf(err) == KindTransport {
			a.mu.Lock()
			if !a.closed {
				a.refreshTimer = time.AfterFunc(refreshRetryDelay, a.backgroundRefresh)
			}
			a.mu.Unlock()
		}
	}
}
