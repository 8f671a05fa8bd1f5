package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digitechhorizons/portal/models"
	"go.uber.org/zap"
)

// Config holds the hosted backend connection settings
type Config struct {
	URL         string
	AnonKey     string
	SiteURL     string
	HTTPTimeout time.Duration
}

// Client is a stateless HTTP client for the GoTrue and PostgREST APIs.
// Per-visitor state lives in AuthSession.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a new backend client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// User is the GoTrue user object
type User struct {
	ID                 string                 `json:"id"`
	Email              string                 `json:"email"`
	Identities         []json.RawMessage      `json:"identities"`
	ConfirmationSentAt *time.Time             `json:"confirmation_sent_at"`
	EmailConfirmedAt   *time.Time             `json:"email_confirmed_at"`
	UserMetadata       map[string]interface{} `json:"user_metadata"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// SignUpResult distinguishes an immediately active account from one
// waiting on email confirmation.
type SignUpResult struct {
	UserID           string
	Session          *models.Session
	ConfirmationSent bool
}

// request performs one call against the backend. token, when set, is
// sent as the bearer; otherwise the anon key is.
type request struct {
	method  string
	path    string
	query   url.Values
	body    interface{}
	token   string
	headers map[string]string
}

func (c *Client) do(ctx context.Context, r request, out interface{}) (http.Header, error) {
	u := c.cfg.URL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	bearer := r.token
	if bearer == "" {
		bearer = c.cfg.AnonKey
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", c.now().Sub(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, decodeError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.Header, &Error{Kind: KindUnknown, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
	}
	return resp.Header, nil
}

// SignInWithPassword exchanges credentials for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	var tr tokenResponse
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &tr)
	if err != nil {
		return nil, err
	}
	return c.sessionFromToken(&tr)
}

// RefreshSession exchanges a refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	var tr tokenResponse
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &tr)
	if err != nil {
		return nil, err
	}
	return c.sessionFromToken(&tr)
}

// SignUp registers an account. metadata is stored as user metadata; the
// confirmation link points at SITE_URL/auth/callback.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*SignUpResult, error) {
	var raw json.RawMessage
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		query:  c.redirectQuery("/auth/callback"),
		body: map[string]interface{}{
			"email":    email,
			"password": password,
			"data":     metadata,
		},
	}, &raw)
	if err != nil {
		return nil, err
	}

	// With autoconfirm the body is a token response; otherwise a bare user.
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err == nil && tr.AccessToken != "" {
		session, err := c.sessionFromToken(&tr)
		if err != nil {
			return nil, err
		}
		return &SignUpResult{UserID: session.SubjectID, Session: session}, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "malformed sign-up response", Err: err}
	}
	// An existing confirmed address comes back as a user with no identities.
	if user.Identities != nil && len(user.Identities) == 0 {
		return nil, &Error{Kind: KindAlreadyRegistered, Status: http.StatusOK, Message: "User already registered"}
	}
	return &SignUpResult{UserID: user.ID, ConfirmationSent: true}, nil
}

// SignOut revokes the session's refresh tokens
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	}, nil)
	return err
}

// ResendConfirmation resends the sign-up confirmation email
func (c *Client) ResendConfirmation(ctx context.Context, email string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/resend",
		query:  c.redirectQuery("/auth/callback"),
		body:   map[string]string{"type": "signup", "email": email},
	}, nil)
	return err
}

// ResetPasswordForEmail sends a recovery link pointing at SITE_URL/reset-password
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  c.redirectQuery("/reset-password"),
		body:   map[string]string{"email": email},
	}, nil)
	return err
}

// GetUser returns the user owning accessToken
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if _, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
	}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword sets a new password for the user owning accessToken
func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (*User, error) {
	var user User
	if _, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		token:  accessToken,
		body:   map[string]string{"password": password},
	}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Health checks that the auth service answers
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/health"}, nil)
	return err
}

func (c *Client) redirectQuery(path string) url.Values {
	if c.cfg.SiteURL == "" {
		return nil
	}
	return url.Values{"redirect_to": {c.cfg.SiteURL + path}}
}

func (c *Client) sessionFromToken(tr *tokenResponse) (*models.Session, error) {
	if tr.AccessToken == "" {
		return nil, &Error{Kind: KindUnknown, Message: "token response without access token"}
	}

	now := c.now()
	s := &models.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IssuedAt:     now,
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	if tr.User != nil && tr.User.ID != "" {
		s.SubjectID = tr.User.ID
		s.Email = tr.User.Email
		return s, nil
	}

	claims, err := ExtractClaims(tr.AccessToken)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "token response without user", Err: err}
	}
	s.SubjectID = claims.SubjectID.String()
	s.Email = claims.Email
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = claims.ExpiresAt
	}
	return s, nil
}
