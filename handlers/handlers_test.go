package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/session"
	"github.com/digitechhorizons/portal/supabase"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedRoles map[string]models.Role

func (f fixedRoles) ResolveRole(ctx context.Context, subjectID string) models.Role {
	if role, ok := f[subjectID]; ok {
		return role
	}
	return models.RoleUser
}

// authServer fakes the hosted auth API. The local part of the email
// becomes the subject id; "wrong" is the only rejected password and
// addresses starting with "pending" are unconfirmed.
type authServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	s := &authServer{calls: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *authServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *authServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.Method+" "+r.URL.Path]++
	s.mu.Unlock()

	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	email, _ := body["email"].(string)
	subject := strings.SplitN(email, "@", 2)[0]

	reply := func(status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch r.Method + " " + r.URL.Path {
	case "POST /auth/v1/token":
		switch {
		case body["password"] == "wrong":
			reply(http.StatusBadRequest, map[string]string{"error_code": "invalid_credentials", "msg": "Invalid login credentials"})
		case strings.HasPrefix(email, "pending"):
			reply(http.StatusBadRequest, map[string]string{"error_code": "email_not_confirmed", "msg": "Email not confirmed"})
		default:
			reply(http.StatusOK, map[string]interface{}{
				"access_token":  "at-" + subject,
				"refresh_token": "rt-" + subject,
				"expires_in":    3600,
				"user":          map[string]string{"id": subject, "email": email},
			})
		}
	case "POST /auth/v1/signup":
		if strings.HasPrefix(email, "taken") {
			reply(http.StatusUnprocessableEntity, map[string]string{"error_code": "user_already_exists", "msg": "User already registered"})
			return
		}
		reply(http.StatusOK, map[string]interface{}{
			"id":         subject,
			"email":      email,
			"identities": []map[string]string{{"id": subject}},
		})
	case "GET /auth/v1/user":
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "expired" {
			reply(http.StatusUnauthorized, map[string]string{"error_code": "bad_jwt", "msg": "invalid JWT"})
			return
		}
		id := strings.TrimPrefix(token, "at-")
		reply(http.StatusOK, map[string]string{"id": id, "email": id + "@example.com"})
	case "PUT /auth/v1/user":
		reply(http.StatusOK, map[string]string{"id": "u", "email": "u@example.com"})
	case "POST /auth/v1/resend", "POST /auth/v1/recover":
		reply(http.StatusOK, map[string]string{})
	case "POST /auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		reply(http.StatusNotFound, map[string]string{"msg": "not found"})
	}
}

type fixture struct {
	server  *authServer
	manager *session.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := newAuthServer(t)
	client := supabase.NewClient(supabase.Config{URL: srv.URL, AnonKey: "anon"}, zap.NewNop())

	manager := session.NewManager(session.ManagerConfig{ReadyTimeout: time.Second},
		func() session.Client { return client.NewAuthSession(nil, 0, zap.NewNop()) },
		fixedRoles{"admin": models.RoleAdmin},
		observability.NewNopMetrics(), zap.NewNop())
	t.Cleanup(func() { _ = manager.Stop(context.Background()) })

	return &fixture{server: srv, manager: manager}
}

// newVisitor returns a visitor whose store finished loading
func (f *fixture) newVisitor(t *testing.T) *session.Visitor {
	t.Helper()
	v, _ := f.manager.Get("")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, v.Store.WaitReady(ctx))
	return v
}

// signIn signs v in as the local part of email
func (f *fixture) signIn(t *testing.T, v *session.Visitor, email string) {
	t.Helper()
	require.NoError(t, v.Forms.SignIn.Submit(context.Background(), email, "Secret1!"))
}

// call runs h with v attached to the request. params become chi URL params.
func call(h http.HandlerFunc, v *session.Visitor, method, target, body string, params map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := req.Context()
	if v != nil {
		ctx = session.WithVisitor(ctx, v)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, val := range params {
			rctx.URLParams.Add(k, val)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	w := httptest.NewRecorder()
	h(w, req.WithContext(ctx))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// recordingTracker collects pixel events
type recordingTracker struct {
	mu     sync.Mutex
	events []models.PixelEvent
}

func (r *recordingTracker) Track(ev models.PixelEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recordingTracker) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		names = append(names, ev.Name)
	}
	return names
}
