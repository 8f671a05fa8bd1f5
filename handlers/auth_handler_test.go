package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/digitechhorizons/portal/forms"
	"github.com/digitechhorizons/portal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthHandler_Session(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(time.Second, zap.NewNop())

	t.Run("anonymous", func(t *testing.T) {
		v := f.newVisitor(t)
		w := call(h.HandleSession, v, http.MethodGet, "/api/v1/auth/session", "", nil)

		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Nil(t, data["session"])
		assert.Equal(t, "ready", data["status"])
		assert.NotContains(t, data, "landing_path")
		forms := data["forms"].(map[string]interface{})
		assert.Contains(t, forms, "sign_in")
	})

	t.Run("signed in admin", func(t *testing.T) {
		v := f.newVisitor(t)
		f.signIn(t, v, "admin@example.com")

		w := call(h.HandleSession, v, http.MethodGet, "/api/v1/auth/session", "", nil)

		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, "admin", data["role"])
		assert.Equal(t, "/dashboard", data["landing_path"])
		sess := data["session"].(map[string]interface{})
		assert.Equal(t, "admin@example.com", sess["email"])
		assert.NotContains(t, sess, "access_token")
	})

	t.Run("no visitor", func(t *testing.T) {
		w := call(h.HandleSession, nil, http.MethodGet, "/api/v1/auth/session", "", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAuthHandler_SignIn(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(time.Second, zap.NewNop())

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{
			name:       "success",
			body:       `{"email":" Jane@Example.com ","password":"Secret1!"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:        "wrong password",
			body:        `{"email":"jane@example.com","password":"wrong"}`,
			wantStatus:  http.StatusUnauthorized,
			wantError:   "invalid_credentials",
			wantMessage: forms.MsgInvalidCredentials,
		},
		{
			name:        "unconfirmed email",
			body:        `{"email":"pending@example.com","password":"Secret1!"}`,
			wantStatus:  http.StatusForbidden,
			wantError:   "email_not_confirmed",
			wantMessage: forms.MsgEmailNotConfirmed,
		},
		{
			name:       "missing password",
			body:       `{"email":"jane@example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "bad_request",
		},
		{
			name:       "unknown field",
			body:       `{"email":"jane@example.com","password":"x","remember":true}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "bad_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.newVisitor(t)
			w := call(h.HandleSignIn, v, http.MethodPost, "/api/v1/auth/sign-in", tt.body, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			if tt.wantError == "" {
				data := body["data"].(map[string]interface{})
				assert.Equal(t, "user", data["role"])
				assert.Equal(t, "/user-dashboard", data["landing_path"])
				assert.Equal(t, "jane@example.com", v.Store.CurrentSession().Email)
				return
			}
			assert.Equal(t, tt.wantError, body["error"])
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body["message"])
			}
			assert.Nil(t, v.Store.CurrentSession())
		})
	}
}

func TestAuthHandler_SignUp(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(time.Second, zap.NewNop())

	t.Run("confirmation sent", func(t *testing.T) {
		v := f.newVisitor(t)
		w := call(h.HandleSignUp, v, http.MethodPost, "/api/v1/auth/sign-up",
			`{"email":"new@example.com","password":"Secret1!"}`, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["data"].(map[string]interface{})["confirmation_sent"])
		assert.Contains(t, body["message"], "check your email")
	})

	t.Run("weak password never reaches the backend", func(t *testing.T) {
		v := f.newVisitor(t)
		before := f.server.count("POST /auth/v1/signup")

		w := call(h.HandleSignUp, v, http.MethodPost, "/api/v1/auth/sign-up",
			`{"email":"new@example.com","password":"abc"}`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, utils.MsgPasswordLength, decode(t, w)["message"])
		assert.Equal(t, before, f.server.count("POST /auth/v1/signup"))
	})

	t.Run("duplicate", func(t *testing.T) {
		v := f.newVisitor(t)
		w := call(h.HandleSignUp, v, http.MethodPost, "/api/v1/auth/sign-up",
			`{"email":"taken@example.com","password":"Secret1!"}`, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode(t, w)
		assert.Equal(t, "duplicate_registration", body["error"])
		assert.Equal(t, forms.MsgAlreadyRegistered, body["message"])
	})
}

func TestAuthHandler_ResendConfirmation(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(time.Second, zap.NewNop())
	v := f.newVisitor(t)

	w := call(h.HandleResendConfirmation, v, http.MethodPost, "/api/v1/auth/resend-confirmation",
		`{"email":"pending@example.com"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, forms.MsgResendSent, decode(t, w)["message"])
	assert.Equal(t, 1, f.server.count("POST /auth/v1/resend"))
}

func TestAuthHandler_ResetRequest(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(time.Second, zap.NewNop())
	v := f.newVisitor(t)

	send := func() (int, map[string]interface{}) {
		w := call(h.HandleResetRequest, v, http.MethodPost, "/api/v1/auth/password/reset-request",
			`{"email":"jane@example.com"}`, nil)
		return w.Code, decode(t, w)
	}

	for i := 1; i <= forms.MaxResetAttempts; i++ {
		code, body := send()
		require.Equal(t, http.StatusOK, code)
		remaining := body["data"].(map[string]interface{})["attempts_remaining"]
		assert.Equal(t, float64(forms.MaxResetAttempts-i), remaining)
	}

	code, body := send()
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, forms.MsgTooManyAttempts, body["message"])
	assert.Equal(t, forms.MaxResetAttempts, f.server.count("POST /auth/v1/recover"))

	// reopening the page starts a new budget
	v.Forms.OpenResetRequest()
	code, _ = send()
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(time.Second, zap.NewNop())

	t.Run("mismatch", func(t *testing.T) {
		v := f.newVisitor(t)
		w := call(h.HandleResetPassword, v, http.MethodPost, "/api/v1/auth/password/reset",
			`{"password":"Secret1!","confirm_password":"Secret2!"}`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, utils.MsgPasswordMismatch, decode(t, w)["message"])
	})

	t.Run("without a recovery session", func(t *testing.T) {
		v := f.newVisitor(t)
		w := call(h.HandleResetPassword, v, http.MethodPost, "/api/v1/auth/password/reset",
			`{"password":"Secret1!","confirm_password":"Secret1!"}`, nil)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, forms.MsgResetFailed, decode(t, w)["message"])
	})

	t.Run("after the recovery link", func(t *testing.T) {
		v := f.newVisitor(t)
		require.NoError(t, v.Client.SetSessionFromRedirect(context.Background(), "at-jane", "rt", "recovery"))

		w := call(h.HandleResetPassword, v, http.MethodPost, "/api/v1/auth/password/reset",
			`{"password":"Secret1!","confirm_password":"Secret1!"}`, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, "/login", data["redirect_to"])
		assert.Equal(t, 1, f.server.count("PUT /auth/v1/user"))
	})
}

func TestAuthHandler_FormEdit(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(time.Second, zap.NewNop())
	v := f.newVisitor(t)

	w := call(h.HandleSignIn, v, http.MethodPost, "/api/v1/auth/sign-in",
		`{"email":"jane@example.com","password":"wrong"}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, forms.StateFailed, v.Forms.SignIn.State())

	w = call(h.HandleFormEdit, v, http.MethodPost, "/api/v1/auth/forms/sign-in/edit", "",
		map[string]string{"form": "sign-in"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, forms.StateIdle, v.Forms.SignIn.State())
	statuses := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "idle", statuses["sign_in"].(map[string]interface{})["state"])

	w = call(h.HandleFormEdit, v, http.MethodPost, "/api/v1/auth/forms/nope/edit", "",
		map[string]string{"form": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
