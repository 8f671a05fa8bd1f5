package handlers

import (
	"net/http"
	"testing"

	"github.com/digitechhorizons/portal/forms"
	"github.com/digitechhorizons/portal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func page(t *testing.T, pages []Page, path string) Page {
	t.Helper()
	for _, p := range pages {
		if p.Path == path {
			return p
		}
	}
	t.Fatalf("no page %s", path)
	return Page{}
}

func TestPagesHandler_Public(t *testing.T) {
	f := newFixture(t)

	t.Run("page view tracked", func(t *testing.T) {
		tracker := &recordingTracker{}
		h := NewPagesHandler(tracker, zap.NewNop())

		w := call(h.Public(page(t, PublicPages, "/about")), f.newVisitor(t), http.MethodGet, "/about", "", nil)

		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, "about", data["component"])
		assert.Equal(t, []string{models.PixelEventPageView}, tracker.names())
	})

	t.Run("meta ads also views content", func(t *testing.T) {
		tracker := &recordingTracker{}
		h := NewPagesHandler(tracker, zap.NewNop())

		call(h.Public(page(t, PublicPages, "/meta-ads")), f.newVisitor(t), http.MethodGet, "/meta-ads", "", nil)

		assert.Equal(t, []string{models.PixelEventPageView, models.PixelEventViewContent}, tracker.names())
	})

	t.Run("forgot password resets the attempt budget", func(t *testing.T) {
		h := NewPagesHandler(nil, zap.NewNop())
		v := f.newVisitor(t)
		before := v.Forms.ResetRequest()
		require.NoError(t, before.Submit(t.Context(), "jane@example.com"))
		require.Equal(t, 1, before.Attempts())

		w := call(h.Public(page(t, PublicPages, "/forgot-password")), v, http.MethodGet, "/forgot-password", "", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.NotSame(t, before, v.Forms.ResetRequest())
		assert.Equal(t, 0, v.Forms.ResetRequest().Attempts())
		formsData := decode(t, w)["data"].(map[string]interface{})["forms"].(map[string]interface{})
		assert.Equal(t, string(forms.StateIdle), formsData["reset_request"].(map[string]interface{})["state"])
	})

	t.Run("works without a visitor", func(t *testing.T) {
		h := NewPagesHandler(nil, zap.NewNop())
		w := call(h.Public(page(t, PublicPages, "/login")), nil, http.MethodGet, "/login", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestPagesHandler_Guarded(t *testing.T) {
	h := NewPagesHandler(nil, zap.NewNop())

	t.Run("admitted", func(t *testing.T) {
		w := guarded(h.Guarded(page(t, GuardedPages, "/dashboard")), signedIn("admin-1", models.RoleAdmin))

		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, "admin_dashboard", data["component"])
		assert.Equal(t, "admin", data["session"].(map[string]interface{})["role"])
	})

	t.Run("without snapshot", func(t *testing.T) {
		w := guarded(h.Guarded(page(t, GuardedPages, "/user-dashboard")), nil)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})
}
