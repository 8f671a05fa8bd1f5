package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockContactRelay struct {
	mock.Mock
}

func (m *MockContactRelay) Submit(ctx context.Context, sub models.ContactSubmission) error {
	return m.Called(ctx, sub).Error(0)
}

const contactBody = `{"name":"Jane","site_name":"Jane's Art","email":"jane@example.com","protection_details":"Watermarks"}`

func TestContactHandler(t *testing.T) {
	t.Run("success is tracked as a lead", func(t *testing.T) {
		relay := new(MockContactRelay)
		tracker := &recordingTracker{}
		h := NewContactHandler(relay, tracker, zap.NewNop())
		relay.On("Submit", mock.Anything, mock.MatchedBy(func(sub models.ContactSubmission) bool {
			return sub.Email == "jane@example.com" && sub.SiteName == "Jane's Art"
		})).Return(nil)

		w := call(h.HandleSubmit, nil, http.MethodPost, "/api/v1/contact", contactBody, nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{models.PixelEventLead}, tracker.names())
		relay.AssertExpectations(t)
	})

	t.Run("relay failure echoes the submission", func(t *testing.T) {
		relay := new(MockContactRelay)
		tracker := &recordingTracker{}
		h := NewContactHandler(relay, tracker, zap.NewNop())
		relay.On("Submit", mock.Anything, mock.Anything).Return(
			services.NewDomainError(services.ErrorTypeExternal, "Failed to submit form. Please try again.", nil).
				WithDetail("submission", map[string]interface{}{"name": "Jane"}))

		w := call(h.HandleSubmit, nil, http.MethodPost, "/api/v1/contact", contactBody, nil)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Failed to submit form. Please try again.", body["message"])
		details := body["details"].(map[string]interface{})
		assert.Equal(t, "Jane", details["submission"].(map[string]interface{})["name"])
		assert.Empty(t, tracker.names())
	})

	t.Run("malformed body", func(t *testing.T) {
		relay := new(MockContactRelay)
		h := NewContactHandler(relay, nil, zap.NewNop())

		w := call(h.HandleSubmit, nil, http.MethodPost, "/api/v1/contact", `{"name":`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		relay.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})
}
