package handlers

import (
	"context"
	"net/http"

	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// ContactRelay submits contact forms
type ContactRelay interface {
	Submit(ctx context.Context, sub models.ContactSubmission) error
}

// ContactHandler handles the contact form
type ContactHandler struct {
	relay  ContactRelay
	pixel  PixelTracker
	logger *zap.Logger
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(relay ContactRelay, pixel PixelTracker, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{relay: relay, pixel: pixel, logger: logger}
}

// HandleSubmit handles POST /api/v1/contact. A successful submission is
// reported to the pixel as a Lead.
func (h *ContactHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub models.ContactSubmission
	if err := utils.DecodeJSON(w, r, &sub); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.relay.Submit(r.Context(), sub); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if h.pixel != nil {
		h.pixel.Track(pixelEvent(r, models.PixelEventLead, false, map[string]interface{}{
			"content_name": "contact_form",
		}))
	}
	_ = utils.WriteMessage(w, "Thank you! We'll be in touch soon.", nil)
}
