package handlers

import (
	"net"
	"net/http"

	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// PixelTracker queues ad pixel events
type PixelTracker interface {
	Track(ev models.PixelEvent) bool
}

// PixelHandler accepts pixel events from the browser
type PixelHandler struct {
	tracker PixelTracker
	logger  *zap.Logger
}

// NewPixelHandler creates a new PixelHandler
func NewPixelHandler(tracker PixelTracker, logger *zap.Logger) *PixelHandler {
	return &PixelHandler{tracker: tracker, logger: logger}
}

// HandleEvent handles POST /api/v1/pixel/events. The event is accepted
// whether or not it could be queued.
func (h *PixelHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.PixelEvent
	if err := utils.DecodeJSON(w, r, &ev); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&ev); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if ev.SourceURL == "" {
		ev.SourceURL = r.Referer()
	}
	ev.UserAgent = r.UserAgent()
	ev.ClientIP = clientIP(r)

	queued := h.tracker.Track(ev)
	h.logger.Debug("pixel event received",
		zap.String("event", ev.Name),
		zap.Bool("queued", queued))
	_ = utils.WriteAccepted(w)
}

// pixelEvent builds an event for a request the server itself tracks
func pixelEvent(r *http.Request, name string, custom bool, params map[string]interface{}) models.PixelEvent {
	return models.PixelEvent{
		Name:      name,
		Custom:    custom,
		Params:    params,
		SourceURL: r.URL.Path,
		UserAgent: r.UserAgent(),
		ClientIP:  clientIP(r),
	}
}

// clientIP strips the port chi's RealIP leaves on RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
