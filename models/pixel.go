package models

import "time"

// Standard pixel event names
const (
	PixelEventPageView    = "PageView"
	PixelEventViewContent = "ViewContent"
	PixelEventLead        = "Lead"
)

// PixelEvent is an ad-tracking notification. Params is a flat key/value payload.
type PixelEvent struct {
	EventID   string                 `json:"event_id"`
	Name      string                 `json:"name" validate:"required,max=100"`
	Custom    bool                   `json:"custom"`
	Params    map[string]interface{} `json:"params,omitempty"`
	SourceURL string                 `json:"source_url,omitempty" validate:"omitempty,max=2048"`
	UserAgent string                 `json:"-"`
	ClientIP  string                 `json:"-"`
	Time      time.Time              `json:"-"`
}
