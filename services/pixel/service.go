// Package pixel forwards ad-tracking events to the Meta Conversions API.
//
// Events are fire-and-forget: Track never blocks the caller, a full queue
// drops the event, and delivery failures are only logged and counted.
package pixel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/digitechhorizons/portal/config"
	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/internal/redact"
	"github.com/digitechhorizons/portal/models"
	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"go.uber.org/zap"
)

// Service queues pixel events and delivers them with a pool of workers
type Service struct {
	cfg     config.PixelConfig
	client  *http.Client
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	queue chan models.PixelEvent
	wg    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewService creates a pixel service. Nothing is delivered until Start.
func NewService(cfg config.PixelConfig, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = "https://graph.facebook.com"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v19.0"
	}
	return &Service{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan models.PixelEvent, cfg.QueueSize),
	}
}

// Start starts the delivery workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("pixel service already started")
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started pixel service",
		zap.Bool("enabled", s.cfg.Enabled()),
		zap.Int("worker_count", s.cfg.Workers),
		zap.Int("queue_size", s.cfg.QueueSize))
	return nil
}

// Stop stops accepting events and waits for queued ones to be delivered
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("pixel service not running")
	}
	s.stopped = true
	close(s.queue)
	pending := len(s.queue)
	s.mu.Unlock()

	s.logger.Info("stopping pixel service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("pixel service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pixel service stop timeout after %v", timeout)
	}
}

// Track queues ev for delivery and reports whether it was queued. Bot
// traffic is skipped, and the event is dropped when the queue is full or
// the service is not running.
func (s *Service) Track(ev models.PixelEvent) bool {
	if !s.cfg.Enabled() {
		s.record("disabled")
		return false
	}
	if ev.UserAgent != "" && useragent.New(ev.UserAgent).Bot() {
		s.record("skipped_bot")
		return false
	}

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		s.record("dropped")
		return false
	}

	select {
	case s.queue <- ev:
		return true
	default:
		s.logger.Warn("pixel event queue full, dropping event", zap.String("event", ev.Name))
		s.record("dropped")
		return false
	}
}

// Stats reports queue occupancy
type Stats struct {
	QueueSize     int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// GetStats returns statistics about the pixel service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		QueueSize:     s.cfg.QueueSize,
		PendingEvents: len(s.queue),
		WorkerCount:   s.cfg.Workers,
		Started:       s.started && !s.stopped,
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for ev := range s.queue {
		if err := s.deliver(ev); err != nil {
			s.logger.Warn("failed to deliver pixel event",
				zap.Int("worker_id", id),
				zap.String("event", ev.Name),
				zap.String("event_id", ev.EventID),
				zap.Error(err))
			s.record("failed")
			continue
		}
		s.record("sent")
	}
}

// serverEvent is one entry of a Conversions API request
type serverEvent struct {
	EventName      string                 `json:"event_name"`
	EventTime      int64                  `json:"event_time"`
	EventID        string                 `json:"event_id"`
	EventSourceURL string                 `json:"event_source_url,omitempty"`
	ActionSource   string                 `json:"action_source"`
	UserData       userData               `json:"user_data"`
	CustomData     map[string]interface{} `json:"custom_data,omitempty"`
}

type userData struct {
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
}

func (s *Service) deliver(ev models.PixelEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	// access_token goes in the body; transport errors quote the URL.
	payload, err := json.Marshal(map[string]interface{}{
		"data":         []serverEvent{toServerEvent(ev)},
		"access_token": s.cfg.AccessToken,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events",
		strings.TrimRight(s.cfg.GraphURL, "/"),
		s.cfg.APIVersion,
		url.PathEscape(s.cfg.PixelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("conversions api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func toServerEvent(ev models.PixelEvent) serverEvent {
	custom := redact.Params(ev.Params)
	if custom == nil {
		custom = make(map[string]interface{}, 3)
	}
	if ev.UserAgent != "" {
		ua := useragent.New(ev.UserAgent)
		custom["device"] = "desktop"
		if ua.Mobile() {
			custom["device"] = "mobile"
		}
		if os := ua.OS(); os != "" {
			custom["os"] = os
		}
	}
	if ev.Custom {
		custom["custom_event"] = true
	}

	return serverEvent{
		EventName:      ev.Name,
		EventTime:      ev.Time.Unix(),
		EventID:        ev.EventID,
		EventSourceURL: redact.String(ev.SourceURL),
		ActionSource:   "website",
		UserData: userData{
			ClientIPAddress: ev.ClientIP,
			ClientUserAgent: ev.UserAgent,
		},
		CustomData: custom,
	}
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.PixelEvents.WithLabelValues(result).Inc()
	}
}
