// Package contact relays contact form submissions to a form-relay endpoint.
package contact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/digitechhorizons/portal/config"
	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/services"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// MsgSubmitFailed is shown when the relay rejects or cannot be reached
const MsgSubmitFailed = "Failed to submit form. Please try again."

// Relay posts contact submissions as multipart forms
type Relay struct {
	url     string
	client  *http.Client
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRelay creates a relay for cfg
func NewRelay(cfg config.ContactConfig, metrics *observability.Metrics, logger *zap.Logger) *Relay {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Relay{
		url:     cfg.RelayURL,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
		logger:  logger,
	}
}

// Submit validates and relays one submission. Every failure carries the
// submitted fields under details["submission"] so the form can be
// refilled.
func (r *Relay) Submit(ctx context.Context, sub models.ContactSubmission) error {
	sub = normalize(sub)

	if err := utils.ValidateStruct(&sub); err != nil {
		r.record("invalid")
		derr := services.NewDomainError(services.ErrorTypeValidation, "Please check the highlighted fields.", err).
			WithDetail("submission", sub)
		for field, msg := range utils.GetValidationFields(err) {
			derr.WithDetail(field, msg)
		}
		return derr
	}

	if r.url == "" {
		r.logger.Error("contact relay URL not configured")
		r.record("failed")
		return r.failure(sub, fmt.Errorf("contact relay not configured"))
	}

	body, contentType, err := encode(sub)
	if err != nil {
		r.record("failed")
		return r.failure(sub, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		r.record("failed")
		return r.failure(sub, fmt.Errorf("build relay request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("contact relay unreachable", zap.Error(err))
		r.record("failed")
		return r.failure(sub, fmt.Errorf("relay request: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warn("contact relay rejected submission", zap.Int("status", resp.StatusCode))
		r.record("rejected")
		return r.failure(sub, fmt.Errorf("relay returned status %d", resp.StatusCode))
	}

	r.logger.Info("contact form relayed", zap.String("site_name", sub.SiteName))
	r.record("sent")
	return nil
}

func (r *Relay) failure(sub models.ContactSubmission, err error) error {
	return services.NewDomainError(services.ErrorTypeExternal, MsgSubmitFailed, err).
		WithDetail("submission", sub)
}

func (r *Relay) record(result string) {
	if r.metrics != nil {
		r.metrics.RelaySubmissions.WithLabelValues(result).Inc()
	}
}

func normalize(sub models.ContactSubmission) models.ContactSubmission {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.SiteName = strings.TrimSpace(sub.SiteName)
	sub.Email = strings.TrimSpace(sub.Email)
	sub.Phone = strings.TrimSpace(sub.Phone)
	sub.ProtectionDetails = strings.TrimSpace(sub.ProtectionDetails)
	return sub
}

// encode writes the submission as multipart form fields in a stable order
func encode(sub models.ContactSubmission) (io.Reader, string, error) {
	fields := sub.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return nil, "", fmt.Errorf("encode field %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("encode form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
