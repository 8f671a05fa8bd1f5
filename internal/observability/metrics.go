package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portal
type Metrics struct {
	// Credential forms
	FormSubmissions *prometheus.CounterVec

	// Session store and role resolution
	RoleResolutions *prometheus.CounterVec
	ActiveVisitors  prometheus.Gauge

	// Route guard
	GuardDecisions *prometheus.CounterVec

	// Outbound integrations
	PixelEvents       *prometheus.CounterVec
	RelaySubmissions  *prometheus.CounterVec
	DashboardRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		FormSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_form_submissions_total",
				Help: "Credential form submissions by form and outcome",
			},
			[]string{"form", "outcome"},
		),
		RoleResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_role_resolutions_total",
				Help: "Role lookups by outcome (admin, user, defaulted)",
			},
			[]string{"outcome"},
		),
		ActiveVisitors: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_active_visitors",
				Help: "Number of live per-visitor application instances",
			},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_guard_decisions_total",
				Help: "Route guard decisions by required role and result",
			},
			[]string{"required", "result"},
		),
		PixelEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_pixel_events_total",
				Help: "Ad pixel events by result (sent, failed, dropped, skipped_bot)",
			},
			[]string{"result"},
		),
		RelaySubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_contact_relay_submissions_total",
				Help: "Contact form relay submissions by result",
			},
			[]string{"result"},
		),
		DashboardRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_dashboard_requests_total",
				Help: "Dashboard data loads by dashboard and result",
			},
			[]string{"dashboard", "result"},
		),
	}
}

// NewNopMetrics returns metrics registered on a throwaway registry, for tests
// and for deployments with METRICS_ENABLED=false.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
