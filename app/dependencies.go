package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digitechhorizons/portal/auth"
	"github.com/digitechhorizons/portal/config"
	"github.com/digitechhorizons/portal/handlers"
	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/middleware"
	"github.com/digitechhorizons/portal/repositories"
	"github.com/digitechhorizons/portal/repositories/postgres"
	"github.com/digitechhorizons/portal/services/contact"
	"github.com/digitechhorizons/portal/services/dashboard"
	"github.com/digitechhorizons/portal/services/pixel"
	"github.com/digitechhorizons/portal/session"
	"github.com/digitechhorizons/portal/supabase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// pixelDrainTimeout bounds how long shutdown waits for queued pixel events
const pixelDrainTimeout = 5 * time.Second

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Hosted backend
	Backend   *supabase.Client
	Validator *supabase.TokenValidator

	// Records: PostgREST unless DATABASE_URL/DB_* is configured
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories

	// Domain
	Roles     *auth.RoleResolver
	Visitors  *session.Manager
	Pixel     *pixel.Service
	Contact   *contact.Relay
	Dashboard *dashboard.Service

	// HTTP
	VisitorMiddleware *middleware.VisitorMiddleware
	Guard             *middleware.Guard
	Health            *handlers.HealthHandler
	Auth              *handlers.AuthHandler
	Navigation        *handlers.NavigationHandler
	Dashboards        *handlers.DashboardHandler
	ContactForm       *handlers.ContactHandler
	PixelEvents       *handlers.PixelHandler
	Pages             *handlers.PagesHandler

	authHandler *auth.Handler
}

// AuthHandler returns the session lifecycle handler (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies creates and wires up all application dependencies and
// starts the background workers.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()
	deps.initBackend(cfg)

	if err := deps.initRepositories(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	deps.initServices(cfg)

	if err := deps.initSessions(cfg); err != nil {
		_ = deps.closeRepositories()
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}

	if err := deps.Pixel.Start(); err != nil {
		_ = deps.Visitors.Stop(ctx)
		_ = deps.closeRepositories()
		return nil, fmt.Errorf("failed to start pixel service: %w", err)
	}

	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
}

func (d *Dependencies) initBackend(cfg *config.Config) {
	d.Backend = supabase.NewClient(supabase.Config{
		URL:         cfg.Backend.URL,
		AnonKey:     cfg.Backend.AnonKey,
		SiteURL:     cfg.Backend.SiteURL,
		HTTPTimeout: cfg.Backend.HTTPTimeout,
	}, d.Logger.Named("backend"))

	d.Validator = supabase.NewTokenValidator(supabase.ValidatorConfig{
		BaseURL:     cfg.Backend.URL,
		JWTSecret:   cfg.Backend.JWTSecret,
		JWKSURL:     cfg.Backend.JWKSURL,
		HTTPTimeout: cfg.Backend.HTTPTimeout,
	})
}

// initRepositories picks the record source
func (d *Dependencies) initRepositories(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Repos = &repositories.Repositories{
			Profiles:   supabase.NewProfileRepository(d.Backend),
			Protection: supabase.NewProtectionRepository(d.Backend),
		}
		d.Logger.Info("records read through the backend REST API")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	if cfg.IsDevelopment() {
		if err := factory.GetDB().InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	d.RepoFactory = factory
	d.Repos = factory.NewRepositories()
	d.Logger.Info("records read from postgres",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Roles = auth.NewRoleResolver(d.Repos.Profiles, d.Metrics, d.Logger.Named("roles"))
	d.Dashboard = dashboard.NewService(d.Repos, d.Metrics, d.Logger.Named("dashboard"))
	d.Contact = contact.NewRelay(cfg.Contact, d.Metrics, d.Logger.Named("contact"))
	d.Pixel = pixel.NewService(cfg.Pixel, d.Metrics, d.Logger.Named("pixel"))

	if cfg.Contact.RelayURL == "" {
		d.Logger.Warn("contact relay not configured, submissions will fail")
	}
	if !cfg.Pixel.Enabled() {
		d.Logger.Warn("meta pixel not configured, events are discarded")
	}
}

func (d *Dependencies) initSessions(cfg *config.Config) error {
	logger := d.Logger.Named("session")
	d.Visitors = session.NewManager(session.ManagerConfig{
		IdleTTL:       cfg.Session.IdleTTL,
		AnonymousTTL:  cfg.Session.AnonymousTTL,
		MaxVisitors:   cfg.Session.MaxVisitors,
		ReadyTimeout:  cfg.Session.ReadyTimeout,
		SweepSchedule: cfg.Session.SweepSchedule,
	}, func() session.Client {
		return d.Backend.NewAuthSession(d.Validator, cfg.Backend.RefreshMargin, logger)
	}, d.Roles, d.Metrics, logger)

	return d.Visitors.Start()
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	var db *sql.DB
	if d.RepoFactory != nil {
		db = d.RepoFactory.GetDB().DB
	}

	d.VisitorMiddleware = middleware.NewVisitorMiddleware(d.Visitors, cfg.Session.CookieName, cfg.Session.CookieSecure, d.Logger)
	d.Guard = middleware.NewGuard(cfg.Session.ReadyTimeout, d.Metrics, d.Logger)

	d.authHandler = auth.NewHandler(d.Logger)
	d.Health = handlers.NewHealthHandler(d.Backend, db, d.Logger)
	d.Auth = handlers.NewAuthHandler(cfg.Session.ReadyTimeout, d.Logger)
	d.Navigation = handlers.NewNavigationHandler(cfg.Session.ReadyTimeout, d.Logger)
	d.Dashboards = handlers.NewDashboardHandler(d.Dashboard, d.Logger)
	d.ContactForm = handlers.NewContactHandler(d.Contact, d.Pixel, d.Logger)
	d.PixelEvents = handlers.NewPixelHandler(d.Pixel, d.Logger)
	d.Pages = handlers.NewPagesHandler(d.Pixel, d.Logger)
}

func (d *Dependencies) closeRepositories() error {
	if d.RepoFactory == nil {
		return nil
	}
	return d.RepoFactory.Close()
}

// Close gracefully shuts down all dependencies. Visitors go first so no
// auth callback outlives the backend client.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Visitors != nil {
		if err := d.Visitors.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop visitor manager: %w", err))
		}
	}

	if d.Pixel != nil {
		if err := d.Pixel.Stop(pixelDrainTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop pixel service: %w", err))
		}
	}

	if err := d.closeRepositories(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	} else if d.RepoFactory != nil {
		d.Logger.Info("database connection closed")
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
