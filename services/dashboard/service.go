package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/repositories"
	"github.com/digitechhorizons/portal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecentScanLimit is the number of scans shown on the user dashboard
const RecentScanLimit = 5

// MsgLoadFailed is shown when dashboard data cannot be read
const MsgLoadFailed = "Failed to load dashboard data. Please try again."

// Service loads the data behind the two dashboards
type Service struct {
	profiles   repositories.ProfileRepository
	protection repositories.ProtectionRepository
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewService creates a dashboard service
func NewService(repos *repositories.Repositories, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		profiles:   repos.Profiles,
		protection: repos.Protection,
		metrics:    metrics,
		logger:     logger,
	}
}

// Admin returns the admin overview
func (s *Service) Admin(ctx context.Context) (*models.AdminOverview, error) {
	count, err := s.profiles.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count profiles", zap.Error(err))
		return nil, s.fail("admin", fmt.Errorf("count profiles: %w", err))
	}

	s.record("admin", "success")
	return &models.AdminOverview{UserCount: count}, nil
}

// User returns the protection metrics and recent scans of userID. The
// two reads run concurrently; a user without a metrics record gets nil
// metrics.
func (s *Service) User(ctx context.Context, userID string) (*models.UserOverview, error) {
	overview := &models.UserOverview{RecentScans: []*models.ContentScan{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.protection.GetMetrics(gctx, userID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get protection metrics: %w", err)
		}
		overview.Metrics = m
		return nil
	})
	g.Go(func() error {
		scans, err := s.protection.ListRecentScans(gctx, userID, RecentScanLimit)
		if err != nil {
			return fmt.Errorf("list recent scans: %w", err)
		}
		if scans != nil {
			overview.RecentScans = scans
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("dashboard data fetch error", zap.String("user_id", userID), zap.Error(err))
		return nil, s.fail("user", err)
	}

	s.record("user", "success")
	return overview, nil
}

func (s *Service) fail(dashboard string, err error) error {
	s.record(dashboard, "error")
	return services.NewDomainError(services.ErrorTypeExternal, MsgLoadFailed, err).
		WithDetail("retryable", true)
}

func (s *Service) record(dashboard, result string) {
	if s.metrics != nil {
		s.metrics.DashboardRequests.WithLabelValues(dashboard, result).Inc()
	}
}
