package auth

import (
	"context"
	"errors"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/repositories"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RoleResolver derives a subject's role from its profile record.
// Every failure resolves to the user role; it never elevates.
type RoleResolver struct {
	profiles repositories.ProfileRepository
	metrics  *observability.Metrics
	logger   *zap.Logger
	group    singleflight.Group
}

// NewRoleResolver creates a role resolver over profiles
func NewRoleResolver(profiles repositories.ProfileRepository, metrics *observability.Metrics, logger *zap.Logger) *RoleResolver {
	return &RoleResolver{
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
	}
}

// ResolveRole looks up the role of subjectID. Concurrent lookups for the
// same subject share one call.
func (r *RoleResolver) ResolveRole(ctx context.Context, subjectID string) models.Role {
	if subjectID == "" {
		r.record("defaulted")
		return models.RoleUser
	}

	v, _, _ := r.group.Do(subjectID, func() (interface{}, error) {
		return r.lookup(ctx, subjectID), nil
	})
	return v.(models.Role)
}

func (r *RoleResolver) lookup(ctx context.Context, subjectID string) models.Role {
	value, err := r.profiles.GetRole(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			r.logger.Warn("no profile for subject, defaulting to user", zap.String("subject_id", subjectID))
		} else {
			r.logger.Error("error fetching user role", zap.String("subject_id", subjectID), zap.Error(err))
		}
		r.record("defaulted")
		return models.RoleUser
	}

	role := models.ParseRole(value)
	if string(role) != value {
		r.logger.Warn("unknown role value, defaulting to user",
			zap.String("subject_id", subjectID),
			zap.String("value", value))
		r.record("defaulted")
		return role
	}

	r.record(string(role))
	return role
}

func (r *RoleResolver) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RoleResolutions.WithLabelValues(outcome).Inc()
	}
}
