package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/repositories"
)

// single-object responses; PostgREST answers 406 / PGRST116 on zero rows
const pgrstObject = "application/vnd.pgrst.object+json"

// ProfileRepository reads profiles over PostgREST
type ProfileRepository struct {
	client *Client
}

// NewProfileRepository creates a PostgREST-backed profile repository
func NewProfileRepository(client *Client) repositories.ProfileRepository {
	return &ProfileRepository{client: client}
}

// GetRole retrieves the stored role of a subject
func (r *ProfileRepository) GetRole(ctx context.Context, subjectID string) (string, error) {
	var row struct {
		Role string `json:"role"`
	}
	token, _ := repositories.AccessTokenFromContext(ctx)

	_, err := r.client.do(ctx, request{
		method:  http.MethodGet,
		path:    "/rest/v1/profiles",
		query:   url.Values{"select": {"role"}, "id": {"eq." + subjectID}},
		token:   token,
		headers: map[string]string{"Accept": pgrstObject},
	}, &row)
	if err != nil {
		return "", notFound(err, "profile "+subjectID)
	}
	return row.Role, nil
}

// Count returns the number of profiles visible to the caller
func (r *ProfileRepository) Count(ctx context.Context) (int, error) {
	token, _ := repositories.AccessTokenFromContext(ctx)

	header, err := r.client.do(ctx, request{
		method:  http.MethodHead,
		path:    "/rest/v1/profiles",
		query:   url.Values{"select": {"id"}},
		token:   token,
		headers: map[string]string{"Prefer": "count=exact"},
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return parseContentRangeTotal(header.Get("Content-Range"))
}

// ProtectionRepository reads protection metrics and scans over PostgREST
type ProtectionRepository struct {
	client *Client
}

// NewProtectionRepository creates a PostgREST-backed protection repository
func NewProtectionRepository(client *Client) repositories.ProtectionRepository {
	return &ProtectionRepository{client: client}
}

// GetMetrics retrieves the protection metrics of a user
func (r *ProtectionRepository) GetMetrics(ctx context.Context, userID string) (*models.ProtectionMetrics, error) {
	token, _ := repositories.AccessTokenFromContext(ctx)

	m := &models.ProtectionMetrics{}
	_, err := r.client.do(ctx, request{
		method:  http.MethodGet,
		path:    "/rest/v1/protection_metrics",
		query:   url.Values{"select": {"*"}, "user_id": {"eq." + userID}},
		token:   token,
		headers: map[string]string{"Accept": pgrstObject},
	}, m)
	if err != nil {
		return nil, notFound(err, "protection metrics for "+userID)
	}
	return m, nil
}

// ListRecentScans retrieves the newest content scans of a user
func (r *ProtectionRepository) ListRecentScans(ctx context.Context, userID string, limit int) ([]*models.ContentScan, error) {
	token, _ := repositories.AccessTokenFromContext(ctx)

	var scans []*models.ContentScan
	_, err := r.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/content_scans",
		query: url.Values{
			"select":  {"*"},
			"user_id": {"eq." + userID},
			"order":   {"scan_date.desc"},
			"limit":   {strconv.Itoa(limit)},
		},
		token: token,
	}, &scans)
	if err != nil {
		return nil, fmt.Errorf("failed to list content scans: %w", err)
	}
	return scans, nil
}

// notFound maps a NotFound backend error onto repositories.ErrNotFound
// while keeping the backend error in the chain.
func notFound(err error, what string) error {
	if KindOf(err) == KindNotFound {
		return fmt.Errorf("%s: %w (%v)", what, repositories.ErrNotFound, err)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

// parseContentRangeTotal reads the total from "0-24/3573" or "*/0"
func parseContentRangeTotal(v string) (int, error) {
	i := strings.LastIndex(v, "/")
	if i < 0 || i == len(v)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", v)
	}
	total, err := strconv.Atoi(v[i+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid count in Content-Range %q: %w", v, err)
	}
	return total, nil
}
