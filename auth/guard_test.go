package auth

import (
	"testing"

	"github.com/digitechhorizons/portal/models"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	sess := &models.Session{SubjectID: "s1"}

	tests := []struct {
		name     string
		session  *models.Session
		role     models.Role
		required models.Role
		want     Decision
	}{
		{"no session, admin page", nil, "", models.RoleAdmin, Decision{RedirectTo: "/login"}},
		{"no session, user page", nil, "", models.RoleUser, Decision{RedirectTo: "/login"}},
		{"no session, any page", nil, models.RoleAdmin, "", Decision{RedirectTo: "/login"}},
		{"admin on admin page", sess, models.RoleAdmin, models.RoleAdmin, Decision{Allow: true}},
		{"user on user page", sess, models.RoleUser, models.RoleUser, Decision{Allow: true}},
		{"user on admin page", sess, models.RoleUser, models.RoleAdmin, Decision{RedirectTo: "/user-dashboard"}},
		{"admin on user page", sess, models.RoleAdmin, models.RoleUser, Decision{RedirectTo: "/dashboard"}},
		{"session only required", sess, models.RoleUser, "", Decision{Allow: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.session, tt.role, tt.required))
		})
	}
}

func TestLandingPath(t *testing.T) {
	assert.Equal(t, "/dashboard", LandingPath(models.RoleAdmin))
	assert.Equal(t, "/user-dashboard", LandingPath(models.RoleUser))
	assert.Equal(t, "/user-dashboard", LandingPath(""))
}

func TestRequiredRole(t *testing.T) {
	role, ok := RequiredRole("/dashboard")
	assert.True(t, ok)
	assert.Equal(t, models.RoleAdmin, role)

	role, ok = RequiredRole("/user-dashboard")
	assert.True(t, ok)
	assert.Equal(t, models.RoleUser, role)

	_, ok = RequiredRole("/about")
	assert.False(t, ok)
}
