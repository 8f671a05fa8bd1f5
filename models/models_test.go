package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		value string
		want  Role
	}{
		{"admin", RoleAdmin},
		{"user", RoleUser},
		{"", RoleUser},
		{"ADMIN", RoleUser},
		{"superuser", RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRole(tt.value))
		})
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("nil session is expired", func(t *testing.T) {
		var s *Session
		assert.True(t, s.Expired(now))
	})

	t.Run("zero expiry never expires", func(t *testing.T) {
		s := &Session{SubjectID: "abc"}
		assert.False(t, s.Expired(now))
	})

	t.Run("expiry boundary", func(t *testing.T) {
		s := &Session{ExpiresAt: now}
		assert.True(t, s.Expired(now))
		assert.False(t, s.Expired(now.Add(-time.Second)))
	})
}

func TestSession_Clone(t *testing.T) {
	s := &Session{SubjectID: "abc", AccessToken: "tok"}
	c := s.Clone()

	c.AccessToken = "other"
	assert.Equal(t, "tok", s.AccessToken)
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestContactSubmission_Fields(t *testing.T) {
	c := ContactSubmission{
		Name:              "Ana",
		SiteName:          "Streamly",
		Email:             "ana@example.com",
		Phone:             "+1 555 0100",
		ProtectionDetails: "Leaked episodes",
	}

	fields := c.Fields()
	assert.Equal(t, "Streamly", fields["siteName"])
	assert.Equal(t, "Leaked episodes", fields["protectionDetails"])
	assert.Len(t, fields, 5)
}
