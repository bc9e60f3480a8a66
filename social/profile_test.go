package social_test

import (
	"testing"

	"github.com/goliatone/go-forum-auth/social"
	"github.com/stretchr/testify/assert"
)

func TestProfileFromDetails(t *testing.T) {
	tests := []struct {
		name     string
		details  map[string]any
		expected social.Profile
		source   string
	}{
		{
			name: "github",
			details: map[string]any{
				"login":      "octocat",
				"name":       "The Octocat",
				"email":      "octo@example.com",
				"avatar_url": "https://example.com/o.png",
			},
			expected: social.Profile{
				Email:     "octo@example.com",
				Name:      "The Octocat",
				Username:  "octocat",
				AvatarURL: "https://example.com/o.png",
			},
			source: "octocat",
		},
		{
			name: "oidc",
			details: map[string]any{
				"preferred_username": " jdoe ",
				"picture":            "https://example.com/j.png",
			},
			expected: social.Profile{Username: "jdoe", AvatarURL: "https://example.com/j.png"},
			source:   "jdoe",
		},
		{
			name:     "name only",
			details:  map[string]any{"name": "Jane Doe", "login": 42},
			expected: social.Profile{Name: "Jane Doe"},
			source:   "Jane Doe",
		},
		{
			name:     "nil details",
			details:  nil,
			expected: social.Profile{},
			source:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := social.ProfileFromDetails(tt.details)
			assert.Equal(t, tt.expected, profile)
			assert.Equal(t, tt.source, profile.UsernameSource())
		})
	}
}
