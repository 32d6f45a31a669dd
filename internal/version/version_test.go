package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDev(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	tests := []struct {
		version  string
		expected bool
	}{
		{"dev", true},
		{"1.0.0", false},
		{"v1.2.3", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			Version = tt.version
			assert.Equal(t, tt.expected, IsDev())
		})
	}
}

func TestFullAndUserAgent(t *testing.T) {
	original, commit, date := Version, Commit, Date
	defer func() { Version, Commit, Date = original, commit, date }()

	Version = "dev"
	assert.Equal(t, "lmscache version dev (built from source)", Full())

	Version, Commit, Date = "1.2.0", "abc123", "2025-03-01"
	assert.Equal(t, "lmscache version 1.2.0 (abc123, 2025-03-01)", Full())
	assert.True(t, strings.HasPrefix(UserAgent(), "lmscache/1.2.0 ("))
}
