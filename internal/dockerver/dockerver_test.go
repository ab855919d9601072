package dockerver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"modern client", "docker/20.10.7 go/go1.13.15 git-commit/b0f5bc3", "20.10.7"},
		{"old client", "docker/1.5.0 go/1.4.2 git-commit/a8a31ef", "1.5.0"},
		{"two segments", "docker/1.9 (linux)", "1.9.0"},
		{"mixed case", "Docker/17.03.1-ce kernel/4.9", "17.3.1"},
		{"no docker token", "curl/7.68.0", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Parse(tt.ua)
			if tt.want == "" {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestBlacklist(t *testing.T) {
	b, err := NewBlacklist("<1.6.0")
	require.NoError(t, err)

	assert.True(t, b.Matches("docker/1.5.0 go/1.4.2"))
	assert.False(t, b.Matches("docker/1.6.0 go/1.4.2"))
	assert.False(t, b.Matches("docker/20.10.7 go/go1.13.15"))

	// Unidentifiable clients fail open.
	assert.False(t, b.Matches("containerd/1.6.8"))
	assert.False(t, b.Matches(""))
}

func TestBlacklistRange(t *testing.T) {
	b, err := NewBlacklist(">=1.12.0 <1.13.0")
	require.NoError(t, err)

	assert.True(t, b.Matches("docker/1.12.6 go/1.6.4"))
	assert.False(t, b.Matches("docker/1.13.1 go/1.7.5"))
	assert.False(t, b.Matches("docker/1.11.2 go/1.5.4"))
}

func TestBlacklistEmpty(t *testing.T) {
	b, err := NewBlacklist("")
	require.NoError(t, err)
	assert.False(t, b.Matches("docker/1.5.0"))
}

func TestBlacklistInvalidConstraint(t *testing.T) {
	_, err := NewBlacklist("not a constraint")
	assert.Error(t, err)
}
