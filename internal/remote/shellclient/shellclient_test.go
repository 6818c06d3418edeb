package shellclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimage-tools/imgxfer/internal/config"
)

func TestDialerFailsWithoutClientBinary(t *testing.T) {
	dial := Dialer(&config.Config{Server: config.Server{Binary: "definitely-not-installed-client"}})
	_, err := dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-installed-client")
}

func TestConnArgs(t *testing.T) {
	tests := []struct {
		name     string
		session  Session
		expected []string
	}{
		{
			name:     "no connection settings",
			session:  Session{},
			expected: nil,
		},
		{
			name:     "full connection settings",
			session:  Session{host: "repo.example.org", port: 4064, user: "importer"},
			expected: []string{"-s", "repo.example.org", "-p", "4064", "-u", "importer"},
		},
		{
			name:     "host only",
			session:  Session{host: "repo.example.org"},
			expected: []string{"-s", "repo.example.org"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.session.connArgs())
		})
	}
}

func TestSessionIdentity(t *testing.T) {
	s := &Session{host: "repo.example.org"}
	assert.Equal(t, "repo.example.org", s.Hostname())
	// The shell client has no version query; the gate accepts "".
	assert.Empty(t, s.ServerVersion())
	assert.NoError(t, s.Close())
}
