package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPrefersStampedVersion(t *testing.T) {
	old := BuildVersion
	t.Cleanup(func() { BuildVersion = old })

	BuildVersion = "1.2.3"
	assert.Equal(t, "1.2.3", Get())
}

func TestValidate(t *testing.T) {
	old := BuildVersion
	t.Cleanup(func() { BuildVersion = old })

	BuildVersion = "1.2.3"
	require.NoError(t, Validate())

	BuildVersion = "not-a-version"
	require.Error(t, Validate())
}
