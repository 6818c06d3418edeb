package unpack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimage-tools/imgxfer/internal/transfer"
)

func TestNewRegistersFlags(t *testing.T) {
	cmd := New()
	for _, name := range []string{FlagInPlace, FlagFolder, FlagOutput, FlagSkip, FlagMetadata} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestRequiresOneArgument(t *testing.T) {
	cmd := New()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)
	require.Error(t, cmd.Execute())
}

func TestRejectsUnknownSkipStage(t *testing.T) {
	cmd := New()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--skip", "everything", "pack.tar"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid value")
}

func TestRenderSummary(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := New()
	cmd.SetOut(out)

	renderSummary(cmd, &transfer.UnpackResult{
		Checksum: "md5:abc",
		ImageMap: map[string]int64{"Image:5": 101, "Image:7": 103},
		Pairings: []transfer.Pairing{
			{Path: "run1/", Source: []int64{5, 7}, Dest: []int64{101, 103}, Paired: true},
			{Path: "run2/b.tiff", Source: []int64{9}, Paired: false},
		},
	})

	rendered := out.String()
	assert.Contains(t, rendered, "run1/")
	assert.Contains(t, rendered, "101 103")
	assert.Contains(t, rendered, "skipped")
	assert.Contains(t, rendered, "md5:abc")
	assert.Contains(t, rendered, "2 images")
}

func TestFormatIDs(t *testing.T) {
	assert.Equal(t, "5 7", formatIDs([]int64{5, 7}))
	assert.Empty(t, formatIDs(nil))
}
