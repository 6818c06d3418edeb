package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimage-tools/imgxfer/internal/remote"
)

type importSession struct {
	remote.UnimplementedSession

	imported    []string
	importOpts  []remote.ImportOptions
	importErr   error
	idsByPrefix map[string][]int64
	markedIDs   map[int64]bool
}

func (s *importSession) Import(_ context.Context, path string, opts remote.ImportOptions) error {
	s.imported = append(s.imported, path)
	s.importOpts = append(s.importOpts, opts)
	return s.importErr
}

func (s *importSession) ImageIDsByClientPath(_ context.Context, prefix string) ([]int64, error) {
	return s.idsByPrefix[prefix], nil
}

func (s *importSession) AnnotationNamespaces(_ context.Context, imageID int64) ([]string, error) {
	if s.markedIDs[imageID] {
		return []string{"user/notes", MarkerNamespace}, nil
	}
	return []string{"user/notes"}, nil
}

func TestImportFiles(t *testing.T) {
	ses := &importSession{
		idsByPrefix: map[string][]int64{
			"work/./run1":        {103, 101, 103},
			"work/./run2/b.tiff": {205},
		},
		markedIDs: map[int64]bool{},
	}

	destIDs, err := ImportFiles(context.Background(), ses, "/work", []string{"run1/", "run2/b.tiff"}, remote.ImportOptions{Skip: "checksum"})
	require.NoError(t, err)

	// One import per path, in order, with the options passed through.
	assert.Equal(t, []string{"/work/./run1/", "/work/./run2/b.tiff"}, ses.imported)
	require.Len(t, ses.importOpts, 2)
	assert.Equal(t, "checksum", ses.importOpts[0].Skip)

	// Destination ids are de-duplicated and sorted per import path.
	assert.Equal(t, map[string][]int64{
		"/work/./run1/":       {101, 103},
		"/work/./run2/b.tiff": {205},
	}, destIDs)
}

func TestImportFilesSkipsAlreadyMarkedImages(t *testing.T) {
	// Image 101 carries the completion marker from an earlier unpack of
	// the same packet and must not be reconciled again.
	ses := &importSession{
		idsByPrefix: map[string][]int64{
			"work/./run1": {101, 103},
		},
		markedIDs: map[int64]bool{101: true},
	}

	destIDs, err := ImportFiles(context.Background(), ses, "/work", []string{"run1/"}, remote.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string][]int64{"/work/./run1/": {103}}, destIDs)
}

func TestImportFilesAbortsOnImportError(t *testing.T) {
	ses := &importSession{importErr: errors.New("server unavailable")}

	_, err := ImportFiles(context.Background(), ses, "/work", []string{"run1/"}, remote.ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "importing /work/./run1/")
	assert.Len(t, ses.imported, 1)
}
