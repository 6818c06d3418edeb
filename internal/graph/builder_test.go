package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
	"github.com/bioimage-tools/imgxfer/internal/remote"
	"github.com/bioimage-tools/imgxfer/internal/transfer"
)

type buildSession struct {
	remote.UnimplementedSession

	names    map[string]string
	children map[string][]objref.Ref
	filesets map[int64][]string
}

func (s *buildSession) ObjectName(_ context.Context, ref objref.Ref) (string, error) {
	return s.names[ref.String()], nil
}

func (s *buildSession) ChildRefs(_ context.Context, ref objref.Ref) ([]objref.Ref, error) {
	return s.children[ref.String()], nil
}

func (s *buildSession) FilesetEntries(_ context.Context, imageID int64) ([]string, error) {
	return s.filesets[imageID], nil
}

func (s *buildSession) CurrentUser(context.Context) (string, string, error) {
	return "alice", "lab-a", nil
}

func (s *buildSession) DatabaseUUID(context.Context) (string, error) {
	return "db-uuid-1234", nil
}

func projectSession() *buildSession {
	return &buildSession{
		names: map[string]string{
			"Project:1":  "study",
			"Dataset:10": "run one",
			"Image:5":    "a",
			"Image:7":    "b",
			"Image:9":    "derived",
		},
		children: map[string][]objref.Ref{
			"Project:1": {{Kind: objref.KindDataset, ID: 10}},
			"Dataset:10": {
				{Kind: objref.KindImage, ID: 5},
				{Kind: objref.KindImage, ID: 7},
				{Kind: objref.KindImage, ID: 9},
			},
		},
		filesets: map[int64][]string{
			5: {"run1/a_z0.tiff", "run1/a_z1.tiff"},
			7: {"run2/b.tiff"},
			// Image 9 has no file set and must be exported.
		},
	}
}

func TestBuilderBuildsProjectHierarchy(t *testing.T) {
	b := &Builder{Now: func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }}
	doc, paths, err := b.Build(context.Background(), projectSession(), objref.Ref{Kind: objref.KindProject, ID: 1}, remote.BuildOptions{})
	require.NoError(t, err)

	require.Len(t, doc.Projects, 1)
	assert.Equal(t, "study", doc.Projects[0].Name)
	require.Len(t, doc.Datasets, 1)
	assert.Equal(t, []string{"Image:5", "Image:7", "Image:9"}, refIDs(doc.Datasets[0].ImageRefs))
	require.Len(t, doc.Images, 3)

	assert.Equal(t, map[string][]remote.ObjectRef{
		"run1/" + transfer.MockFolderSuffix: {{Kind: "Image", ID: 5}},
		"run2/b.tiff":                       {{Kind: "Image", ID: 7}},
		transfer.PixelImagesDir + "/9.tiff": {{Kind: "Image", ID: 9}},
	}, paths)
}

func TestBuilderEmitsOnePlaceholderPerImage(t *testing.T) {
	b := &Builder{}
	doc, _, err := b.Build(context.Background(), projectSession(), objref.Ref{Kind: objref.KindProject, ID: 1}, remote.BuildOptions{})
	require.NoError(t, err)

	placeholders := doc.StructuredAnnotations.CommentAnnotations
	require.Len(t, placeholders, 3)
	byNamespace := make(map[string]string, len(placeholders))
	for _, p := range placeholders {
		byNamespace[p.Namespace] = p.Value
	}
	assert.Equal(t, map[string]string{
		"Image:5": "run1/" + transfer.MockFolderSuffix,
		"Image:7": "run2/b.tiff",
		"Image:9": transfer.PixelImagesDir + "/9.tiff",
	}, byNamespace)

	// Placeholder ids are negative and unique.
	seen := make(map[string]struct{})
	for _, p := range placeholders {
		assert.Contains(t, p.ID, ":-")
		_, dup := seen[p.ID]
		assert.False(t, dup, "duplicate id %s", p.ID)
		seen[p.ID] = struct{}{}
	}

	// Each placeholder is referenced by its image, so the round trip
	// through placeholder extraction yields a clean document.
	extracted, err := transfer.ExtractPlaceholders(doc)
	require.NoError(t, err)
	assert.Empty(t, extracted.Document.StructuredAnnotations.CommentAnnotations)
	assert.Empty(t, extracted.Document.DanglingAnnotationRefs())
	assert.Equal(t, []string{transfer.PixelImagesDir + "/9.tiff", "run1/", "run2/b.tiff"}, extracted.ImportPaths)
}

func TestBuilderProvenanceFields(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	b := &Builder{Now: func() time.Time { return now }}
	doc, _, err := b.Build(context.Background(), projectSession(), objref.Ref{Kind: objref.KindImage, ID: 7}, remote.BuildOptions{
		Hostname: "source.example.org",
		Fields:   []string{"img_id", "timestamp", "md5", "hostname", "db_id", "orig_user", "orig_group", "software"},
	})
	require.NoError(t, err)

	require.Len(t, doc.StructuredAnnotations.MapAnnotations, 1)
	prov := doc.StructuredAnnotations.MapAnnotations[0]
	assert.Equal(t, transfer.MarkerNamespace, prov.Namespace)

	values := make(map[string]string, len(prov.Values))
	for _, p := range prov.Values {
		values[p.Key] = p.Value
	}
	assert.Equal(t, "Image:7", values["img_id"])
	assert.Equal(t, "2026-08-28T12:00:00Z", values["timestamp"])
	assert.Equal(t, "TBC", values["md5"])
	assert.Equal(t, "source.example.org", values["hostname"])
	assert.Equal(t, "db-uuid-1234", values["db_id"])
	assert.Equal(t, "alice", values["orig_user"])
	assert.Equal(t, "lab-a", values["orig_group"])
	assert.Equal(t, "imgxfer", values["software"])
}

func TestBuilderSkipsProvenanceWithoutFields(t *testing.T) {
	b := &Builder{}
	doc, _, err := b.Build(context.Background(), projectSession(), objref.Ref{Kind: objref.KindImage, ID: 7}, remote.BuildOptions{})
	require.NoError(t, err)
	assert.Empty(t, doc.StructuredAnnotations.MapAnnotations)
}

func TestBuilderDeduplicatesSharedImages(t *testing.T) {
	ses := projectSession()
	ses.names["Dataset:11"] = "run two"
	ses.children["Project:1"] = append(ses.children["Project:1"], objref.Ref{Kind: objref.KindDataset, ID: 11})
	// Image 7 sits in both datasets.
	ses.children["Dataset:11"] = []objref.Ref{{Kind: objref.KindImage, ID: 7}}

	b := &Builder{}
	doc, paths, err := b.Build(context.Background(), ses, objref.Ref{Kind: objref.KindProject, ID: 1}, remote.BuildOptions{})
	require.NoError(t, err)

	assert.Len(t, doc.Images, 3)
	assert.Len(t, paths["run2/b.tiff"], 1)
	require.Len(t, doc.Datasets, 2)
	assert.Equal(t, []string{"Image:7"}, refIDs(doc.Datasets[1].ImageRefs))
}

func TestBuilderRejectsUnknownKind(t *testing.T) {
	b := &Builder{}
	_, _, err := b.Build(context.Background(), projectSession(), objref.Ref{Kind: objref.Kind("Well"), ID: 1}, remote.BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `kind "Well"`)
}

func TestSubmissionRows(t *testing.T) {
	b := &Builder{}
	ses := projectSession()
	doc, paths, err := b.Build(context.Background(), ses, objref.Ref{Kind: objref.KindProject, ID: 1}, remote.BuildOptions{Compliance: true})
	require.NoError(t, err)

	rows, err := b.SubmissionRows(context.Background(), ses, doc, paths)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"path", "object", "name"}, rows[0])
	assert.Equal(t, []string{transfer.PixelImagesDir + "/9.tiff", "Image:9", "derived"}, rows[1])
	assert.Equal(t, []string{"run1/" + transfer.MockFolderSuffix, "Image:5", "a"}, rows[2])
	assert.Equal(t, []string{"run2/b.tiff", "Image:7", "b"}, rows[3])
}

func refIDs(refs []model.Ref) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
