package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/packet"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
	"github.com/bioimage-tools/imgxfer/internal/remote"
)

type packSession struct {
	materializeSession

	resolved []objref.Ref
}

func (s *packSession) ResolveObject(_ context.Context, ref objref.Ref) error {
	s.resolved = append(s.resolved, ref)
	return nil
}

func (s *packSession) Hostname() string {
	return "source.example.org"
}

type fakeBuilder struct {
	doc     *model.Document
	paths   map[string][]remote.ObjectRef
	rows    [][]string
	gotOpts remote.BuildOptions
}

func (b *fakeBuilder) Build(_ context.Context, _ remote.Session, _ objref.Ref, opts remote.BuildOptions) (*model.Document, map[string][]remote.ObjectRef, error) {
	b.gotOpts = opts
	return b.doc, b.paths, nil
}

func (b *fakeBuilder) SubmissionRows(context.Context, remote.Session, *model.Document, map[string][]remote.ObjectRef) ([][]string, error) {
	return b.rows, nil
}

func datasetDocument() *model.Document {
	return &model.Document{
		Datasets: []model.Dataset{
			{ID: "Dataset:10", Name: "run one", ImageRefs: []model.Ref{{ID: "Image:5"}}},
		},
		Images: []model.Image{{ID: "Image:5", Name: "a"}},
	}
}

func TestPackCreatesArchiveAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "pack.tar")
	ses := &packSession{}
	builder := &fakeBuilder{
		doc: datasetDocument(),
		paths: map[string][]remote.ObjectRef{
			PixelImagesDir + "/5.tiff": {{Kind: "Image", ID: 5}},
		},
	}

	err := Pack(context.Background(), ses, builder, PackOptions{
		Ref:    objref.Ref{Kind: objref.KindDataset, ID: 10},
		Target: target,
		Format: packet.FormatTar,
		Fields: []Field{FieldImgID},
	})
	require.NoError(t, err)

	assert.Equal(t, []objref.Ref{{Kind: objref.KindDataset, ID: 10}}, ses.resolved)
	assert.Equal(t, "source.example.org", builder.gotOpts.Hostname)
	assert.Equal(t, []string{"img_id"}, builder.gotOpts.Fields)

	assert.FileExists(t, target)
	assert.NoDirExists(t, target+workingFolderSuffix)

	// The archive is a readable packet carrying the metadata document.
	extracted := filepath.Join(dir, "extracted")
	require.NoError(t, packet.Extract(target, extracted))
	doc, err := packet.LoadDocument(extracted)
	require.NoError(t, err)
	require.Len(t, doc.Datasets, 1)
	assert.Equal(t, "Dataset:10", doc.Datasets[0].ID)
	assert.FileExists(t, filepath.Join(extracted, PixelImagesDir, "5.tiff"))
}

func TestPackComplianceWritesManifestInsteadOfDocument(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "pack.zip")
	ses := &packSession{}
	builder := &fakeBuilder{
		doc: datasetDocument(),
		paths: map[string][]remote.ObjectRef{
			PixelImagesDir + "/5.tiff": {{Kind: "Image", ID: 5}},
		},
		rows: [][]string{
			{"path", "object", "name"},
			{PixelImagesDir + "/5.tiff", "Image:5", "a"},
		},
	}

	err := Pack(context.Background(), ses, builder, PackOptions{
		Ref:        objref.Ref{Kind: objref.KindProject, ID: 1},
		Target:     target,
		Format:     packet.FormatZip,
		Compliance: true,
	})
	require.NoError(t, err)
	assert.True(t, builder.gotOpts.Compliance)
	assert.NoDirExists(t, target+workingFolderSuffix)

	// Compliance packets carry the manifest but no metadata document, so
	// the extraction pre-flight refuses them just like any foreign zip.
	err = packet.Extract(target, filepath.Join(dir, "extracted"))
	require.ErrorIs(t, err, packet.ErrNotTransferPacket)
}

func TestPackComplianceRejectsLeafTargets(t *testing.T) {
	for _, kind := range []objref.Kind{objref.KindImage, objref.KindPlate, objref.KindScreen} {
		t.Run(string(kind), func(t *testing.T) {
			err := Pack(context.Background(), &packSession{}, &fakeBuilder{}, PackOptions{
				Ref:        objref.Ref{Kind: kind, ID: 1},
				Target:     filepath.Join(t.TempDir(), "pack.tar"),
				Format:     packet.FormatTar,
				Compliance: true,
			})
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
		})
	}
}

func TestPackPropagatesResolveFailure(t *testing.T) {
	err := Pack(context.Background(), &failingResolveSession{}, &fakeBuilder{}, PackOptions{
		Ref:    objref.Ref{Kind: objref.KindDataset, ID: 404},
		Target: filepath.Join(t.TempDir(), "pack.tar"),
		Format: packet.FormatTar,
	})
	require.ErrorIs(t, err, remote.ErrNotFound)
	assert.Contains(t, err.Error(), "Dataset:404")
}

type failingResolveSession struct {
	remote.UnimplementedSession
}

func (failingResolveSession) ResolveObject(context.Context, objref.Ref) error {
	return remote.ErrNotFound
}

func TestPackComplianceManifestContent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "pack.tar")
	builder := &fakeBuilder{
		doc:   datasetDocument(),
		paths: map[string][]remote.ObjectRef{},
		rows: [][]string{
			{"path", "object", "name"},
			{PixelImagesDir + "/5.tiff", "Image:5", "a"},
		},
	}

	err := Pack(context.Background(), &packSession{}, builder, PackOptions{
		Ref:        objref.Ref{Kind: objref.KindProject, ID: 1},
		Target:     target,
		Format:     packet.FormatTar,
		Compliance: true,
	})
	require.NoError(t, err)

	// Tar stores file contents uncompressed, so the manifest rows are
	// visible in the raw archive bytes.
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), SubmissionFileName)
	assert.Contains(t, string(data), "Image:5")
}
