package packet

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimage-tools/imgxfer/internal/model"
)

func writeFolder(t *testing.T, files map[string]string) string {
	t.Helper()
	folder := t.TempDir()
	for name, content := range files {
		path := filepath.Join(folder, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return folder
}

func packetFiles() map[string]string {
	return map[string]string{
		model.DocumentFileName: "<OME></OME>",
		"run1/a.tiff":          "pixels a",
		"run1/deep/b.tiff":     "pixels b",
	}
}

func TestPackExtractRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatTar, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			folder := writeFolder(t, packetFiles())
			target := filepath.Join(t.TempDir(), "pack."+string(format))

			require.NoError(t, Pack(folder, target, format))

			dest := filepath.Join(t.TempDir(), "out")
			require.NoError(t, Extract(target, dest))
			for name, content := range packetFiles() {
				data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
				require.NoError(t, err)
				assert.Equal(t, content, string(data))
			}
		})
	}
}

func TestPackRejectsUnknownFormat(t *testing.T) {
	folder := writeFolder(t, packetFiles())
	err := Pack(folder, filepath.Join(t.TempDir(), "pack.rar"), Format("rar"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.gz")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))
	err := Extract(path, t.TempDir())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractRejectsArchiveWithoutDocument(t *testing.T) {
	folder := writeFolder(t, map[string]string{"run1/a.tiff": "pixels"})

	for _, format := range []Format{FormatTar, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			target := filepath.Join(t.TempDir(), "pack."+string(format))
			require.NoError(t, Pack(folder, target, format))

			dest := filepath.Join(t.TempDir(), "out")
			require.ErrorIs(t, Extract(target, dest), ErrNotTransferPacket)
			assert.NoFileExists(t, filepath.Join(dest, "run1", "a.tiff"))
		})
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	target := filepath.Join(t.TempDir(), "evil.tar")
	f, err := os.Create(target)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	for _, name := range []string{model.DocumentFileName, "../escape.txt"} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: 4, Typeflag: tar.TypeReg,
		}))
		_, err = tw.Write([]byte("data"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	parent := t.TempDir()
	err = Extract(target, filepath.Join(parent, "out"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(parent, "escape.txt"))
}

func TestExtractZipRejectsPathTraversal(t *testing.T) {
	target := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(target)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{model.DocumentFileName, "../escape.txt"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("data"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	err = Extract(target, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid packet entry")
}

func TestExtractRejectsNonArchiveTar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.tar")
	require.NoError(t, os.WriteFile(path, []byte("this is not a tarball"), 0o644))
	err := Extract(path, t.TempDir())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.tar")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	d, err := Checksum(path)
	require.NoError(t, err)
	// md5("hello")
	assert.Equal(t, "md5:5d41402abc4b2a76b9719d911017c592", d.String())
}

func TestChecksumMissingFile(t *testing.T) {
	_, err := Checksum(filepath.Join(t.TempDir(), "absent.tar"))
	require.Error(t, err)
}

func TestLoadDocument(t *testing.T) {
	folder := writeFolder(t, map[string]string{
		model.DocumentFileName: `<OME><Dataset ID="Dataset:10" Name="run one"/></OME>`,
	})
	doc, err := LoadDocument(folder)
	require.NoError(t, err)
	require.Len(t, doc.Datasets, 1)
	assert.Equal(t, "Dataset:10", doc.Datasets[0].ID)
}

func TestLoadDocumentMissing(t *testing.T) {
	_, err := LoadDocument(t.TempDir())
	require.Error(t, err)
}
