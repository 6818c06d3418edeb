// Package packet implements transfer packet I/O: checksumming, packing a
// working folder into a tar or zip archive, extracting a packet back into
// a working folder and loading the metadata document from it.
package packet

import (
	"archive/tar"
	"archive/zip"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlepage/go-tarfs"
	"github.com/opencontainers/go-digest"

	"github.com/bioimage-tools/imgxfer/internal/model"
)

// Format selects the archive container written by Pack.
type Format string

const (
	FormatTar Format = "tar"
	FormatZip Format = "zip"
)

// DirPerm is the directory permission policy used for every folder
// created during packing and extraction.
const DirPerm = 0o755

// checksumBufSize is the read buffer used when hashing a packet.
const checksumBufSize = 64 * 1024

// ChecksumNotComputed is reported instead of a digest when unpack starts
// from an already-extracted folder.
const ChecksumNotComputed = "imported from folder"

// ErrUnsupportedFormat is returned for archives that are neither a
// recognized tar nor zip container.
var ErrUnsupportedFormat = errors.New("file is not a zip or tar file")

// ErrNotTransferPacket is returned when an archive does not carry a
// metadata document at its root.
var ErrNotTransferPacket = fmt.Errorf("archive does not contain %s", model.DocumentFileName)

// Checksum hashes the packet at path.
func Checksum(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening packet for checksum: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	h := md5.New()
	buf := make([]byte, checksumBufSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing packet: %w", err)
	}
	return digest.NewDigestFromEncoded("md5", hex.EncodeToString(h.Sum(nil))), nil
}

// Pack archives the fully materialized working folder into target. The
// target file is only created once every file below folder has been
// written, so a failed materialization never leaves a partial archive.
func Pack(folder, target string, format Format) (err error) {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", target, err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	switch format {
	case FormatTar:
		return packTar(folder, out)
	case FormatZip:
		return packZip(folder, out)
	default:
		return ErrUnsupportedFormat
	}
}

func packTar(folder string, out io.Writer) (err error) {
	tw := tar.NewWriter(out)
	defer func() {
		err = errors.Join(err, tw.Close())
	}()
	return walkFolder(folder, func(rel string, info fs.FileInfo, open func() (io.ReadCloser, error)) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyInto(tw, open)
	})
}

func packZip(folder string, out io.Writer) (err error) {
	zw := zip.NewWriter(out)
	defer func() {
		err = errors.Join(err, zw.Close())
	}()
	return walkFolder(folder, func(rel string, info fs.FileInfo, open func() (io.ReadCloser, error)) error {
		if info.IsDir() {
			return nil
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = rel
		header.Method = zip.Deflate
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		return copyInto(w, open)
	})
}

func walkFolder(folder string, fn func(rel string, info fs.FileInfo, open func() (io.ReadCloser, error)) error) error {
	return filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info, func() (io.ReadCloser, error) {
			return os.Open(path)
		})
	})
}

func copyInto(w io.Writer, open func() (io.ReadCloser, error)) (err error) {
	r, err := open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()
	_, err = io.Copy(w, r)
	return err
}

// Extract unpacks the packet at path into dest, creating dest if needed.
// The container is recognized by extension; anything else fails with
// ErrUnsupportedFormat before any file is written. A tar packet is
// pre-flighted against the packet layout (metadata document at the root)
// before extraction starts.
func Extract(path, dest string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return extractZip(path, dest)
	case ".tar":
		return extractTar(path, dest)
	default:
		return ErrUnsupportedFormat
	}
}

func extractTar(path, dest string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening packet: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	// Pre-flight: the packet must carry the metadata document at its
	// root. tarfs indexes the archive without writing anything.
	tfs, err := tarfs.New(f)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if _, err := fs.Stat(tfs, model.DocumentFileName); err != nil {
		return ErrNotTransferPacket
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding packet: %w", err)
	}

	reader := tar.NewReader(f)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading packet entry: %w", err)
		}
		if strings.Contains(header.Name, "..") {
			return fmt.Errorf("invalid packet entry, contains %q: %s", "..", header.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(header.Name))
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, DirPerm); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, reader); err != nil {
				return fmt.Errorf("writing %s: %w", header.Name, err)
			}
		}
	}
	return nil
}

func extractZip(path, dest string) (err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	defer func() {
		err = errors.Join(err, zr.Close())
	}()

	if _, err := fs.Stat(zr, model.DocumentFileName); err != nil {
		return ErrNotTransferPacket
	}

	for _, entry := range zr.File {
		if strings.Contains(entry.Name, "..") {
			return fmt.Errorf("invalid packet entry, contains %q: %s", "..", entry.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(entry.Name))
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, DirPerm); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
			continue
		}
		if err := func() (err error) {
			r, err := entry.Open()
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, r.Close())
			}()
			return writeEntry(target, r)
		}(); err != nil {
			return fmt.Errorf("writing %s: %w", entry.Name, err)
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), DirPerm); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	_, err = io.Copy(f, r)
	return err
}

// LoadDocument parses the metadata document from an extracted working
// folder.
func LoadDocument(folder string) (*model.Document, error) {
	data, err := os.ReadFile(filepath.Join(folder, model.DocumentFileName))
	if err != nil {
		return nil, fmt.Errorf("loading metadata document: %w", err)
	}
	return model.Decode(data)
}
