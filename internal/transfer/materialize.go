package transfer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bioimage-tools/imgxfer/internal/packet"
	"github.com/bioimage-tools/imgxfer/internal/remote"
)

// MaterializeFiles fetches every object referenced by the path map into
// folder, mirroring the archive layout. Each distinct object is fetched
// exactly once even when it appears under several paths; images sharing
// an acquisition file set with an already-downloaded image are marked as
// downloaded without another fetch.
func MaterializeFiles(ctx context.Context, ses remote.Session, paths map[string][]remote.ObjectRef, folder string) error {
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	downloaded := make(map[remote.ObjectRef]struct{})
	for _, archivePath := range keys {
		for _, ref := range paths[archivePath] {
			if _, ok := downloaded[ref]; ok {
				continue
			}
			if err := materializeOne(ctx, ses, ref, archivePath, folder, downloaded); err != nil {
				return err
			}
		}
	}
	return nil
}

func materializeOne(ctx context.Context, ses remote.Session, ref remote.ObjectRef, archivePath, folder string, downloaded map[remote.ObjectRef]struct{}) error {
	switch ref.Kind {
	case "Image":
		relDir := path.Dir(archivePath)
		subfolder := filepath.Join(folder, filepath.FromSlash(relDir))
		if err := os.MkdirAll(subfolder, packet.DirPerm); err != nil {
			return fmt.Errorf("creating %s: %w", subfolder, err)
		}
		if relDir == PixelImagesDir {
			target := filepath.Join(subfolder, fmt.Sprintf("%d.tiff", ref.ID))
			logger.DebugContext(ctx, "exporting image", "image", ref.ID, "path", target)
			if err := ses.ExportImage(ctx, ref.ID, target); err != nil {
				return fmt.Errorf("exporting %s: %w", ref, err)
			}
			downloaded[ref] = struct{}{}
			return nil
		}
		logger.DebugContext(ctx, "downloading image files", "image", ref.ID, "dir", subfolder)
		if err := ses.DownloadFile(ctx, ref, subfolder); err != nil {
			return fmt.Errorf("downloading %s: %w", ref, err)
		}
		downloaded[ref] = struct{}{}
		siblings, err := ses.FilesetImageIDs(ctx, ref.ID)
		if err != nil {
			return fmt.Errorf("listing fileset images for %s: %w", ref, err)
		}
		for _, id := range siblings {
			downloaded[remote.ObjectRef{Kind: "Image", ID: id}] = struct{}{}
		}
		return nil
	case "Annotation":
		subfolder := filepath.Join(folder, filepath.FromSlash(archivePath))
		if err := os.MkdirAll(filepath.Dir(subfolder), packet.DirPerm); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(subfolder), err)
		}
		logger.DebugContext(ctx, "downloading annotation file", "annotation", ref.ID, "dir", subfolder)
		if err := ses.DownloadFile(ctx, ref, subfolder); err != nil {
			return fmt.Errorf("downloading %s: %w", ref, err)
		}
		downloaded[ref] = struct{}{}
		return nil
	default:
		return fmt.Errorf("cannot materialize object of kind %q", ref.Kind)
	}
}
