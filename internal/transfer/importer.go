package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bioimage-tools/imgxfer/internal/remote"
)

// ImportFiles imports every path in importPaths, one at a time, and
// discovers the destination image ids created from each. The returned map
// is keyed by the absolute import path, relative-root marker included.
//
// Imports run strictly sequentially: destination-id discovery reads state
// the prior import has to have fully registered server-side. An import
// failure aborts the whole unpack; nothing is retried or rolled back.
func ImportFiles(ctx context.Context, ses remote.Session, folder string, importPaths []string, opts remote.ImportOptions) (map[string][]int64, error) {
	absFolder, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving working folder: %w", err)
	}

	destIDs := make(map[string][]int64, len(importPaths))
	for _, p := range importPaths {
		importPath := absFolder + clientPathRootMarker + strings.TrimPrefix(p, "/")
		logger.InfoContext(ctx, "importing", "path", importPath)
		if err := ses.Import(ctx, importPath, opts); err != nil {
			return nil, fmt.Errorf("importing %s: %w", importPath, err)
		}
		ids, err := discoverImportedImages(ctx, ses, importPath)
		if err != nil {
			return nil, err
		}
		destIDs[importPath] = ids
	}
	return destIDs, nil
}

// discoverImportedImages queries the destination for images whose backing
// file's client path starts with importPath, excluding images already
// carrying the completion marker of a prior run.
func discoverImportedImages(ctx context.Context, ses remote.Session, importPath string) ([]int64, error) {
	ids, err := ses.ImageIDsByClientPath(ctx, strings.Trim(importPath, "/"))
	if err != nil {
		return nil, fmt.Errorf("querying images for %s: %w", importPath, err)
	}

	seen := make(map[int64]struct{}, len(ids))
	fresh := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		marked, err := carriesMarker(ctx, ses, id)
		if err != nil {
			return nil, err
		}
		if !marked {
			fresh = append(fresh, id)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i] < fresh[j] })
	return fresh, nil
}

func carriesMarker(ctx context.Context, ses remote.Session, imageID int64) (bool, error) {
	namespaces, err := ses.AnnotationNamespaces(ctx, imageID)
	if err != nil {
		return false, fmt.Errorf("inspecting annotations of image %d: %w", imageID, err)
	}
	for _, ns := range namespaces {
		if ns == MarkerNamespace {
			return true, nil
		}
	}
	return false, nil
}
