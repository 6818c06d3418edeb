// Package transfer implements the pack and unpack pipelines and the
// cross-instance identity reconciliation between them. Everything here is
// strictly sequential; the remote session is exclusively owned by one
// invocation and all accumulator state is local to each stage.
package transfer

import "log/slog"

const (
	// PixelImagesDir is the sentinel path component under which exported
	// image pixel data is written.
	PixelImagesDir = "pixel_images"

	// MockFolderSuffix is the sentinel suffix carried by placeholder
	// paths that stand in for multi-file acquisition folders. It is
	// stripped before a path is imported.
	MockFolderSuffix = "mock_folder"

	// MarkerNamespace is the reserved annotation namespace that marks a
	// destination image as produced by a completed run of this tool.
	// Images carrying it are excluded from destination-id discovery so
	// that a re-run of unpack never counts them twice.
	MarkerNamespace = "bioimage-tools.org/imgxfer"

	// clientPathRootMarker separates the local working folder from the
	// archive-relative remainder inside an absolute import path. The
	// server records the whole path; reconciliation only compares the
	// remainder after the marker.
	clientPathRootMarker = "/./"

	// workingFolderSuffix names the working folder created next to the
	// packed archive.
	workingFolderSuffix = "_folder"
)

var logger = slog.With(slog.String("realm", "transfer"))
