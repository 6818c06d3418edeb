package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bioimage-tools/imgxfer/internal/packet"
	"github.com/bioimage-tools/imgxfer/internal/remote"
)

// UnpackOptions parameterizes one unpack invocation.
type UnpackOptions struct {
	// Input is the packet file, or an already-extracted folder when
	// FromFolder is set.
	Input string
	// FromFolder treats Input as a pre-extracted working folder; the
	// packet checksum is then reported as not computed.
	FromFolder bool
	// Output relocates extraction. Empty means a folder named after
	// the packet next to it.
	Output string
	// InPlace requests in-place imports.
	InPlace bool
	// Skip names one import stage to skip, or is empty.
	Skip string
	// Fields is the resolved provenance field set honored at rebuild.
	Fields []Field
}

// UnpackResult reports what one unpack invocation did.
type UnpackResult struct {
	// Folder is the working folder the packet was read from.
	Folder string
	// Checksum is the packet checksum, or the not-computed marker.
	Checksum string
	// ImageMap is the reconciled "Image:<source-id>" to destination-id
	// mapping.
	ImageMap map[string]int64
	// Pairings is the per-path reconciliation detail, silently skipped
	// paths included.
	Pairings []Pairing
}

// Unpack sequences extraction, placeholder extraction, import, identity
// reconciliation and graph rebuilding. There is no rollback: on failure
// the working folder and any already-imported destination objects stay in
// place, and a re-run is guarded by the import-marker idempotency filter.
func Unpack(ctx context.Context, ses remote.Session, rebuilder remote.GraphRebuilder, opts UnpackOptions) (*UnpackResult, error) {
	var (
		folder   string
		checksum string
	)
	if opts.FromFolder {
		folder = opts.Input
		checksum = packet.ChecksumNotComputed
	} else {
		digest, err := packet.Checksum(opts.Input)
		if err != nil {
			return nil, err
		}
		checksum = digest.String()
		folder = opts.Output
		if folder == "" {
			base := filepath.Base(opts.Input)
			folder = filepath.Join(filepath.Dir(opts.Input), strings.TrimSuffix(base, filepath.Ext(base)))
		}
		logger.InfoContext(ctx, "extracting packet", "packet", opts.Input, "folder", folder)
		if err := packet.Extract(opts.Input, folder); err != nil {
			return nil, err
		}
	}

	doc, err := packet.LoadDocument(folder)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "generating image mapping and import file list")
	extracted, err := ExtractPlaceholders(doc)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "importing data as orphans", "paths", len(extracted.ImportPaths))
	destIDs, err := ImportFiles(ctx, ses, folder, extracted.ImportPaths, remote.ImportOptions{
		InPlace: opts.InPlace,
		Skip:    opts.Skip,
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "matching source and destination images")
	imageMap := ReconcileIdentities(extracted.SourceIDs, destIDs)
	pairings := ReconcilePairings(extracted.SourceIDs, destIDs)

	logger.InfoContext(ctx, "creating and linking objects", "images", len(imageMap))
	if err := rebuilder.Populate(ctx, ses, extracted.Document, imageMap, remote.PopulateOptions{
		PacketChecksum: checksum,
		Folder:         folder,
		Fields:         FieldStrings(opts.Fields),
	}); err != nil {
		return nil, fmt.Errorf("rebuilding object graph: %w", err)
	}

	return &UnpackResult{
		Folder:   folder,
		Checksum: checksum,
		ImageMap: imageMap,
		Pairings: pairings,
	}, nil
}
