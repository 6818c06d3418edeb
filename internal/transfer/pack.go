package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/packet"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
	"github.com/bioimage-tools/imgxfer/internal/remote"
)

// SubmissionFileName is the compliance-mode manifest written instead of
// the metadata document.
const SubmissionFileName = "submission.tsv"

// PackOptions parameterizes one pack invocation.
type PackOptions struct {
	// Ref selects the object to pack.
	Ref objref.Ref
	// Target is the path of the archive file to create.
	Target string
	// Format selects the archive container.
	Format packet.Format
	// Compliance additionally emits the submission manifest and
	// forbids single image, plate and screen targets.
	Compliance bool
	// Fields is the resolved provenance field set.
	Fields []Field
}

// Pack builds the transfer packet for one object: resolve, build the
// metadata model, materialize every referenced file, archive, clean up.
// Every step is a hard dependency on the previous one succeeding; the
// working folder is removed only after the archive has been written.
func Pack(ctx context.Context, ses remote.Session, builder remote.ModelBuilder, opts PackOptions) error {
	if opts.Compliance && opts.Ref.IsLeafOrWellContainer() {
		return &InputError{Reason: "single image, plate or screen cannot be packaged for archive submission"}
	}

	if err := ses.ResolveObject(ctx, opts.Ref); err != nil {
		return fmt.Errorf("resolving %s: %w", opts.Ref, err)
	}

	folder := opts.Target + workingFolderSuffix
	if err := os.MkdirAll(folder, packet.DirPerm); err != nil {
		return fmt.Errorf("creating working folder: %w", err)
	}

	logger.InfoContext(ctx, "building metadata model", "object", opts.Ref.String())
	doc, paths, err := builder.Build(ctx, ses, opts.Ref, remote.BuildOptions{
		Hostname:   ses.Hostname(),
		Compliance: opts.Compliance,
		Fields:     FieldStrings(opts.Fields),
	})
	if err != nil {
		return fmt.Errorf("building metadata model: %w", err)
	}

	if !opts.Compliance {
		data, err := doc.Encode()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(folder, model.DocumentFileName), data, 0o644); err != nil {
			return fmt.Errorf("writing metadata document: %w", err)
		}
	}

	logger.InfoContext(ctx, "copying files", "count", len(paths))
	if err := MaterializeFiles(ctx, ses, paths, folder); err != nil {
		return err
	}

	if opts.Compliance {
		logger.InfoContext(ctx, "writing submission manifest")
		rows, err := builder.SubmissionRows(ctx, ses, doc, paths)
		if err != nil {
			return fmt.Errorf("building submission manifest: %w", err)
		}
		if err := writeSubmissionTSV(filepath.Join(folder, SubmissionFileName), rows); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "creating archive", "format", string(opts.Format), "target", opts.Target)
	if err := packet.Pack(folder, opts.Target, opts.Format); err != nil {
		return err
	}

	logger.InfoContext(ctx, "cleaning up", "folder", folder)
	if err := os.RemoveAll(folder); err != nil {
		return fmt.Errorf("removing working folder: %w", err)
	}
	return nil
}

func writeSubmissionTSV(path string, rows [][]string) (err error) {
	if len(rows) == 0 {
		return errors.New("submission manifest has no rows")
	}
	w := table.NewWriter()
	w.AppendHeader(toRow(rows[0]))
	for _, row := range rows[1:] {
		w.AppendRow(toRow(row))
	}
	if err := os.WriteFile(path, []byte(w.RenderTSV()+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing submission manifest: %w", err)
	}
	return nil
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
