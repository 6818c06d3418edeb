// Package unpack implements the `imgxfer unpack` subcommand.
package unpack

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bioimage-tools/imgxfer/internal/config"
	"github.com/bioimage-tools/imgxfer/internal/flags/enum"
	"github.com/bioimage-tools/imgxfer/internal/flags/fieldset"
	"github.com/bioimage-tools/imgxfer/internal/graph"
	"github.com/bioimage-tools/imgxfer/internal/remote"
	"github.com/bioimage-tools/imgxfer/internal/remote/shellclient"
	"github.com/bioimage-tools/imgxfer/internal/transfer"
)

const (
	FlagInPlace  = "ln_s_import"
	FlagFolder   = "folder"
	FlagOutput   = "output"
	FlagSkip     = "skip"
	FlagMetadata = "metadata"

	skipNone = "none"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpack {filepath}",
		Short: "Unpack a transfer packet into a server hierarchy",
		Long: `Unpack an existing transfer packet, import its images as orphans and
use the metadata document contained in the packet to re-create links,
annotations and ROIs against the identifiers the destination server
assigned.`,
		Example: `  imgxfer unpack transfer_pack.zip
  imgxfer unpack --output /home/user/optional_folder --ln_s_import pack.tar
  imgxfer unpack --folder /home/user/unpacked_folder/ --skip upgrade
  imgxfer unpack pack.tar --metadata db_id,orig_user,hostname`,
		Args:              cobra.ExactArgs(1),
		RunE:              Run,
		DisableAutoGenTag: true,
	}

	cmd.Flags().Bool(FlagInPlace, false, "use in-place import")
	cmd.Flags().Bool(FlagFolder, false, "pass a path to a previously-unpacked folder rather than a packet")
	cmd.Flags().String(FlagOutput, "", "output directory where the packet will be extracted")
	enum.Var(cmd.Flags(), FlagSkip, []string{skipNone, "all", "checksum", "thumbnails", "minmax", "upgrade"},
		"import stage to skip")
	fieldset.Var(cmd.Flags(), FlagMetadata, []string{transfer.AliasAll}, transfer.FieldTokens(),
		"provenance metadata fields honored from the packet")
	return cmd
}

func Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)

	inPlace, err := cmd.Flags().GetBool(FlagInPlace)
	if err != nil {
		return err
	}
	fromFolder, err := cmd.Flags().GetBool(FlagFolder)
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString(FlagOutput)
	if err != nil {
		return err
	}
	skip, err := enum.Get(cmd.Flags(), FlagSkip)
	if err != nil {
		return err
	}
	if skip == skipNone {
		skip = ""
	}

	tokens, err := fieldset.Get(cmd.Flags(), FlagMetadata)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed(FlagMetadata) && len(cfg.Metadata) > 0 {
		tokens = cfg.Metadata
	}
	fields, err := transfer.ResolveFields(tokens)
	if err != nil {
		return err
	}

	var result *transfer.UnpackResult
	err = remote.WithSession(ctx, shellclient.Dialer(cfg), func(ctx context.Context, ses remote.Session) error {
		result, err = transfer.Unpack(ctx, ses, &graph.Rebuilder{}, transfer.UnpackOptions{
			Input:      args[0],
			FromFolder: fromFolder,
			Output:     output,
			InPlace:    inPlace,
			Skip:       skip,
			Fields:     fields,
		})
		return err
	})
	if err != nil {
		return err
	}

	renderSummary(cmd, result)
	return nil
}

// renderSummary prints the per-path reconciliation outcome. On a terminal
// the table is boxed; otherwise it degrades to tab-separated output.
func renderSummary(cmd *cobra.Command, result *transfer.UnpackResult) {
	w := table.NewWriter()
	w.AppendHeader(table.Row{"path", "source ids", "destination ids", "status"})
	for _, p := range result.Pairings {
		status := "paired"
		if !p.Paired {
			status = "skipped"
		}
		w.AppendRow(table.Row{p.Path, formatIDs(p.Source), formatIDs(p.Dest), status})
	}
	w.AppendFooter(table.Row{"checksum", result.Checksum, "", fmt.Sprintf("%d images", len(result.ImageMap))})

	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(out, w.Render())
		return
	}
	fmt.Fprintln(out, w.RenderTSV())
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, " ")
}
