// Package pack implements the `imgxfer pack` subcommand.
package pack

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bioimage-tools/imgxfer/internal/config"
	"github.com/bioimage-tools/imgxfer/internal/flags/fieldset"
	"github.com/bioimage-tools/imgxfer/internal/graph"
	"github.com/bioimage-tools/imgxfer/internal/packet"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
	"github.com/bioimage-tools/imgxfer/internal/remote"
	"github.com/bioimage-tools/imgxfer/internal/remote/shellclient"
	"github.com/bioimage-tools/imgxfer/internal/transfer"
)

const (
	FlagZip      = "zip"
	FlagBarchive = "barchive"
	FlagMetadata = "metadata"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack {object} {filepath}",
		Short: "Create a transfer packet for moving objects between servers",
		Long: `Create a transfer packet for moving objects between image-repository
server instances.

The object syntax is <Type>:<id> with Type one of Image, Dataset,
Project, Plate or Screen; a bare integer is treated as Project:<id>.
A tar file with the contents of the packet is created at the given
path.`,
		Example: `  imgxfer pack Image:123 transfer_pack.tar
  imgxfer pack --zip Image:123 transfer_pack.zip
  imgxfer pack Dataset:1111 /home/user/new_folder/new_pack.tar
  imgxfer pack 999 tarfile.tar  # equivalent to Project:999
  imgxfer pack 1 transfer_pack.tar --metadata img_id,version,db_id`,
		Args:              cobra.ExactArgs(2),
		RunE:              Run,
		DisableAutoGenTag: true,
	}

	cmd.Flags().Bool(FlagZip, false, "pack into a compressed zip file rather than a tarball")
	cmd.Flags().Bool(FlagBarchive, false, "pack into a file compliant with archive submission standards")
	fieldset.Var(cmd.Flags(), FlagMetadata, []string{transfer.AliasAll}, transfer.FieldTokens(),
		"provenance metadata fields saved with the packed images")
	return cmd
}

func Run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)

	ref, err := objref.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid object reference: %w", err)
	}

	zip, err := cmd.Flags().GetBool(FlagZip)
	if err != nil {
		return err
	}
	compliance, err := cmd.Flags().GetBool(FlagBarchive)
	if err != nil {
		return err
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

	format := packet.FormatTar
	if zip {
		format = packet.FormatZip
	}

	return remote.WithSession(ctx, shellclient.Dialer(cfg), func(ctx context.Context, ses remote.Session) error {
		return transfer.Pack(ctx, ses, &graph.Builder{}, transfer.PackOptions{
			Ref:        ref,
			Target:     args[1],
			Format:     format,
			Compliance: compliance,
			Fields:     fields,
		})
	})
}
