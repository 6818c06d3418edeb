// Package cmd assembles the imgxfer command tree.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bioimage-tools/imgxfer/cmd/pack"
	"github.com/bioimage-tools/imgxfer/cmd/unpack"
	"github.com/bioimage-tools/imgxfer/cmd/version"
	"github.com/bioimage-tools/imgxfer/internal/config"
	"github.com/bioimage-tools/imgxfer/internal/flags/log"
)

const ConfigFlag = "config"

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := New().Execute(); err != nil {
		os.Exit(1)
	}
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgxfer [sub-command]",
		Short: "Transfer image-repository objects and annotations between servers",
		Long: `imgxfer moves hierarchies of scientific-image objects (projects,
datasets, images, plates, screens) and their annotations between
image-repository server instances as a self-contained transfer packet.

pack builds the packet from a live object graph; unpack re-imports it on
another server and reconciles the identifiers the destination assigned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: preRunE,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().String(ConfigFlag, "", "path to the imgxfer config file")
	log.RegisterLoggingFlags(cmd.PersistentFlags())

	cmd.AddCommand(pack.New())
	cmd.AddCommand(unpack.New())
	cmd.AddCommand(version.New())
	return cmd
}

func preRunE(cmd *cobra.Command, _ []string) error {
	logger, err := log.GetBaseLogger(cmd)
	if err != nil {
		return fmt.Errorf("could not set up logger: %w", err)
	}
	slog.SetDefault(logger)

	path, err := cmd.Flags().GetString(ConfigFlag)
	if err != nil {
		return err
	}
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg := &config.Config{}
	if path != "" {
		if cfg, err = config.Load(path, explicit); err != nil {
			return err
		}
	}
	cmd.SetContext(config.IntoContext(cmd.Context(), cfg))
	return nil
}
