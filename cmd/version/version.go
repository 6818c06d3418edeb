// Package version implements the `imgxfer version` subcommand.
package version

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/bioimage-tools/imgxfer/internal/version"
)

const (
	FlagFormat      = "format"
	FormatText      = "text"
	FormatJSON      = "json"
	FormatBuildInfo = "gobuildinfo"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the imgxfer version",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cmd.Flags().GetString(FlagFormat)
			if err != nil {
				return err
			}
			switch format {
			case FormatText:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get())
				return err
			case FormatJSON:
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"version": version.Get(),
				})
			case FormatBuildInfo:
				info, ok := debug.ReadBuildInfo()
				if !ok {
					return fmt.Errorf("no build info available")
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
				return err
			default:
				return fmt.Errorf("invalid format %q", format)
			}
		},
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.Flags().StringP(FlagFormat, "f", FormatText, "output format (text, json, gobuildinfo)")
	return cmd
}
