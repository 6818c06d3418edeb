// Package log wires the logging flags shared by every imgxfer command and
// builds the base slog.Logger from them.
package log

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bioimage-tools/imgxfer/internal/flags/enum"
)

const (
	LevelFlag  = "loglevel"
	FormatFlag = "logformat"
)

// RegisterLoggingFlags adds --loglevel and --logformat to the flag set.
func RegisterLoggingFlags(flags *pflag.FlagSet) {
	enum.Var(flags, LevelFlag, []string{
		"warn",
		"debug",
		"info",
		"error",
	}, "set the log level")
	enum.Var(flags, FormatFlag, []string{
		"text",
		"json",
	}, "set the log format")
}

// GetBaseLogger builds a logger from the command's logging flags. Logs are
// written to the command's error stream so they never mix with rendered
// output on stdout.
func GetBaseLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := GetLoggerLevel(cmd)
	if err != nil {
		return nil, err
	}

	format, err := enum.Get(cmd.Flags(), FormatFlag)
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: level,
		})
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: level,
		})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	return slog.New(handler), nil
}

// GetLoggerLevel resolves the --loglevel flag into a slog.Level.
func GetLoggerLevel(cmd *cobra.Command) (slog.Level, error) {
	logLevel, err := enum.Get(cmd.Flags(), LevelFlag)
	if err != nil {
		return slog.LevelWarn, err
	}
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level: %s", logLevel)
	}
	return level, nil
}
