// Package cli implements the vmbundle command-line surface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional config file path
}

// ValidFormats defines the allowed CLI output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vmbundle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vmbundle",
		Short: "Extract virtualization context-switch bundles from hardware traces",
		Long: `vmbundle correlates PIP/PAD/VMCS/TSC packet sequences in a processor
trace into self-contained context-switch bundles and writes them to a
structured JSON document and, optionally, a SQLite store.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "CLI output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to yaml config file")

	cmd.AddCommand(NewDecodeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))

	return cmd
}

// configureLogging installs the process logger: slog text on stderr, debug
// level when verbose.
func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
