// Package gdcmd contains the commands of the gdpos binary.
package gdcmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the root gdpos command.
func NewRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "gdpos",
		Short: "Delegated proof of stake round scheduling",

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")

	// Called by subcommands after flags are parsed.
	newLogger := func() (*slog.Logger, error) {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
	}

	cmd.AddCommand(
		newSimulateCmd(newLogger),
		newServeCmd(newLogger),
		newQueryCmd(),
	)

	return cmd
}

type loggerFunc func() (*slog.Logger, error)
