// Command subvault runs the subscription vault as a standalone HTTP service
// and provides maintenance commands around it.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "subvault",
		Short:         "Prepaid subscription billing vault",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading SUBVAULT_* variables")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newInitCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "subvault %s\n", Version)
			if GitCommit != "unknown" {
				fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
			}
		},
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
