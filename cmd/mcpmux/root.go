package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// Exit codes for CLI commands (spec §6).
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

var rootCmd = &cobra.Command{
	Use:   "mcpmux [config-path]",
	Short: "Multiplex many MCP servers behind one endpoint",
	Long: `mcpmux presents a single MCP server exposing two generic operations,
invoke and read, while internally federating a dynamic set of upstream
MCP servers reached over stdio or HTTP streaming transports.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI, exiting the process with the appropriate code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcpmux version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		logging.Error("CLI", err, "command failed")
		os.Exit(ExitCodeError)
	}
}

// exitCodeError lets a subcommand request a specific process exit code
// while still returning a normal error to cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }
