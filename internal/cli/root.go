// Package cli implements the operator command-line interface for recvault.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/recvault/recvault/internal/config"
	"github.com/recvault/recvault/internal/vault"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Vault  *vault.Vault

	closeStores func() error
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.closeStores != nil {
		c.closeStores()
	}
}

// initContext loads config and opens the stores. The CLI operates on the
// same recordings root and database as the server, so it must not run
// while the server is serving traffic.
func initContext() *cmdContext {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}

	v, closeStores, err := vault.Open(context.Background(), cfg, quietLogger())
	if err != nil {
		exitError("failed to open vault: %v", err)
	}

	return &cmdContext{Config: cfg, Vault: v, closeStores: closeStores}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "recvault",
	Short: "Recording vault operator tool",
	Long: `recvault is the operator CLI for the recording vault. It inspects and
maintains the recordings root and metadata index directly on disk.

Run it against the same config as recvault-server, but only while the
server is stopped.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (TOML)")

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(scanCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// quietLogger keeps store internals from cluttering command output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
