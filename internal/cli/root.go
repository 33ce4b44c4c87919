// Package cli implements the engram CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/routing"
)

var (
	configPath string
	scopeFlag  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Persistent memory for coding sessions",
	Long: "Engram captures decisions, patterns, and context from coding sessions\n" +
		"and recalls them with hybrid lexical and semantic search.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $ENGRAM_CONFIG or <data dir>/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&scopeFlag, "scope", "s", "project", "Memory scope: project, user, or org")
}

func getScope() (routing.Scope, error) {
	return routing.ParseScope(scopeFlag)
}

func openEngine() (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
