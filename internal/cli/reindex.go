package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search indexes from the authoritative store",
		Long: "Rebuild both the lexical and vector indexes from persisted memories.\n" +
			"Safe to run at any time; the operation is idempotent.",
		Run: runReindex,
	}
	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	scope, err := getScope()
	if err != nil {
		exitErr("reindex", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	count, err := e.Reindex(cmd.Context(), scope)
	if err != nil {
		exitErr("reindex", err)
	}

	fmt.Printf(`{"ok":true,"indexed":%d}`+"\n", count)
}
