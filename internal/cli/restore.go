package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a tombstoned memory",
		Args:  cobra.ExactArgs(1),
		Run:   runRestore,
	}
	RootCmd.AddCommand(cmd)
}

func runRestore(cmd *cobra.Command, args []string) {
	id := args[0]

	scope, err := getScope()
	if err != nil {
		exitErr("restore", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	existed, err := e.Restore(cmd.Context(), scope, id)
	if err != nil {
		exitErr("restore", err)
	}
	if !existed {
		exitErr("restore", fmt.Errorf("memory %s not found", id))
	}

	fmt.Printf(`{"ok":true,"id":%q}`+"\n", id)
}
