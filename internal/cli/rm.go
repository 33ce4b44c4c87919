package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory",
		Long:  "Tombstone a memory so it no longer surfaces in search. Use --hard to remove it permanently.",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	cmd.Flags().Bool("hard", false, "Permanent delete (irreversible)")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	hard, _ := cmd.Flags().GetBool("hard")
	id := args[0]

	scope, err := getScope()
	if err != nil {
		exitErr("rm", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	var existed bool
	if hard {
		existed, err = e.Purge(cmd.Context(), scope, id)
	} else {
		existed, err = e.Delete(cmd.Context(), scope, id)
	}
	if err != nil {
		exitErr("rm", err)
	}
	if !existed {
		exitErr("rm", fmt.Errorf("memory %s not found", id))
	}

	fmt.Printf(`{"ok":true,"id":%q,"hard":%v}`+"\n", id, hard)
}
