package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently remove expired tombstones",
		Long:  "Permanently remove tombstoned memories older than the retention window.",
		Run:   runPurge,
	}

	cmd.Flags().Duration("older-than", 0, "Minimum tombstone age (default: configured retention TTL)")

	RootCmd.AddCommand(cmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	olderThan, _ := cmd.Flags().GetDuration("older-than")

	scope, err := getScope()
	if err != nil {
		exitErr("purge", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	purged, err := e.PurgeTombstoned(cmd.Context(), scope, olderThan)
	if err != nil {
		exitErr("purge", err)
	}

	fmt.Printf(`{"ok":true,"purged":%d}`+"\n", purged)
}
