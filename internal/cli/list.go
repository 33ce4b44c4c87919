package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().StringP("ns", "n", "", "Filter by namespace")
	cmd.Flags().StringP("tag", "t", "", "Filter by tag")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default: configured)")
	cmd.Flags().Bool("deleted", false, "Include tombstoned memories")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	nsStr, _ := cmd.Flags().GetString("ns")
	tag, _ := cmd.Flags().GetString("tag")
	limit, _ := cmd.Flags().GetInt("limit")
	deleted, _ := cmd.Flags().GetBool("deleted")

	filter := &types.SearchFilter{IncludeTombstoned: deleted}
	if nsStr != "" {
		ns, err := types.ParseNamespace(nsStr)
		if err != nil {
			exitErr("list", err)
		}
		filter.Namespaces = []types.Namespace{ns}
	}
	if tag != "" {
		filter.Tags = []string{tag}
	}

	scope, err := getScope()
	if err != nil {
		exitErr("list", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	memories, err := e.List(cmd.Context(), scope, filter, limit)
	if err != nil {
		exitErr("list", err)
	}

	if len(memories) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(memories, "", "  ")
	fmt.Println(string(b))
}
