package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories",
		Long: "Search memories with hybrid lexical and semantic ranking.\n" +
			"Queries may embed filter directives: ns:decisions tag:auth since:7d.",
		Run: runSearch,
	}

	cmd.Flags().StringP("mode", "m", "", "Search mode: text, vector, hybrid (default: configured)")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default: configured)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	modeStr, _ := cmd.Flags().GetString("mode")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	scope, err := getScope()
	if err != nil {
		exitErr("search", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	result, err := e.Recall(cmd.Context(), engine.RecallRequest{
		Query: query,
		Scope: scope,
		Mode:  types.SearchMode(modeStr),
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
