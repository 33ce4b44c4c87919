package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a memory by ID",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}
	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	scope, err := getScope()
	if err != nil {
		exitErr("get", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	memory, err := e.Get(cmd.Context(), scope, args[0])
	if err != nil {
		exitErr("get", err)
	}
	if memory == nil {
		exitErr("get", fmt.Errorf("memory %s not found", args[0]))
	}

	b, _ := json.MarshalIndent(memory, "", "  ")
	fmt.Println(string(b))
}
