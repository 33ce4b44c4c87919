package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Capture a memory",
		Long:  "Capture a memory. Content can be a positional arg or piped via stdin.",
		Run:   runStore,
	}

	cmd.Flags().StringP("ns", "n", "", "Namespace: decisions, patterns, learnings, context, ...")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("source", "", "Where the memory came from (file path, tool name)")
	cmd.Flags().String("org", "", "Organization domain segment")
	cmd.Flags().String("project", "", "Project domain segment")
	cmd.Flags().String("repo", "", "Repository domain segment")

	RootCmd.AddCommand(cmd)
}

func runStore(cmd *cobra.Command, args []string) {
	nsStr, _ := cmd.Flags().GetString("ns")
	tagsStr, _ := cmd.Flags().GetString("tags")
	source, _ := cmd.Flags().GetString("source")
	org, _ := cmd.Flags().GetString("org")
	project, _ := cmd.Flags().GetString("project")
	repo, _ := cmd.Flags().GetString("repo")

	// Content: positional arg first, then stdin.
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("store", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var namespace types.Namespace
	if nsStr != "" {
		ns, err := types.ParseNamespace(nsStr)
		if err != nil {
			exitErr("store", err)
		}
		namespace = ns
	}

	var tags []string
	for _, t := range strings.Split(tagsStr, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	scope, err := getScope()
	if err != nil {
		exitErr("store", err)
	}

	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer e.Close()

	receipt, err := e.Capture(cmd.Context(), engine.CaptureRequest{
		Content:   strings.TrimSpace(content),
		Scope:     scope,
		Namespace: namespace,
		Domain:    types.Domain{Organization: org, Project: project, Repository: repo},
		Tags:      tags,
		Source:    source,
	})
	if err != nil {
		exitErr("store", err)
	}

	b, _ := json.Marshal(receipt)
	fmt.Println(string(b))
}
