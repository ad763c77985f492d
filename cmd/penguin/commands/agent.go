package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/penguin-run/penguin/internal/agent"
	"github.com/penguin-run/penguin/internal/config"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect built-in and configured agents",
}

var agentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all agents",
	RunE:    runAgentList,
}

func init() {
	agentCmd.AddCommand(agentListCmd)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	registry := agent.NewRegistry()

	workDir, err := GetWorkDir("")
	if err == nil {
		if err := registry.LoadDir(config.ProjectAgentsPath(workDir)); err != nil {
			return fmt.Errorf("failed to load custom agents: %w", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tMODE\tBUILT-IN\tDESCRIPTION")
	for _, ag := range registry.List() {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", ag.Name, ag.Mode, ag.BuiltIn, ag.Description)
	}
	return nil
}
