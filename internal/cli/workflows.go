package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pablasso/stagehand/internal/workflow"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the available workflows",
	RunE:  runWorkflows,
}

func runWorkflows(cmd *cobra.Command, args []string) error {
	reg := workflow.NewRegistry()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKFLOW\tPHASES\tDESCRIPTION")
	for _, name := range reg.Names() {
		wf, _ := reg.Get(name)
		fmt.Fprintf(w, "%s\t%d\t%s\n", wf.Name, len(wf.Phases), wf.Description)
	}
	return w.Flush()
}
