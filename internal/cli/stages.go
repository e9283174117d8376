package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pablasso/stagehand/internal/config"
	"github.com/pablasso/stagehand/internal/stage"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the project's stages",
	Long:  `Lists every stage under the project's flow directory with its workflow, status, and the request that created it.`,
	RunE:  runStages,
}

func runStages(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(projectFlag)
	if err != nil {
		return err
	}
	project := projectFlag
	if project == "" {
		project = "."
	}
	mgr, err := stage.NewManager(project, cfg.Pipeline.FlowDir, nil)
	if err != nil {
		return err
	}

	stages, err := mgr.List()
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		fmt.Println("No stages yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tWORKFLOW\tSTATUS\tQUERY")
	for _, s := range stages {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Num, s.Workflow, s.Status, s.Query)
	}
	return w.Flush()
}
