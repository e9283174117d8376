package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pablasso/stagehand/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run <request...>",
	Short: "Classify a request and execute the matching workflow",
	Long:  `Routes the request to a workflow (build, modify, fix, analyze, research, or chat), creates a stage under the project's flow directory, and runs it end to end.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.router.Handle(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func printResult(result *engine.RunResult) {
	if result.Message != "" {
		fmt.Println(result.Message)
	}
	for _, q := range result.Questions {
		fmt.Println("? " + q)
	}
	for _, w := range result.Warnings {
		fmt.Println("warning: " + w)
	}
	if s := result.Implementation; s != nil && s.Total > 0 {
		fmt.Printf("steps: %d completed, %d failed, %d blocked of %d\n",
			s.Completed, s.Failed, s.Blocked, s.Total)
	}
	if result.StageNum > 0 {
		fmt.Printf("stage-%d: %s\n", result.StageNum, result.Status)
	}
}
