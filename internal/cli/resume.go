package cli

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the most recent interrupted stage",
	Long:  `Finds the newest stage left in a running, partial, or paused state and re-executes only the steps that have not completed yet.`,
	RunE:  runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.router.Resume(cmd.Context())
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}
