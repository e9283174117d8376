package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pablasso/stagehand/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize Stagehand in a project directory",
	Long:  `Creates the flow/ directory for stages and writes a starter stagehand.yaml configuration file.`,
	RunE:  runInit,
}

const configTemplate = `# Stagehand configuration. Every key is optional; these are the defaults.
llm:
  model: openai/gpt-4o
  base_url: https://openrouter.ai/api/v1
  api_key_env: OPENROUTER_API_KEY

pipeline:
  max_retry_per_step: 3
  failed_threshold_percent: 30
  max_review_iterations: 3
  max_tool_turns: 25
  flow_dir: flow

# memory:
#   path: .stagehand/episodes.db
`

func runInit(cmd *cobra.Command, args []string) error {
	project := projectFlag
	if project == "" {
		project = "."
	}
	abs, err := filepath.Abs(project)
	if err != nil {
		return err
	}

	cfg, err := config.Load(project)
	if err != nil {
		return err
	}
	flowDir := filepath.Join(abs, cfg.Pipeline.FlowDir)
	if err := os.MkdirAll(flowDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", flowDir, err)
	}

	configPath := filepath.Join(abs, "stagehand.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(configTemplate), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", configPath, err)
		}
		fmt.Println("Wrote", configPath)
	}

	fmt.Println("Initialized Stagehand in", abs)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Export your model API key (OPENROUTER_API_KEY by default)")
	fmt.Printf("  2. Run: stagehand run \"describe what you want\" -p %s\n", project)
	return nil
}
