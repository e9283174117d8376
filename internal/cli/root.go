// Package cli wires the cobra command tree: run, resume, stages,
// workflows, and init.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pablasso/stagehand/internal/bridge"
	"github.com/pablasso/stagehand/internal/config"
	"github.com/pablasso/stagehand/internal/engine"
	"github.com/pablasso/stagehand/internal/llm"
	"github.com/pablasso/stagehand/internal/logging"
	"github.com/pablasso/stagehand/internal/memory"
	"github.com/pablasso/stagehand/internal/progress"
	"github.com/pablasso/stagehand/internal/router"
	"github.com/pablasso/stagehand/internal/scanner"
	"github.com/pablasso/stagehand/internal/tool"
	"github.com/pablasso/stagehand/internal/workflow"
)

var (
	projectFlag    string
	allowDirtyFlag bool
	yesFlag        bool
)

var rootCmd = &cobra.Command{
	Use:     "stagehand",
	Short:   "Workflow orchestrator for an AI coding agent",
	Long:    `Stagehand classifies a request into a workflow, plans the work as reviewable documents, and executes the plan step by step with checkpoints so interrupted runs can be resumed.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project directory to operate on")
	rootCmd.PersistentFlags().BoolVar(&allowDirtyFlag, "allow-dirty", false, "Run even when the project's git tree has uncommitted changes")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Approve file writes and command execution without prompting")
	rootCmd.AddCommand(runCmd, resumeCmd, stagesCmd, workflowsCmd, initCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

const systemPrompt = `You are a careful coding agent. You modify projects through the provided tools only, keep changes minimal and consistent with the surrounding code, and report what you did in one or two sentences.`

// app bundles everything a command needs for one invocation.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	router *router.Router
	mem    *memory.Store
}

// newApp loads configuration and builds the router. withModel is false for
// commands that only read local state.
func newApp(withModel bool) (*app, error) {
	cfg, err := config.Load(projectFlag)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	var client llm.Client
	if withModel {
		client, err = llm.NewOpenRouter(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKeyEnv)
		if err != nil {
			logger.Close()
			return nil, err
		}
	}

	sink := progress.NewConsole(os.Stdout, os.Stdin)
	b := bridge.New(client, tool.NewRegistry(), systemPrompt, logger,
		bridge.WithMaxTurns(cfg.Pipeline.MaxToolTurns),
		bridge.WithConfirm(confirmTool),
	)
	eng := engine.New(client, b, scanner.New(cfg.Scanner, logger), cfg, sink, logger)

	var mem *memory.Store
	if cfg.Memory.Path != "" {
		mem, err = memory.Open(cfg.Memory.Path)
		if err != nil {
			logger.Warn("episode memory unavailable", "error", err)
			mem = nil
		}
	}

	reg := workflow.NewRegistry()
	cls := workflow.NewClassifier(reg, client, logger)
	r := router.New(cfg, reg, cls, eng, mem, sink, logger)
	if projectFlag != "" {
		if err := r.SetProject(projectFlag); err != nil {
			logger.Close()
			return nil, err
		}
	}
	r.AllowDirty(allowDirtyFlag)

	return &app{cfg: cfg, log: logger, router: r, mem: mem}, nil
}

func (a *app) close() {
	if a.mem != nil {
		a.mem.Close()
	}
	a.log.Close()
}

// confirmTool asks before a dangerous tool runs, unless --yes was given.
func confirmTool(_ context.Context, toolName string, args map[string]any) (bool, error) {
	if yesFlag {
		return true, nil
	}
	target := ""
	for _, key := range []string{"path", "command"} {
		if v, ok := args[key].(string); ok {
			target = " " + v
			break
		}
	}
	fmt.Printf("Allow %s%s? [y/N] ", toolName, target)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
