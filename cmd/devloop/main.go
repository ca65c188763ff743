// Package main provides the devloop CLI: it drives one task request
// through the plan/implement/verify/repair/document pipeline and prints
// the run result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/devloop/internal/config"
	"github.com/fyrsmithlabs/devloop/internal/logging"
	"github.com/fyrsmithlabs/devloop/internal/runner"
	"github.com/fyrsmithlabs/devloop/internal/workflow"
	"github.com/fyrsmithlabs/devloop/internal/workspace"
	"github.com/fyrsmithlabs/devloop/pkg/agents"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to ~/.config/devloop/config.yaml)")
	request := flag.String("request", "", "Task description to run through the pipeline")
	runID := flag.String("run-id", "", "Optional run identifier (a UUID is assigned when empty)")
	maxIterations := flag.Int("max-iterations", 0, "Override the verify/repair iteration ceiling")
	outputDir := flag.String("output", "", "Override the artifact output directory")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *request == "" {
		fmt.Fprintln(os.Stderr, `usage: devloop -request "<task description>" [flags]`)
		flag.PrintDefaults()
		os.Exit(2)
	}

	if *configPath == "" {
		if err := config.EnsureConfigDir(); err != nil {
			fmt.Fprintf(os.Stderr, "Error preparing config directory: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *maxIterations > 0 {
		cfg.Workflow.MaxIterations = *maxIterations
	}

	logger, err := buildLogger(cfg, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, logger, workflow.RunRequest{
		Request:       *request,
		RunID:         *runID,
		MaxIterations: cfg.Workflow.MaxIterations,
	})
	if err != nil {
		logger.Error(ctx, "setup failed", zap.Error(err))
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error(ctx, "failed to encode result", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println(string(out))

	if !result.Success {
		os.Exit(1)
	}
}

// run wires the collaborators together and executes one pipeline run.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, req workflow.RunRequest) (*workflow.RunResult, error) {
	model, err := agents.NewModel(cfg.LLM)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}

	opts := agents.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      logger,
		Workspace:   ws,
	}

	testRunner := runner.New(cfg.Workflow.StageTimeout.Duration(), logger.Named("runner"))
	tester, err := agents.NewTester(model, testRunner, opts)
	if err != nil {
		return nil, err
	}

	collab := workflow.Collaborators{
		Planner:     agents.NewPlanner(model, opts),
		Implementer: agents.NewCoder(model, opts),
		Verifier:    tester,
		Repairer:    agents.NewDebugger(model, opts),
		Documenter:  agents.NewDocumenter(model, opts),
	}

	engine, err := workflow.NewEngine(collab, logger,
		workflow.WithMaxIterations(cfg.Workflow.MaxIterations))
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "starting run",
		zap.String("request", req.Request),
		zap.Int("max_iterations", req.MaxIterations),
		zap.String("output_dir", ws.Root()))

	return engine.StartRun(ctx, req), nil
}

func buildLogger(cfg *config.Config, verbose bool) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		logCfg.Level = level
	}
	if verbose {
		logCfg.Level = zapcore.DebugLevel
	}
	return logging.NewLogger(logCfg)
}
