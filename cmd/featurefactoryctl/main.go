// Command featurefactoryctl is the reference CLI for the orchestrator: a
// thin wrapper that loads the workflow/persona/runtime config, wires the
// core packages together, and renders the Driver's event stream as
// newline-delimited JSON. Terminal rendering and the interactive approval
// prompt are intentionally minimal here; a richer UI is a separate concern
// layered on top of this same Driver.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI is the top-level command set.
type CLI struct {
	Run         RunCmd         `cmd:"" help:"Start a new workflow run."`
	Resume      ResumeCmd      `cmd:"" help:"Resume an interrupted workflow from its last persisted checkpoint."`
	ListSess    ListSessCmd    `cmd:"" name:"list-sessions" help:"List persisted sessions."`
	Approve     ApproveCmd     `cmd:"" help:"Approve or reject a session awaiting approval."`
	Rollback    RollbackCmd    `cmd:"" help:"Roll a session's sandbox/working tree back to a phase checkpoint."`
	GCSessions  GCSessionsCmd  `cmd:"" name:"gc-sessions" help:"Delete old or failed sessions."`

	WorkflowsFile string `name:"workflows" help:"Path to the workflow set YAML." default:"configs/workflows.yaml"`
	PersonasFile  string `name:"personas" help:"Path to the persona set YAML." default:"configs/personas.yaml"`
	RuntimeFile   string `name:"runtime" help:"Path to the runtime config YAML (optional; defaults apply without it)."`
	SessionDir    string `name:"session-dir" help:"Working directory whose .feature-factory/sessions holds persisted session state." default:"."`
	LogLevel      string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info"`
	DryRun        bool   `name:"dry-run" help:"Load and validate config without starting a run."`
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("featurefactoryctl"),
		kong.Description("Reference CLI for the feature-factory workflow orchestrator."),
		kong.UsageOnError(),
	)

	level, err := parseLogLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	runCtx := &runContext{cli: &cli, logger: logger}
	err = kctx.Run(runCtx, ctx)
	kctx.FatalIfErrorf(err)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("featurefactoryctl: unknown log level %q", s)
	}
}
