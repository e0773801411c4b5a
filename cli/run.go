package cli

// This file contains the run command, which executes go test and feeds
// its results through the engine.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"

	"github.com/perfgo/testpulse/annotate"
	gocmd "github.com/perfgo/testpulse/cli/go"
	"github.com/perfgo/testpulse/config"
	"github.com/perfgo/testpulse/engine"
	"github.com/perfgo/testpulse/model"
	"github.com/perfgo/testpulse/report"
	"github.com/perfgo/testpulse/testjson"
	"github.com/urfave/cli/v2"
)

func (a *App) run(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()

	modulePath, err := gocmd.ModulePath()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Not in a Go module, using full package paths")
	}

	eng := engine.New(a.logger, a.store(cfg), a.annotator(cfg), engine.Options{
		Root:                 modulePath,
		PerformanceThreshold: cfg.PerformanceThreshold,
		ReportPath:           cfg.ReportPath,
		MetricsPath:          cfg.MetricsPath,
		Git:                  a.gitInfo(),
		RerunCommand:         gocmd.RerunCommand,
	})

	source, wait, err := a.openSource(runCtx, ctx.String("input"), ctx.Args().Slice())
	if err != nil {
		return err
	}

	eng.Begin()
	consumer := testjson.NewConsumer(a.logger, modulePath)
	_, consumeErr := consumer.Consume(runCtx, source, func(c model.TestCompletion) {
		eng.TestEnd(c)
	})
	waitErr := wait()

	if consumeErr != nil && !errors.Is(consumeErr, context.Canceled) {
		a.logger.Warn().Err(consumeErr).Msg("Test output ended unexpectedly")
	}

	// Artifacts are written even when the run was interrupted.
	rep, endErr := eng.End(context.WithoutCancel(runCtx))
	if rep != nil {
		if err := report.RenderSummary(a.out, rep.Summary.RunSummary, rep.Results, !ctx.Bool("no-color")); err != nil {
			a.logger.Debug().Err(err).Msg("Failed to print summary")
		}
	}
	if endErr != nil {
		return fmt.Errorf("failed to persist run: %w", endErr)
	}

	a.logger.Info().
		Str("id", rep.ID).
		Str("report", cfg.ReportPath).
		Str("history", cfg.HistoryPath).
		Msg("Run recorded")

	if failing := rep.Summary.Failed + rep.Summary.TimedOut; failing > 0 {
		return cli.Exit(fmt.Sprintf("%d failing tests", failing), 1)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return cli.Exit(fmt.Sprintf("go test failed: %v", waitErr), exitErr.ExitCode())
		}
		return fmt.Errorf("go test failed: %w", waitErr)
	}
	return nil
}

// openSource returns the go test -json stream to consume and a function
// that waits for its producer to finish.
func (a *App) openSource(ctx context.Context, input string, args []string) (io.Reader, func() error, error) {
	switch input {
	case "":
	case "-":
		a.logger.Info().Msg("Reading test events from stdin")
		return os.Stdin, func() error { return nil }, nil
	default:
		f, err := os.Open(input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open test output: %w", err)
		}
		a.logger.Info().Str("path", input).Msg("Reading test events from file")
		// The consumer closes the file itself when it is cancelled.
		return f, func() error { _ = f.Close(); return nil }, nil
	}

	packages, flags := separateTestArgs(args)
	if err := checkPackages(packages); err != nil {
		return nil, nil, err
	}
	if len(flags) > 0 {
		a.logger.Debug().Strs("flags", flags).Msg("Test flags")
	}

	cmd := gocmd.TestJSONCommand(ctx, packages, flags)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to attach to go test: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start go test: %w", err)
	}

	a.logger.Info().Strs("packages", packages).Msg("Running tests")
	return stdout, cmd.Wait, nil
}

// checkPackages resolves every package pattern with go list so that a
// mistyped pattern is reported before go test starts.
func checkPackages(packages []string) error {
	for _, p := range packages {
		pkgs, err := gocmd.List(p)
		if err != nil {
			return err
		}
		if len(pkgs) == 0 {
			return fmt.Errorf("invalid package path %q: no packages found", p)
		}
	}
	return nil
}

// annotator returns the failure annotator for the configured provider. A
// missing provider disables annotation.
func (a *App) annotator(cfg config.Config) *annotate.Annotator {
	pc := cfg.AI.ProviderConfig()
	suggester, err := annotate.NewSuggester(pc)
	switch {
	case errors.Is(err, annotate.ErrNoProvider):
		a.logger.Debug().Msg("No fix suggestion provider configured")
	case err != nil:
		a.logger.Warn().Err(err).Str("provider", pc.Name).Msg("Fix suggestions disabled")
	default:
		a.logger.Debug().Str("provider", suggester.Name()).Msg("Fix suggestions enabled")
	}
	return annotate.New(a.logger, suggester, cfg.AI.Timeout, cfg.AI.Concurrency)
}
