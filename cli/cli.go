package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/perfgo/testpulse/config"
	"github.com/perfgo/testpulse/history"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "testpulse"

type App struct {
	logger zerolog.Logger
	out    io.Writer
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	return newApp(logger, os.Stdout)
}

func newApp(logger zerolog.Logger, out io.Writer) *App {
	app := &App{
		logger: logger,
		out:    out,
		cli: &cli.App{
			Name:   AppName,
			Usage:  "Track flakiness and performance trends of Go tests across runs",
			Writer: out,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run go test and analyze the results against the test history",
		ArgsUsage: "[packages] [-- go test flags]",
		Action:    app.run,
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Read a saved go test -json stream instead of running go test ('-' for stdin)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Path of the JSON report",
			},
			&cli.StringFlag{
				Name:  "metrics",
				Usage: "Path of a Prometheus textfile to write (disabled when empty)",
			},
			&cli.Float64Flag{
				Name:  "performance-threshold",
				Usage: "Relative deviation from the average duration that marks a test slower or faster",
			},
			&cli.StringFlag{
				Name:  "ai-provider",
				Usage: "Fix suggestion provider: auto, none, openai or anthropic",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colors in the summary",
			},
		),
		Description: `Runs go test -json for the given packages, enriches every test with its
flakiness and performance trend, and updates the history.

Examples:
  testpulse run ./...
  testpulse run ./store -- -count=1 -race
  go test -json ./... | testpulse run --input -`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "history",
		Usage:  "List tests recorded in the history",
		Action: app.list,
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "Only show tests whose identity contains this text",
			},
			&cli.BoolFlag{
				Name:  "flaky",
				Usage: "Only show flaky tests",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Show the recorded outcomes of a single test",
		ArgsUsage: "ID-PREFIX",
		Action:    app.view,
		Flags:     configFlags(),
		Description: `Shows the recorded outcomes of the test whose identity starts with
ID-PREFIX, oldest first.

Examples:
  testpulse show "store/store_test.go :: TestPut"
  testpulse show store/store_test`,
	})
	return app
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   fmt.Sprintf("Configuration file (default: %s)", config.FileName),
		},
		&cli.StringFlag{
			Name:  "history",
			Usage: "Path of the history snapshot (default: <repository>/.testpulse/history.json)",
		},
		&cli.IntFlag{
			Name:  "max-history-runs",
			Usage: "Number of outcomes kept per test",
		},
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// loadConfig layers the command line flags over the configuration file and
// the environment.
func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if ctx.IsSet("history") {
		cfg.HistoryPath = ctx.String("history")
	}
	if ctx.IsSet("max-history-runs") {
		cfg.MaxHistoryRuns = ctx.Int("max-history-runs")
	}
	if ctx.IsSet("report") {
		cfg.ReportPath = ctx.String("report")
	}
	if ctx.IsSet("metrics") {
		cfg.MetricsPath = ctx.String("metrics")
	}
	if ctx.IsSet("performance-threshold") {
		cfg.PerformanceThreshold = ctx.Float64("performance-threshold")
	}
	if ctx.IsSet("ai-provider") {
		cfg.AI.Provider = ctx.String("ai-provider")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = history.DefaultPath(a.repoRoot())
	}

	a.logger.Debug().
		Str("history", cfg.HistoryPath).
		Str("report", cfg.ReportPath).
		Int("max_history_runs", cfg.MaxHistoryRuns).
		Float64("performance_threshold", cfg.PerformanceThreshold).
		Msg("Loaded configuration")
	return cfg, nil
}

func (a *App) store(cfg config.Config) *history.Store {
	return history.NewStore(a.logger, cfg.HistoryPath, cfg.MaxHistoryRuns)
}
