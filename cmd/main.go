package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	shoal "github.com/dbtestlabs/shoal"
	"github.com/dbtestlabs/shoal/exitcodes"
	"github.com/dbtestlabs/shoal/flags"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "shoal"
	app.Usage = "Distributed test-execution harness"
	app.Description = "shoal provisions deployment fixtures and dispatches test suites against them"
	app.Flags = flags.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	logger := setupLogger(ctx.String(flags.LogLevel.Name))

	config, err := shoal.NewConfig(ctx, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	harness, err := shoal.New(config)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	logger.Info("Starting shoal", "version", ctx.App.Version, "run_id", harness.RunID())
	if code := harness.Run(); code != exitcodes.Success {
		return cli.Exit("", code)
	}
	return nil
}

func setupLogger(level string) log.Logger {
	var lvl slog.Level
	switch level {
	case "trace":
		lvl = log.LevelTrace
	case "debug":
		lvl = log.LevelDebug
	case "warn":
		lvl = log.LevelWarn
	case "error":
		lvl = log.LevelError
	default:
		lvl = log.LevelInfo
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true))
	log.SetDefault(logger)
	return logger
}
