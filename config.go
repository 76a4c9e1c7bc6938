package shoal

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/dbtestlabs/shoal/flags"
	"github.com/dbtestlabs/shoal/types"
)

// Config holds the harness configuration.
type Config struct {
	SuiteFiles []string // Suite files to run, in order
	ListSuites bool     // List the selected suites and exit
	DryRun     bool     // List the tests each suite would run and exit
	ReportFile string   // Path the JSON report is written to, empty to skip
	LogDir     string   // Directory for per-test log files, empty for console only

	// Options are the execution knobs applied to every suite.
	Options types.SuiteOptions

	Log log.Logger
}

// NewConfig creates a Config from the cli context.
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	suiteFiles := ctx.StringSlice(flags.Suites.Name)
	if len(suiteFiles) == 0 {
		return nil, errors.New("at least one suite file is required")
	}

	options := types.DefaultSuiteOptions()
	options.NumJobs = ctx.Int(flags.Jobs.Name)
	options.NumRepeats = ctx.Int(flags.Repeat.Name)
	options.FailFast = ctx.Bool(flags.FailFast.Name)
	options.Shuffle = ctx.Bool(flags.Shuffle.Name)
	options.ShuffleSeed = ctx.Int64(flags.ShuffleSeed.Name)
	options.ConnString = ctx.String(flags.ConnString.Name)
	options.NumClientsPerFixture = ctx.Int(flags.NumClientsPerFixture.Name)
	options.ReportFailureStatus = ctx.String(flags.ReportFailureStatus.Name)
	options.StaggerJobs = ctx.Bool(flags.StaggerJobs.Name)
	options.StaggerDelay = ctx.Duration(flags.StaggerDelay.Name)
	options.OrderTestsByName = ctx.Bool(flags.OrderTestsByName.Name)
	options.TestFiles = ctx.StringSlice(flags.TestFiles.Name)

	if err := validateOptions(options); err != nil {
		return nil, err
	}

	return &Config{
		SuiteFiles: suiteFiles,
		ListSuites: ctx.Bool(flags.ListSuites.Name),
		DryRun:     ctx.Bool(flags.DryRun.Name),
		ReportFile: ctx.String(flags.ReportFile.Name),
		LogDir:     ctx.String(flags.LogDir.Name),
		Options:    options,
		Log:        logger,
	}, nil
}

func validateOptions(options types.SuiteOptions) error {
	if options.NumJobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", options.NumJobs)
	}
	if options.NumRepeats < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", options.NumRepeats)
	}
	if options.NumClientsPerFixture < 1 {
		return fmt.Errorf("num-clients-per-fixture must be at least 1, got %d", options.NumClientsPerFixture)
	}
	switch options.ReportFailureStatus {
	case types.ExternalStatusFail, types.ExternalStatusSilentFail:
	default:
		return fmt.Errorf("report-failure-status must be %q or %q, got %q",
			types.ExternalStatusFail, types.ExternalStatusSilentFail, options.ReportFailureStatus)
	}
	return nil
}
