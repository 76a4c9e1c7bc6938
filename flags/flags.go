package flags

import (
	"github.com/urfave/cli/v2"

	"github.com/dbtestlabs/shoal/types"
)

const EnvVarPrefix = "SHOAL"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Suites = &cli.StringSliceFlag{
		Name:     "suites",
		Required: true,
		EnvVars:  prefixEnvVar("SUITES"),
		Usage:    "Paths of the suite files to run, in order",
	}
	ListSuites = &cli.BoolFlag{
		Name:    "list-suites",
		Value:   false,
		EnvVars: prefixEnvVar("LIST_SUITES"),
		Usage:   "List the selected suites and exit",
	}
	DryRun = &cli.BoolFlag{
		Name:    "dry-run",
		Value:   false,
		EnvVars: prefixEnvVar("DRY_RUN"),
		Usage:   "List the tests each suite would run and exit",
	}
	Jobs = &cli.IntFlag{
		Name:    "jobs",
		Value:   1,
		EnvVars: prefixEnvVar("JOBS"),
		Usage:   "Number of worker jobs per suite",
	}
	Repeat = &cli.IntFlag{
		Name:    "repeat",
		Value:   1,
		EnvVars: prefixEnvVar("REPEAT"),
		Usage:   "Number of times to execute each suite",
	}
	FailFast = &cli.BoolFlag{
		Name:    "fail-fast",
		Value:   false,
		EnvVars: prefixEnvVar("FAIL_FAST"),
		Usage:   "Stop a suite on the first observed test or hook failure",
	}
	Shuffle = &cli.BoolFlag{
		Name:    "shuffle",
		Value:   false,
		EnvVars: prefixEnvVar("SHUFFLE"),
		Usage:   "Randomize the order tests run in",
	}
	ShuffleSeed = &cli.Int64Flag{
		Name:    "shuffle-seed",
		Value:   0,
		EnvVars: prefixEnvVar("SHUFFLE_SEED"),
		Usage:   "Seed of the shuffle order; 0 draws one from the clock",
	}
	ConnString = &cli.StringFlag{
		Name:    "conn-string",
		Value:   "",
		EnvVars: prefixEnvVar("CONN_STRING"),
		Usage:   "Connection string of an externally-managed deployment; overrides the suites' fixtures",
	}
	NumClientsPerFixture = &cli.IntFlag{
		Name:    "num-clients-per-fixture",
		Value:   1,
		EnvVars: prefixEnvVar("NUM_CLIENTS_PER_FIXTURE"),
		Usage:   "Client count each test is configured with",
	}
	ReportFailureStatus = &cli.StringFlag{
		Name:    "report-failure-status",
		Value:   types.ExternalStatusFail,
		EnvVars: prefixEnvVar("REPORT_FAILURE_STATUS"),
		Usage:   "Externally-reported status of failed tests ('fail' or 'silentfail')",
	}
	ReportFile = &cli.StringFlag{
		Name:    "report-file",
		Value:   "",
		EnvVars: prefixEnvVar("REPORT_FILE"),
		Usage:   "Path the JSON report is written to",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: prefixEnvVar("LOG_DIR"),
		Usage:   "Directory for per-test log files; empty logs to the console only",
	}
	StaggerJobs = &cli.BoolFlag{
		Name:    "stagger-jobs",
		Value:   false,
		EnvVars: prefixEnvVar("STAGGER_JOBS"),
		Usage:   "Space out job launches when five or more jobs are configured",
	}
	StaggerDelay = &cli.DurationFlag{
		Name:    "stagger-delay",
		Value:   types.DefaultStaggerDelay,
		EnvVars: prefixEnvVar("STAGGER_DELAY"),
		Usage:   "Delay between staggered job launches",
	}
	TestFiles = &cli.StringSliceFlag{
		Name:    "test-files",
		EnvVars: prefixEnvVar("TEST_FILES"),
		Usage:   "Run exactly the named test files, replacing each suite's selector",
	}
	OrderTestsByName = &cli.BoolFlag{
		Name:    "order-tests-by-name",
		Value:   false,
		EnvVars: prefixEnvVar("ORDER_TESTS_BY_NAME"),
		Usage:   "Sort each suite's selected tests case-insensitively",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Lowest log level that will be output",
	}
)

var requiredFlags = []cli.Flag{
	Suites,
}

var optionalFlags = []cli.Flag{
	ListSuites,
	DryRun,
	Jobs,
	Repeat,
	FailFast,
	Shuffle,
	ShuffleSeed,
	ConnString,
	NumClientsPerFixture,
	ReportFailureStatus,
	ReportFile,
	LogDir,
	StaggerJobs,
	StaggerDelay,
	TestFiles,
	OrderTestsByName,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}
