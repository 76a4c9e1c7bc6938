package types

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SuiteConfig is the YAML document describing one suite: what kind of tests
// it runs, which test files are selected, and how they are executed.
type SuiteConfig struct {
	TestKind string         `yaml:"test_kind"`
	Selector SelectorConfig `yaml:"selector"`
	Executor ExecutorConfig `yaml:"executor"`
}

// SelectorConfig is the test inclusion/exclusion query of a suite.
type SelectorConfig struct {
	// Roots are glob patterns naming the candidate test files.
	Roots []string `yaml:"roots"`
	// IncludeFiles, when non-empty, restricts the candidates to matching files.
	IncludeFiles []string `yaml:"include_files"`
	// ExcludeFiles removes matching files from the candidates.
	ExcludeFiles []string `yaml:"exclude_files"`
}

// ExecutorConfig is the "executor" section of a suite config.
type ExecutorConfig struct {
	// Config holds test-kind specific options passed to every TestCase.
	Config map[string]any `yaml:"config"`
	// Fixture describes the deployment topology; its "class" key selects the
	// fixture implementation and the remaining keys are constructor options.
	Fixture map[string]any `yaml:"fixture"`
	// Hooks lists the behaviors run around tests, in execution order. Each
	// entry carries a "class" key plus constructor options.
	Hooks []map[string]any `yaml:"hooks"`
}

// Validate checks the structural requirements of the suite config.
func (c *SuiteConfig) Validate() error {
	if c.TestKind == "" {
		return fmt.Errorf("suite config is missing test_kind")
	}
	if c.Executor.Fixture != nil {
		if _, err := ClassName(c.Executor.Fixture); err != nil {
			return fmt.Errorf("invalid fixture config: %w", err)
		}
	}
	for i, hook := range c.Executor.Hooks {
		if _, err := ClassName(hook); err != nil {
			return fmt.Errorf("invalid hook config at index %d: %w", i, err)
		}
	}
	return nil
}

// ClassName extracts the "class" discriminator from a fixture or hook config
// mapping.
func ClassName(config map[string]any) (string, error) {
	raw, ok := config["class"]
	if !ok {
		return "", fmt.Errorf("missing class field")
	}
	name, ok := raw.(string)
	if !ok || name == "" {
		return "", fmt.Errorf("class must be a non-empty string, got %T", raw)
	}
	return name, nil
}

// ClassOptions returns a copy of 'config' with the "class" discriminator
// removed, leaving only the constructor options.
func ClassOptions(config map[string]any) map[string]any {
	opts := make(map[string]any, len(config))
	for k, v := range config {
		if k == "class" {
			continue
		}
		opts[k] = v
	}
	return opts
}

// DecodeOptions decodes a constructor option bag (as loaded from the suite
// YAML) into a typed options struct by round-tripping through YAML. Unknown
// keys are rejected so suite config typos surface early.
func DecodeOptions(opts map[string]any, out any) error {
	if len(opts) == 0 {
		return nil
	}
	buf, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("re-encoding options: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding options: %w", err)
	}
	return nil
}

// SuiteOptions are the per-suite knobs that originate from the command line
// or from the suite file and influence how the executor schedules tests.
type SuiteOptions struct {
	Description string

	// FailFast stops a job on the first observed test or hook failure.
	FailFast bool
	// NumJobs is the requested worker count; the executor caps it at the
	// number of selected tests.
	NumJobs int
	// NumRepeats is how many executions of the suite's queue to run.
	NumRepeats int
	// ReportFailureStatus is the externally-reported status for failures,
	// "fail" or "silentfail". Dynamic test failures are never silenced.
	ReportFailureStatus string

	Shuffle     bool
	ShuffleSeed int64

	// NumClientsPerFixture is passed to TestCase.Configure.
	NumClientsPerFixture int

	// ConnString, when set, points tests at an externally-managed deployment
	// and forces the no-op fixture class.
	ConnString string

	// StaggerJobs delays each job launch by StaggerDelay when five or more
	// jobs are configured.
	StaggerJobs  bool
	StaggerDelay time.Duration

	// OrderTestsByName sorts the selected tests case-insensitively.
	OrderTestsByName bool

	// TestFiles, when non-empty, replaces every suite's selector and runs
	// exactly the named files.
	TestFiles []string
}

// DefaultStaggerDelay is the launch delay between jobs when staggering.
const DefaultStaggerDelay = 10 * time.Second

// DefaultSuiteOptions returns the options used when no overrides are given.
func DefaultSuiteOptions() SuiteOptions {
	return SuiteOptions{
		NumJobs:              1,
		NumRepeats:           1,
		ReportFailureStatus:  ExternalStatusFail,
		NumClientsPerFixture: 1,
		StaggerDelay:         DefaultStaggerDelay,
	}
}
