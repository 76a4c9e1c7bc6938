// Package suite resolves a declarative suite file into the concrete inputs
// of the executor: an ordered list of test cases, the fixture and hook
// configuration, and the execution options.
package suite

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-zglob"
	"gopkg.in/yaml.v3"

	"github.com/dbtestlabs/shoal/fixture"
	"github.com/dbtestlabs/shoal/testcase"
	"github.com/dbtestlabs/shoal/types"
)

// Suite is one resolved suite: its configuration plus the selected test
// files.
type Suite struct {
	name    string
	config  types.SuiteConfig
	options types.SuiteOptions

	testFiles []string
	rng       *rand.Rand
}

// Load reads and resolves the suite file at path. options supplies the
// execution knobs from the command line; the suite's selector decides which
// test files run.
func Load(path string, options types.SuiteOptions) (*Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file: %w", err)
	}

	var config types.SuiteConfig
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing suite file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("suite file %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return New(name, config, options)
}

// New resolves an already-parsed suite configuration.
func New(name string, config types.SuiteConfig, options types.SuiteOptions) (*Suite, error) {
	sel := config.Selector
	if len(options.TestFiles) > 0 {
		// An explicit test file list wins over the suite's own selector.
		sel = types.SelectorConfig{Roots: options.TestFiles}
	}
	files, err := selectFiles(sel)
	if err != nil {
		return nil, fmt.Errorf("selecting tests of suite %s: %w", name, err)
	}
	if options.OrderTestsByName {
		sort.Slice(files, func(i, j int) bool {
			return strings.ToLower(files[i]) < strings.ToLower(files[j])
		})
	}

	seed := options.ShuffleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Suite{
		name:      name,
		config:    config,
		options:   options,
		testFiles: files,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// selectFiles expands the selector's root globs and applies the include and
// exclude filters.
func selectFiles(sel types.SelectorConfig) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, root := range sel.Roots {
		matches, err := zglob.Glob(root)
		if err != nil {
			return nil, fmt.Errorf("expanding root %q: %w", root, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	include, err := expandPatterns(sel.IncludeFiles)
	if err != nil {
		return nil, err
	}
	exclude, err := expandPatterns(sel.ExcludeFiles)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, f := range files {
		if include != nil && !include[f] {
			continue
		}
		if exclude[f] {
			continue
		}
		selected = append(selected, f)
	}
	return selected, nil
}

// expandPatterns resolves a list of glob patterns to a file set. A nil map
// means no patterns were given.
func expandPatterns(patterns []string) (map[string]bool, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	set := make(map[string]bool)
	for _, p := range patterns {
		matches, err := zglob.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			// A literal path that doesn't exist yet still filters.
			set[p] = true
			continue
		}
		for _, m := range matches {
			set[m] = true
		}
	}
	return set, nil
}

// DisplayName returns the suite's name for logs and summaries.
func (s *Suite) DisplayName() string {
	if s.options.Description != "" {
		return s.options.Description
	}
	return s.name
}

// Name returns the suite's configured name.
func (s *Suite) Name() string { return s.name }

// TestKind returns the registered kind the suite's tests run as.
func (s *Suite) TestKind() string { return s.config.TestKind }

// Options returns the suite's execution options.
func (s *Suite) Options() types.SuiteOptions { return s.options }

// TestFiles returns the selected test files in selection order.
func (s *Suite) TestFiles() []string {
	return append([]string(nil), s.testFiles...)
}

// NumTests returns how many tests one execution runs.
func (s *Suite) NumTests() int { return len(s.testFiles) }

// MakeTests builds fresh test cases for one execution. With shuffling
// enabled each call draws a new order from the suite's seeded generator, so
// repeated executions run in different but reproducible orders.
func (s *Suite) MakeTests() ([]testcase.TestCase, error) {
	files := s.TestFiles()
	if s.options.Shuffle {
		s.rng.Shuffle(len(files), func(i, j int) {
			files[i], files[j] = files[j], files[i]
		})
	}

	tests := make([]testcase.TestCase, 0, len(files))
	for _, f := range files {
		tc, err := testcase.New(s.config.TestKind, f, s.config.Executor.Config)
		if err != nil {
			return nil, err
		}
		tests = append(tests, tc)
	}
	return tests, nil
}

// FixtureClass returns the configured fixture class, the no-op class when
// the suite configures none.
func (s *Suite) FixtureClass() (string, error) {
	if s.config.Executor.Fixture == nil {
		return fixture.NoopFixtureClass, nil
	}
	return types.ClassName(s.config.Executor.Fixture)
}

// FixtureOptions returns the fixture's constructor options.
func (s *Suite) FixtureOptions() map[string]any {
	if s.config.Executor.Fixture == nil {
		return nil
	}
	return types.ClassOptions(s.config.Executor.Fixture)
}

// HookConfigs returns the hook configurations in execution order.
func (s *Suite) HookConfigs() []map[string]any {
	return s.config.Executor.Hooks
}
