package testcase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/types"
)

// GoTestKind runs the tests of one Go package through `go test -json`. The
// test id is the package path.
const GoTestKind = "go_test"

// test2json action constants.
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	actionPass   = "pass"
	actionFail   = "fail"
	actionSkip   = "skip"
	actionOutput = "output"
)

func init() {
	Register(GoTestKind, newGoTest)
}

// testEvent is a single event from the go test JSON output.
type testEvent struct {
	Time    time.Time // Time the event occurred
	Action  string    // The action taken (run, pause, cont, pass, fail, skip, output)
	Package string    // The package being tested
	Test    string    // The test function name (may be empty for package events)
	Output  string    // Output text (may be empty)
	Elapsed float64   // Elapsed time in seconds for the specific action
}

type goTestOptions struct {
	// GoBinary is the go tool to invoke, "go" when empty.
	GoBinary string `yaml:"go_binary"`
	// Run filters the test functions to execute.
	Run string `yaml:"run"`
	// Timeout is passed to go test and bounds the whole invocation.
	Timeout types.Duration `yaml:"timeout"`
	// Env holds extra environment variables passed to the test process.
	Env map[string]string `yaml:"env"`
}

type goTest struct {
	*Base
	opts goTestOptions
}

func newGoTest(name string, opts map[string]any) (TestCase, error) {
	var o goTestOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.GoBinary == "" {
		o.GoBinary = "go"
	}
	if o.Timeout == 0 {
		o.Timeout = types.Duration(10 * time.Minute)
	}
	t := &goTest{Base: NewBase(GoTestKind, name), opts: o}
	t.setExecute(t.runPackage)
	return t, nil
}

func (t *goTest) buildArgs() []string {
	args := []string{"test", t.Name()}
	if t.opts.Run != "" {
		args = append(args, "-run", fmt.Sprintf("^%s$", t.opts.Run))
	}
	// Always disable caching.
	args = append(args, "-count", "1")
	args = append(args, "-timeout", t.opts.Timeout.String())
	args = append(args, "-v", "-json")
	return args
}

func (t *goTest) runPackage(logger log.Logger) error {
	// The parent timeout is redundant with go test's own; the slack lets the
	// child report its timeout first.
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.Timeout.Std()+200*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.opts.GoBinary, t.buildArgs()...)
	cmd.Env = buildTestEnv(t.Base, t.opts.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cmd.ProcessState != nil {
		t.setReturnCode(cmd.ProcessState.ExitCode())
	}

	passed, failed, output := parseTestOutput(stdout.Bytes())
	for _, line := range output {
		logger.Info(line)
	}
	if stderr.Len() > 0 {
		logWriter{logger}.Write(stderr.Bytes())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return types.NewTestFailure("package %s timed out after %v", t.Name(), t.opts.Timeout)
	}
	if failed > 0 {
		return types.NewTestFailure("package %s: %d of %d test(s) failed", t.Name(), failed, passed+failed)
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); ok && t.ReturnCode() != 0 {
			// Non-zero exit without a parsed failure means the package did
			// not build or the test binary crashed.
			return fmt.Errorf("package %s exited with code %d: %s", t.Name(), t.ReturnCode(), stderr.String())
		}
		return fmt.Errorf("running package %s: %w", t.Name(), runErr)
	}
	return nil
}

// parseTestOutput scans go test -json events, returning the pass and fail
// counts of individual test functions plus the human-readable output lines.
func parseTestOutput(raw []byte) (passed, failed int, output []string) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var event testEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		switch event.Action {
		case actionOutput:
			if trimmed := trimNewline(event.Output); trimmed != "" {
				output = append(output, trimmed)
			}
		case actionPass:
			if event.Test != "" {
				passed++
			}
		case actionFail:
			if event.Test != "" {
				failed++
			}
		case actionSkip:
			// Skips of individual functions are not outcomes of this test id.
		}
	}
	return passed, failed, output
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
