package testcase

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/types"
)

// BinaryTestKind runs a compiled test executable. The test id is the
// executable's path; the deployment is reached through the same environment
// variables shell tests use.
const BinaryTestKind = "binary_test"

func init() {
	Register(BinaryTestKind, newBinaryTest)
}

type binaryTestOptions struct {
	// Args are fixed arguments passed to every invocation.
	Args []string `yaml:"args"`
	// Timeout bounds one invocation.
	Timeout types.Duration `yaml:"timeout"`
	// Env holds extra environment variables passed to the process.
	Env map[string]string `yaml:"env"`
}

type binaryTest struct {
	*Base
	opts binaryTestOptions
}

func newBinaryTest(name string, opts map[string]any) (TestCase, error) {
	var o binaryTestOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Timeout == 0 {
		o.Timeout = types.Duration(10 * time.Minute)
	}
	t := &binaryTest{Base: NewBase(BinaryTestKind, name), opts: o}
	t.setExecute(t.runBinary)
	return t, nil
}

func (t *binaryTest) runBinary(logger log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.Timeout.Std())
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Name(), t.opts.Args...)
	cmd.Env = buildTestEnv(t.Base, t.opts.Env)
	cmd.Stdout = logWriter{logger}
	cmd.Stderr = logWriter{logger}

	err := cmd.Run()
	if cmd.ProcessState != nil {
		t.setReturnCode(cmd.ProcessState.ExitCode())
	}
	if ctx.Err() == context.DeadlineExceeded {
		return types.NewTestFailure("binary %s timed out after %v", t.Name(), t.opts.Timeout)
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return types.NewTestFailure("binary %s exited with code %d", t.Name(), t.ReturnCode())
		}
		return fmt.Errorf("running binary %s: %w", t.Name(), err)
	}
	return nil
}
