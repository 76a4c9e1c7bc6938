package testcase

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dbtestlabs/shoal/types"
)

// ShellTestKind runs a test script through a shell interpreter. The script
// reaches the deployment through environment variables and signals failure
// with a non-zero exit code.
const ShellTestKind = "shell_test"

func init() {
	Register(ShellTestKind, newShellTest)
}

type shellTestOptions struct {
	// Shell is the interpreter, /bin/sh when empty.
	Shell string `yaml:"shell"`
	// Timeout bounds one script invocation.
	Timeout types.Duration `yaml:"timeout"`
	// Env holds extra environment variables passed to the script.
	Env map[string]string `yaml:"env"`
}

type shellTest struct {
	*Base
	opts shellTestOptions
}

func newShellTest(name string, opts map[string]any) (TestCase, error) {
	var o shellTestOptions
	if err := types.DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Shell == "" {
		o.Shell = "/bin/sh"
	}
	if o.Timeout == 0 {
		o.Timeout = types.Duration(10 * time.Minute)
	}
	t := &shellTest{Base: NewBase(ShellTestKind, name), opts: o}
	t.setExecute(t.runScript)
	return t, nil
}

func (t *shellTest) runScript(logger log.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.Timeout.Std())
	defer cancel()

	cmd := exec.CommandContext(ctx, t.opts.Shell, t.Name())
	cmd.Env = buildTestEnv(t.Base, t.opts.Env)
	cmd.Stdout = logWriter{logger}
	cmd.Stderr = logWriter{logger}

	err := cmd.Run()
	if cmd.ProcessState != nil {
		t.setReturnCode(cmd.ProcessState.ExitCode())
	}
	if ctx.Err() == context.DeadlineExceeded {
		return types.NewTestFailure("script %s timed out after %v", t.Name(), t.opts.Timeout)
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return types.NewTestFailure("script %s exited with code %d", t.Name(), t.ReturnCode())
		}
		return fmt.Errorf("running script %s: %w", t.Name(), err)
	}
	return nil
}
