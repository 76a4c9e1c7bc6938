package testcase

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// buildTestEnv assembles the environment of a spawned test process: the
// harness environment plus the fixture's connection string and the test's
// identity.
func buildTestEnv(b *Base, extra map[string]string) []string {
	env := os.Environ()
	if fix := b.Fixture(); fix != nil {
		env = append(env, "CONN_STRING="+fix.ConnString())
	}
	env = append(env,
		"TEST_NAME="+b.Name(),
		fmt.Sprintf("NUM_CLIENTS=%d", b.NumClients()),
	)
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// logWriter forwards process output lines to a logger.
type logWriter struct {
	logger log.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.logger.Info(line)
		}
	}
	return len(p), nil
}
