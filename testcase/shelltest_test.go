package testcase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtestlabs/shoal/types"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestShellTestPass(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\nexit 0\n")
	tc, err := New(ShellTestKind, path, nil)
	require.NoError(t, err)
	require.NoError(t, tc.Configure(&externalFixture{conn: "postgres://x"}, 1))

	rep := newReport()
	require.NoError(t, tc.Run(discardLogger(), rep))

	info, err := rep.GetByID(path)
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, info.Status)
	assert.Equal(t, 0, tc.ReturnCode())
}

func TestShellTestNonZeroExit(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\nexit 3\n")
	tc, err := New(ShellTestKind, path, nil)
	require.NoError(t, err)
	require.NoError(t, tc.Configure(&externalFixture{}, 1))

	rep := newReport()
	require.NoError(t, tc.Run(discardLogger(), rep))

	assert.Equal(t, 3, tc.ReturnCode())
	assert.True(t, types.IsTestFailure(tc.Failure()))
	info, err := rep.GetByID(path)
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, info.Status)
	assert.Equal(t, 3, info.ReturnCode)
}

func TestShellTestEnvironment(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env.txt")
	path := writeScript(t, "#!/bin/sh\necho \"$CONN_STRING $NUM_CLIENTS $MODE\" > "+out+"\n")

	tc, err := New(ShellTestKind, path, map[string]any{
		"env": map[string]string{"MODE": "smoke"},
	})
	require.NoError(t, err)
	require.NoError(t, tc.Configure(&externalFixture{conn: "postgres://127.0.0.1:20000/postgres"}, 4))

	rep := newReport()
	require.NoError(t, tc.Run(discardLogger(), rep))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "postgres://127.0.0.1:20000/postgres 4 smoke\n", string(data))
}

func TestShellTestTimeout(t *testing.T) {
	path := writeScript(t, "#!/bin/sh\nsleep 5\n")
	tc, err := New(ShellTestKind, path, map[string]any{"timeout": "100ms"})
	require.NoError(t, err)
	require.NoError(t, tc.Configure(&externalFixture{}, 1))

	rep := newReport()
	require.NoError(t, tc.Run(discardLogger(), rep))

	require.Error(t, tc.Failure())
	assert.True(t, types.IsTestFailure(tc.Failure()))
	assert.Contains(t, tc.Failure().Error(), "timed out")
}

func TestShellTestMissingInterpreter(t *testing.T) {
	path := writeScript(t, "exit 0\n")
	tc, err := New(ShellTestKind, path, map[string]any{"shell": "/nonexistent/sh"})
	require.NoError(t, err)
	require.NoError(t, tc.Configure(&externalFixture{}, 1))

	rep := newReport()
	err = tc.Run(discardLogger(), rep)
	require.Error(t, err)

	info, gerr := rep.GetByID(path)
	require.NoError(t, gerr)
	assert.Equal(t, types.TestStatusError, info.Status)
}
