package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLoggerCreatesRunDirectory(t *testing.T) {
	base := t.TempDir()
	fl, err := NewFileLogger(base, "abc123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", fl.RunID())
	assert.Equal(t, filepath.Join(base, RunDirectoryPrefix+"abc123"), fl.RunDir())

	stat, err := os.Stat(filepath.Join(fl.RunDir(), "failed"))
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}

func TestNewFileLoggerRequiresRunID(t *testing.T) {
	_, err := NewFileLogger(t.TempDir(), "")
	require.Error(t, err)
}

func TestTestLogWriteAndClose(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)

	tl, err := fl.NewTestLog("tests/core/a.sql")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fl.RunDir(), "tests_core_a.sql.log"), tl.Path())

	_, err = tl.Write([]byte("hello\n"))
	require.NoError(t, err)

	logger := tl.Logger()
	logger.Info("structured line", "key", "value")

	require.NoError(t, tl.Close())
	require.NoError(t, tl.Close())

	data, err := os.ReadFile(tl.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "structured line")

	_, err = tl.Write([]byte("after close"))
	require.Error(t, err)
}

func TestTestLogStripsEscapeSequences(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)

	tl, err := fl.NewTestLog("a.sql")
	require.NoError(t, err)
	n, err := tl.Write([]byte("\x1b[31mred text\x1b[0m\n"))
	require.NoError(t, err)
	assert.Equal(t, len("\x1b[31mred text\x1b[0m\n"), n)
	require.NoError(t, tl.Close())

	data, err := os.ReadFile(tl.Path())
	require.NoError(t, err)
	assert.Equal(t, "red text\n", string(data))
}

func TestRepeatedTestLogsAreNumbered(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)

	first, err := fl.NewTestLog("a.sql")
	require.NoError(t, err)
	second, err := fl.NewTestLog("a.sql")
	require.NoError(t, err)
	third, err := fl.NewTestLog("a.sql")
	require.NoError(t, err)

	assert.Equal(t, "a.sql.log", filepath.Base(first.Path()))
	assert.Equal(t, "a.sql.1.log", filepath.Base(second.Path()))
	assert.Equal(t, "a.sql.2.log", filepath.Base(third.Path()))
}

func TestMarkFailedCopiesLog(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)

	tl, err := fl.NewTestLog("bad.sql")
	require.NoError(t, err)
	_, err = tl.Write([]byte("assertion output\n"))
	require.NoError(t, err)
	require.NoError(t, tl.Close())

	require.NoError(t, fl.MarkFailed(tl.Path()))

	data, err := os.ReadFile(filepath.Join(fl.RunDir(), "failed", "bad.sql.log"))
	require.NoError(t, err)
	assert.Equal(t, "assertion output\n", string(data))

	// An empty path is a no-op, not an error.
	require.NoError(t, fl.MarkFailed(""))
}

func TestWriteSummary(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir(), "run")
	require.NoError(t, err)

	require.NoError(t, fl.WriteSummary("3 test(s) ran\n"))
	data, err := os.ReadFile(filepath.Join(fl.RunDir(), "summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "3 test(s) ran\n", string(data))
}
