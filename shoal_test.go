package shoal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbtestlabs/shoal/exitcodes"
	"github.com/dbtestlabs/shoal/report"
	"github.com/dbtestlabs/shoal/types"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755))
}

// writeSuiteFile writes a shell_test suite selecting every .sh file in
// testDir and returns the suite file's path.
func writeSuiteFile(t *testing.T, dir, name, testDir string) string {
	t.Helper()
	doc := fmt.Sprintf(`test_kind: shell_test
selector:
  roots:
    - %s
executor:
  fixture:
    class: NoopFixture
`, filepath.Join(testDir, "*.sh"))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func testConfig(suiteFiles ...string) *Config {
	options := types.DefaultSuiteOptions()
	options.OrderTestsByName = true
	return &Config{
		SuiteFiles: suiteFiles,
		Options:    options,
		Log:        discardLogger(),
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNewAssignsRunID(t *testing.T) {
	h, err := New(testConfig("unused.yml"))
	require.NoError(t, err)
	assert.NotEmpty(t, h.RunID())

	h2, err := New(testConfig("unused.yml"))
	require.NoError(t, err)
	assert.NotEqual(t, h.RunID(), h2.RunID())
}

func TestRunMissingSuiteFile(t *testing.T) {
	h, err := New(testConfig(filepath.Join(t.TempDir(), "nope.yml")))
	require.NoError(t, err)

	// A suite that cannot be loaded is an internal error, not a test failure.
	assert.Equal(t, exitcodes.RuntimeErr, h.Run())
}

func TestRunListSuites(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "exit 0\n")
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))
	cfg.ListSuites = true

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitcodes.Success, h.Run())
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "exit 1\n")
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))
	cfg.DryRun = true

	h, err := New(cfg)
	require.NoError(t, err)

	// Dry runs never execute tests, so the failing script does not matter.
	assert.Equal(t, exitcodes.Success, h.Run())
}

func TestRunPassingSuite(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "exit 0\n")
	writeScript(t, dir, "b.sh", "exit 0\n")

	reportPath := filepath.Join(t.TempDir(), "report.json")
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))
	cfg.ReportFile = reportPath

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitcodes.Success, h.Run())

	info, err := ReadReportFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, 2, info.NumRun())
	assert.True(t, info.WasSuccessful())
}

func TestRunFailingSuite(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "exit 0\n")
	writeScript(t, dir, "b.sh", "exit 1\n")

	reportPath := filepath.Join(t.TempDir(), "report.json")
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))
	cfg.ReportFile = reportPath

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitcodes.TestFailure, h.Run())

	info, err := ReadReportFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, 2, info.NumRun())
	assert.Equal(t, 1, info.NumFailed)
}

func TestRunMultipleSuites(t *testing.T) {
	dirA := t.TempDir()
	writeScript(t, dirA, "a.sh", "exit 0\n")
	dirB := t.TempDir()
	writeScript(t, dirB, "b.sh", "exit 1\n")

	suiteDir := t.TempDir()
	cfg := testConfig(
		writeSuiteFile(t, suiteDir, "alpha.yml", dirA),
		writeSuiteFile(t, suiteDir, "beta.yml", dirB),
	)

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitcodes.TestFailure, h.Run())

	suites := h.report.Suites()
	require.Len(t, suites, 2)
	assert.Equal(t, "alpha", suites[0].Name())
	assert.Equal(t, "beta", suites[1].Name())
	assert.Equal(t, exitcodes.Success, suites[0].ReturnCode())
	assert.Equal(t, exitcodes.TestFailure, suites[1].ReturnCode())
}

func TestRunEmptySuiteIsSkipped(t *testing.T) {
	dir := t.TempDir() // no scripts
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitcodes.Success, h.Run())
}

func TestRunWritesTestLogs(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "echo hello\nexit 0\n")
	writeScript(t, dir, "b.sh", "echo broken\nexit 1\n")

	logDir := t.TempDir()
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))
	cfg.LogDir = logDir

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitcodes.TestFailure, h.Run())

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runDir := filepath.Join(logDir, entries[0].Name())
	assert.True(t, strings.HasPrefix(entries[0].Name(), "testrun-"))

	// One log per test, the failing one copied under failed/, plus the
	// run summary.
	failed, err := os.ReadDir(filepath.Join(runDir, "failed"))
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Name(), "b.sh")

	summary, err := os.ReadFile(filepath.Join(runDir, "summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "1 suites ran")
}

func TestInterruptBeforeSuitesResolvesSignalCode(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "exit 0\n")
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))

	h, err := New(cfg)
	require.NoError(t, err)

	// The signal lands before any executor is registered; the flag stays
	// sticky and the suite loop never starts a suite.
	h.interrupt()
	assert.Equal(t, exitcodes.Interrupted, h.Run())
	assert.Empty(t, h.report.Suites())
}

func TestInterruptIsPickedUpByNextExecutor(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "exit 0\n")
	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))

	h, err := New(cfg)
	require.NoError(t, err)
	suites, err := h.loadSuites()
	require.NoError(t, err)
	require.Len(t, suites, 1)

	h.interrupt()

	suiteReport := report.NewSuiteReport(suites[0].DisplayName(), suites[0].NumTests())
	h.runSuite(suites[0], suiteReport)

	assert.True(t, suiteReport.Interrupted())
	assert.Equal(t, exitcodes.Interrupted, suiteReport.ReturnCode())
	assert.Equal(t, 0, suiteReport.Summary().NumRun)
}

func TestRunReportFileFailureEscalates(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.sh", "exit 0\n")

	cfg := testConfig(writeSuiteFile(t, dir, "core.yml", dir))
	cfg.ReportFile = filepath.Join(t.TempDir(), "missing", "report.json")

	h, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitcodes.IOErr, h.Run())
}
