package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
)

const (
	// RunDirectoryPrefix is the standardized prefix for run directories.
	RunDirectoryPrefix = "testrun-"

	summaryFilename = "summary.txt"
	failedSubdir    = "failed"
)

// FileLogger writes per-test output to files under a per-run directory.
// Failed tests additionally get a copy of their log in a "failed"
// subdirectory so they are easy to find after a large run.
type FileLogger struct {
	baseDir   string
	runID     string
	runDir    string
	failedDir string

	mu    sync.Mutex
	names map[string]int // sanitized name -> collision count
}

// NewFileLogger creates a FileLogger rooted at baseDir for the given run.
func NewFileLogger(baseDir, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(runDir, failedSubdir)
	if err := os.MkdirAll(failedDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", failedDir, err)
	}
	return &FileLogger{
		baseDir:   baseDir,
		runID:     runID,
		runDir:    runDir,
		failedDir: failedDir,
		names:     make(map[string]int),
	}, nil
}

// RunID returns the run identifier this logger was created with.
func (l *FileLogger) RunID() string { return l.runID }

// RunDir returns the directory holding this run's log files.
func (l *FileLogger) RunDir() string { return l.runDir }

// NewTestLog opens a log file for one test execution attempt and returns a
// handle carrying both the file path and a structured logger writing to it.
// Repeated executions of the same test get numbered files.
func (l *FileLogger) NewTestLog(testID string) (*TestLog, error) {
	l.mu.Lock()
	name := sanitizeFilename(testID)
	n := l.names[name]
	l.names[name] = n + 1
	l.mu.Unlock()

	filename := name + ".log"
	if n > 0 {
		filename = fmt.Sprintf("%s.%d.log", name, n)
	}
	path := filepath.Join(l.runDir, filename)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create test log %s: %w", path, err)
	}
	return &TestLog{path: path, file: file}, nil
}

// MarkFailed copies a test's log file into the failed subdirectory.
func (l *FileLogger) MarkFailed(logPath string) error {
	if logPath == "" {
		return nil
	}
	src, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open test log %s: %w", logPath, err)
	}
	defer src.Close()

	dstPath := filepath.Join(l.failedDir, filepath.Base(logPath))
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dstPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy test log to %s: %w", dstPath, err)
	}
	return nil
}

// WriteSummary stores the human-readable run summary alongside the test logs.
func (l *FileLogger) WriteSummary(text string) error {
	path := filepath.Join(l.runDir, summaryFilename)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// TestLog is the log destination of one test execution attempt.
type TestLog struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// Path returns the location of the log file.
func (t *TestLog) Path() string { return t.path }

// Logger returns a structured logger that writes to the test's log file.
func (t *TestLog) Logger() log.Logger {
	return log.NewLogger(log.LogfmtHandler(t))
}

// Write implements io.Writer, stripping ANSI escape sequences so raw test
// output stays readable in the stored files.
func (t *TestLog) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return 0, fmt.Errorf("test log %s is closed", t.path)
	}
	if _, err := t.file.WriteString(stripansi.Strip(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close flushes and closes the underlying file. Closing twice is harmless.
func (t *TestLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

func sanitizeFilename(testID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(testID)
}
