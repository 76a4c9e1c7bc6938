package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/dbtestlabs/shoal/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("connection refused"),
		},
		{
			name: "error with special chars",
			err:  errors.New("dial tcp 127.0.0.1:5432: refused!"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("fixture   is   down"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("fixture__down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errToLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("fixture_down")
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("setup", nil)

	// Test with actual error
	RecordErrorDetails("setup", errors.New("port range exhausted"))
}

func TestRecordTest(t *testing.T) {
	RecordTest("core", "run1", "sql_test", types.TestStatusPass)
	RecordTest("core", "run1", "sql_test", types.TestStatusFail)

	// Invalid statuses are dropped without panicking.
	RecordTest("core", "run1", "sql_test", types.TestStatus("bogus"))
	RecordTest("core", "run1", "sql_test", types.TestStatusPending)
}

func TestRecordSuite(t *testing.T) {
	RecordSuite("core", "run1", "pass", 10, 0, time.Second)
	RecordSuite("core", "run1", "fail", 10, 2, 2*time.Second)
}

func TestRecordFixtureFailure(t *testing.T) {
	RecordFixtureFailure("core", "StandaloneFixture")
}
