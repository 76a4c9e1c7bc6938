package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dbtestlabs/shoal/types"
)

const (
	MetricsNamespace = "shoal"
)

var (
	Debug                bool = true
	validStatuses             = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusError, types.TestStatusTimeout}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of test executions",
	}, []string{
		"suite",
		"run_id",
		"kind",
		"status",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of suite runs",
	}, []string{
		"suite",
		"run_id",
		"result",
	})

	suiteTestsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_tests_run",
		Help:      "Total number of tests run per suite",
	}, []string{
		"suite",
		"run_id",
	})

	suiteTestsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_tests_failed",
		Help:      "Number of failed tests per suite",
	}, []string{
		"suite",
		"run_id",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration",
		Help:      "Duration of suite runs",
	}, []string{
		"suite",
		"run_id",
	})

	fixtureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "fixture_failures_total",
		Help:      "Count of deployments found dead or failing to start",
	}, []string{
		"suite",
		"class",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordTest(suite string, runID string, kind string, status types.TestStatus) {
	if !isValidStatus(status) {
		log.Error("RecordTest - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"suite", suite,
			"run_id", runID,
			"kind", kind,
			"status", status)
	}
	testsTotal.WithLabelValues(suite, runID, kind, string(status)).Inc()
}

func RecordSuite(
	suite string,
	runID string,
	result string,
	run int,
	failed int,
	duration time.Duration,
) {
	suiteResults.WithLabelValues(suite, runID, result).Set(1)
	suiteTestsRun.WithLabelValues(suite, runID).Add(float64(run))
	suiteTestsFailed.WithLabelValues(suite, runID).Add(float64(failed))
	suiteDuration.WithLabelValues(suite, runID).Set(duration.Seconds())
}

func RecordFixtureFailure(suite string, class string) {
	fixtureFailuresTotal.WithLabelValues(suite, class).Inc()
}

func isValidStatus(status types.TestStatus) bool {
	return slices.Contains(validStatuses, status)
}
