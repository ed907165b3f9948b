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

	"github.com/reportsmith/reportsmith/types"
)

const (
	MetricsNamespace = "reportsmith"
)

var (
	Debug                bool = true
	validStatuses             = []types.TestStatus{types.StatusPassed, types.StatusFailed, types.StatusBroken, types.StatusSkipped}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_total",
		Help:      "Count of processed runner lifecycle events",
	}, []string{
		"kind",
	})

	unknownEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "unknown_events_total",
		Help:      "Count of skipped events of unrecognized kinds",
	}, []string{
		"kind",
	})

	malformedLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "malformed_lines_total",
		Help:      "Count of event stream lines that failed to decode",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of reported tests by resolved status",
	}, []string{
		"run_id",
		"status",
	})

	hookFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "hook_failures_total",
		Help:      "Count of before/after hooks that failed",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of report runs",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration",
		Help:      "Duration of report runs",
	}, []string{
		"run_id",
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

// RecordEvent counts one processed lifecycle event
func RecordEvent(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// RecordUnknownEvent counts one skipped event of an unrecognized kind
func RecordUnknownEvent(kind string) {
	if Debug {
		log.Debug("metric inc", "m", "unknown_events_total", "kind", kind)
	}
	unknownEventsTotal.WithLabelValues(kind).Inc()
}

// RecordMalformedLine counts one undecodable event stream line
func RecordMalformedLine() {
	malformedLinesTotal.Inc()
}

// RecordHookFailure counts one failed before/after hook
func RecordHookFailure() {
	hookFailuresTotal.Inc()
}

// RecordTest counts one test resolving with the given status
func RecordTest(runID string, status types.TestStatus) {
	if !isValidStatus(status) {
		log.Error("RecordTest - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"run_id", runID,
			"status", status)
	}
	testsTotal.WithLabelValues(runID, string(status)).Inc()
}

// RecordRun records the outcome of one whole report run
func RecordRun(runID string, result string, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidStatus(status types.TestStatus) bool {
	return slices.Contains(validStatuses, status)
}
