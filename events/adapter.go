package events

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/reportsmith/reportsmith/classify"
	"github.com/reportsmith/reportsmith/metrics"
	"github.com/reportsmith/reportsmith/reporter"
	"github.com/reportsmith/reportsmith/types"
)

// Summary aggregates what the adapter observed over one event stream
type Summary struct {
	Files          int
	Suites         int
	Tests          int
	Passed         int
	Failed         int
	Skipped        int
	HookFailures   int
	UnknownEvents  int
	MalformedLines int
}

// HasFailures reports whether any test body or hook failed
func (s Summary) HasFailures() bool {
	return s.Failed > 0 || s.HookFailures > 0
}

// Adapter subscribes to runner lifecycle events and calls reporter
// operations in the order and cardinality the state machine expects. Each
// recognized event kind maps onto exactly one operation sequence.
type Adapter struct {
	reporter *reporter.Reporter
	log      log.Logger
	runID    string

	summary Summary

	// currentStatus tracks the outcome of the open test as the adapter
	// observed it; the summary counts it exactly once, at testDone
	currentStatus types.TestStatus
	// currentCounted guards against double-counting when a test resolves
	// before its done event (pending tests) or fails twice
	currentCounted bool
}

// NewAdapter creates an adapter driving the given reporter
func NewAdapter(r *reporter.Reporter, runID string, logger log.Logger) *Adapter {
	if logger == nil {
		logger = log.New()
	}
	return &Adapter{reporter: r, log: logger, runID: runID}
}

// Summary returns what has been observed so far
func (a *Adapter) Summary() Summary {
	return a.summary
}

// Run decodes a newline-delimited JSON event stream and handles each event
// in arrival order. Undecodable lines are counted and skipped; a structural
// state-machine violation aborts the stream, since continuing would corrupt
// the report's nesting.
func (a *Adapter) Run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		event, err := parseEvent(line)
		if err != nil {
			a.summary.MalformedLines++
			metrics.RecordMalformedLine()
			a.log.Debug("Skipping malformed event line", "err", err)
			continue
		}
		if err := a.Handle(event); err != nil {
			return fmt.Errorf("event %q: %w", event.Kind, err)
		}
	}
	return scanner.Err()
}

// Handle routes one event to its reporter operation sequence
func (a *Adapter) Handle(ev Event) error {
	metrics.RecordEvent(string(ev.Kind))

	switch ev.Kind {
	case KindFileStart:
		a.summary.Files++
		return a.reporter.StartTestFile(ev.Name)

	case KindSuiteStart:
		a.summary.Suites++
		return a.reporter.StartSuite(ev.Name, ev.Tests)

	case KindSuiteEnd:
		return a.reporter.EndSuite()

	case KindHookStart:
		return a.reporter.StartHook(ev.Name)

	case KindHookPass:
		return a.reporter.EndHook(nil)

	case KindHookFail:
		a.summary.HookFailures++
		metrics.RecordHookFailure()
		return a.reporter.EndHook(failureOf(ev))

	case KindTestPending:
		a.summary.Tests++
		a.summary.Skipped++
		a.currentStatus = types.StatusSkipped
		a.currentCounted = true
		metrics.RecordTest(a.runID, types.StatusSkipped)
		testCase := testCaseOf(ev)
		if err := a.reporter.StartTestCase(testCase, workerStateOf(ev), ev.TestPath); err != nil {
			return err
		}
		return a.reporter.PendingTestCase(testCase)

	case KindTestReady:
		a.summary.Tests++
		a.currentStatus = types.StatusUnset
		a.currentCounted = false
		return a.reporter.StartTestCase(testCaseOf(ev), workerStateOf(ev), ev.TestPath)

	case KindTestPass:
		if a.currentStatus == types.StatusUnset {
			a.currentStatus = types.StatusPassed
		}
		return a.reporter.PassTestCase()

	case KindTestFail:
		a.currentStatus = types.StatusFailed
		return a.reporter.FailTestCase(failureOf(ev))

	case KindTestDone:
		// Late-arriving errors, e.g. snapshot mismatches reported after
		// the test body returned, still have to fail the test.
		if ev.Error != nil {
			a.currentStatus = types.StatusFailed
			if err := a.reporter.FailTestCase(failureOf(ev)); err != nil {
				return err
			}
		}
		a.countCurrentTest()
		return a.reporter.EndTest()

	case KindFileEnd:
		for a.reporter.OpenSuites() > 0 {
			if err := a.reporter.EndSuite(); err != nil {
				return err
			}
		}
		return nil

	default:
		a.summary.UnknownEvents++
		metrics.RecordUnknownEvent(string(ev.Kind))
		a.log.Debug("Ignoring unrecognized event kind", "kind", ev.Kind)
		return nil
	}
}

// countCurrentTest settles the open test's outcome into the summary exactly
// once. Pending tests were already counted when their pending event arrived.
func (a *Adapter) countCurrentTest() {
	if a.currentCounted {
		return
	}
	a.currentCounted = true

	switch a.currentStatus {
	case types.StatusPassed:
		a.summary.Passed++
		metrics.RecordTest(a.runID, types.StatusPassed)
	case types.StatusFailed:
		a.summary.Failed++
		metrics.RecordTest(a.runID, types.StatusFailed)
	}
}

func testCaseOf(ev Event) reporter.TestCase {
	return reporter.TestCase{
		Name:   ev.Name,
		Source: ev.Source,
		Mode:   ev.Mode,
	}
}

func workerStateOf(ev Event) reporter.WorkerState {
	return reporter.WorkerState{WorkerID: ev.WorkerID}
}

// failureOf extracts the classifier input from an event. Failure events
// without a payload still classify to a legible BROKEN placeholder.
func failureOf(ev Event) any {
	if ev.Error == nil {
		return &classify.RunnerError{}
	}
	return ev.Error.runnerError()
}
