// Package events defines the closed set of runner lifecycle events and the
// adapter that drives reporter operations from them.
package events

import (
	"encoding/json"

	"github.com/reportsmith/reportsmith/classify"
)

// Kind enumerates the recognized lifecycle events. The set is closed: a kind
// outside this enumeration is explicitly counted and skipped, never a silent
// default fallthrough.
type Kind string

const (
	// KindFileStart opens a test file's root suite
	KindFileStart Kind = "fileStart"
	// KindSuiteStart opens a describe block, including the implicit
	// top-level one
	KindSuiteStart Kind = "suiteStart"
	// KindSuiteEnd closes the innermost open suite
	KindSuiteEnd Kind = "suiteEnd"
	// KindHookStart opens a before/after hook executable
	KindHookStart Kind = "hookStart"
	// KindHookPass resolves the open hook as passed
	KindHookPass Kind = "hookPass"
	// KindHookFail resolves the open hook with a failure
	KindHookFail Kind = "hookFail"
	// KindTestPending reports a skipped/todo test
	KindTestPending Kind = "testPending"
	// KindTestReady fires after all beforeEach hooks and before the test
	// body, so setup time is not counted as test body
	KindTestReady Kind = "testReady"
	// KindTestPass reports a passing test body
	KindTestPass Kind = "testPass"
	// KindTestFail reports a failing test body
	KindTestFail Kind = "testFail"
	// KindTestDone closes the test, re-checking for late-arriving errors
	// such as snapshot mismatches
	KindTestDone Kind = "testDone"
	// KindFileEnd unwinds every suite still open for the file
	KindFileEnd Kind = "fileEnd"
)

// ErrorPayload is the wire shape of a failure attached to an event
type ErrorPayload struct {
	Name           string `json:"name,omitempty"`
	Message        string `json:"message,omitempty"`
	Stack          string `json:"stack,omitempty"`
	MatcherMessage string `json:"matcherMessage,omitempty"`
}

// runnerError converts the payload into the classifier's input shape
func (p *ErrorPayload) runnerError() *classify.RunnerError {
	err := &classify.RunnerError{
		Name:    p.Name,
		Message: p.Message,
		Stack:   p.Stack,
	}
	if p.MatcherMessage != "" {
		err.Matcher = &classify.MatcherResult{Message: p.MatcherMessage}
	}
	return err
}

// Event is one runner lifecycle event as delivered on the wire
type Event struct {
	Kind     Kind          `json:"kind"`
	Name     string        `json:"name,omitempty"`
	TestPath string        `json:"testPath,omitempty"`
	Tests    []string      `json:"tests,omitempty"`
	WorkerID string        `json:"workerId,omitempty"`
	Source   string        `json:"source,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

// parseEvent decodes one NDJSON line into an Event
func parseEvent(line []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}
