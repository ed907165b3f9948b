// Package classify normalizes the assorted failure shapes a test runner can
// deliver into a uniform (status, message, trace) triple. Classification is
// fully local and never fails for malformed input; the worst case degrades
// to a generic placeholder message.
package classify

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/reportsmith/reportsmith/types"
)

// genericMessage is used when no legible message can be recovered
const genericMessage = "An unknown error occurred"

// MatcherResult carries the rendered diagnostics of an assertion-library
// failure. Its presence distinguishes a failed assertion from a broken test.
type MatcherResult struct {
	Message string
}

// RunnerError is the structured failure shape delivered by the event stream
type RunnerError struct {
	Name    string
	Message string
	Stack   string
	Matcher *MatcherResult
}

// Error implements the error interface
func (e *RunnerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Name
}

// Classification is the uniform result of classifying one failure value
type Classification struct {
	Status  types.TestStatus
	Details types.StatusDetails
}

// Classify turns a raw failure value into a classification. The input may be
// a *RunnerError, a plain error, a thrown primitive, or arbitrarily nested
// slices of those; nested slices are flattened deeply and the first value is
// classified.
func Classify(v any) Classification {
	v = flatten(v)

	var status types.TestStatus
	var message, trace string

	switch err := v.(type) {
	case *RunnerError:
		if err.Matcher != nil {
			// Assertion failure: the first two rendered lines carry the
			// expected/received summary, the rest is detail.
			status = types.StatusFailed
			lines := strings.Split(err.Matcher.Message, "\n")
			if len(lines) > 2 {
				message = strings.Join(lines[:2], "\n")
			} else {
				message = err.Matcher.Message
			}
			if err.Stack != "" {
				trace = err.Stack
			} else if len(lines) > 2 {
				trace = strings.Join(lines[2:], "\n")
			}
		} else {
			status = types.StatusBroken
			message = err.Name
			if err.Stack != "" {
				trace = err.Stack
			} else {
				trace = err.Message
			}
		}
	case error:
		status = types.StatusBroken
		message = err.Error()
	default:
		status = types.StatusBroken
		if v != nil {
			trace = fmt.Sprint(v)
		}
	}

	// A trace without a message is more useful as the message itself
	if message == "" && trace != "" {
		message = trace
		trace = ""
	}

	// Avoid repeating the message verbatim inside the trace
	if message != "" && trace != "" && strings.Contains(trace, message) {
		trace = strings.TrimSpace(strings.Replace(trace, message, "", 1))
	}

	if message == "" {
		message = genericMessage
		if v != nil {
			trace = fmt.Sprint(v)
		}
	}

	return Classification{
		Status: status,
		Details: types.StatusDetails{
			Message: stripansi.Strip(message),
			Trace:   stripansi.Strip(trace),
		},
	}
}

// flatten descends into nested slices, returning the first non-slice value.
// Runners deliver hook failures as arrays of arrays of errors.
func flatten(v any) any {
	for {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return v
		}
		if rv.Len() == 0 {
			return nil
		}
		v = rv.Index(0).Interface()
	}
}
