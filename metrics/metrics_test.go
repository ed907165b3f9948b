package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/reportsmith/reportsmith/types"
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
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordFunctionsDoNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("metric recorder panic'd: %v", r)
		}
	}()

	RecordError("test_error")
	RecordErrorDetails("label", errors.New("boom"))
	RecordEvent("testPass")
	RecordUnknownEvent("mystery")
	RecordMalformedLine()
	RecordHookFailure()
	RecordTest("run-1", types.StatusPassed)
	RecordRun("run-1", "passed", time.Second)
}

func TestRecordTest_RejectsInvalidStatus(t *testing.T) {
	// An unresolved status must not become a metric label
	RecordTest("run-1", types.StatusUnset)
}
