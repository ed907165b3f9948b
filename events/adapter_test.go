package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportsmith/reportsmith/reporter"
	"github.com/reportsmith/reportsmith/sink"
	"github.com/reportsmith/reportsmith/types"
)

func newTestAdapter(t *testing.T) (*Adapter, string) {
	t.Helper()
	dir := t.TempDir()
	fileSink, err := sink.NewFileSink(dir, log.New())
	require.NoError(t, err)
	r, err := reporter.New(reporter.Config{Sink: fileSink})
	require.NoError(t, err)
	return NewAdapter(r, "run-1", log.New()), dir
}

func readResults(t *testing.T, dir string) []types.TestResult {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*-result.json"))
	require.NoError(t, err)

	results := make([]types.TestResult, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		var tr types.TestResult
		require.NoError(t, json.Unmarshal(data, &tr))
		results = append(results, tr)
	}
	return results
}

func TestAdapter_Run_FullStream(t *testing.T) {
	a, dir := newTestAdapter(t)

	stream := strings.Join([]string{
		`{"kind":"fileStart","name":"math.spec.ts"}`,
		`{"kind":"suiteStart","name":"addition","tests":["adds","overflows"]}`,
		`{"kind":"hookStart","name":"beforeEach"}`,
		`{"kind":"hookPass"}`,
		`{"kind":"testReady","name":"adds","testPath":"math/addition/math.spec.ts","workerId":"1"}`,
		`{"kind":"testPass"}`,
		`{"kind":"testDone"}`,
		`{"kind":"testReady","name":"overflows","testPath":"math/addition/math.spec.ts","workerId":"1"}`,
		`{"kind":"testFail","error":{"name":"Error","matcherMessage":"Expected: 1\nReceived: 2\nat math.spec.ts:4"}}`,
		`{"kind":"testDone"}`,
		`{"kind":"suiteEnd"}`,
		`{"kind":"fileEnd"}`,
	}, "\n")

	require.NoError(t, a.Run(strings.NewReader(stream)))

	summary := a.Summary()
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Suites)
	assert.Equal(t, 2, summary.Tests)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, summary.HasFailures())

	results := readResults(t, dir)
	require.Len(t, results, 2)

	byName := map[string]types.TestResult{}
	for _, r := range results {
		byName[r.Name] = r
	}

	passed := byName["adds"]
	assert.Equal(t, types.StatusPassed, passed.Status)
	assert.Equal(t, types.StageFinished, passed.Stage)
	assert.Equal(t, types.HistoryID("math/addition/math.spec.ts", "adds"), passed.HistoryID)

	failed := byName["overflows"]
	assert.Equal(t, types.StatusFailed, failed.Status)
	assert.Equal(t, "Expected: 1\nReceived: 2", failed.StatusDetails.Message)
	assert.Contains(t, failed.StatusDetails.Trace, "at math.spec.ts:4")
}

func TestAdapter_Run_SkipsMalformedLines(t *testing.T) {
	a, _ := newTestAdapter(t)

	stream := strings.Join([]string{
		`{"kind":"fileStart","name":"f.spec.ts"}`,
		`this is not json`,
		`{"kind":"fileEnd"}`,
	}, "\n")

	require.NoError(t, a.Run(strings.NewReader(stream)))
	assert.Equal(t, 1, a.Summary().MalformedLines)
}

func TestAdapter_UnknownKindIsCountedAndSkipped(t *testing.T) {
	a, _ := newTestAdapter(t)

	require.NoError(t, a.Handle(Event{Kind: "somethingNew"}))
	assert.Equal(t, 1, a.Summary().UnknownEvents)
}

func TestAdapter_PendingTest(t *testing.T) {
	a, dir := newTestAdapter(t)

	require.NoError(t, a.Handle(Event{Kind: KindFileStart, Name: "f.spec.ts"}))
	require.NoError(t, a.Handle(Event{Kind: KindTestPending, Name: "later", TestPath: "f.spec.ts", Mode: "todo"}))
	require.NoError(t, a.Handle(Event{Kind: KindTestDone}))
	require.NoError(t, a.Handle(Event{Kind: KindFileEnd}))

	assert.Equal(t, 1, a.Summary().Skipped)

	results := readResults(t, dir)
	require.Len(t, results, 1)
	assert.Equal(t, types.StatusSkipped, results[0].Status)
	assert.Equal(t, "Test ignored (todo)", results[0].StatusDetails.Message)
}

func TestAdapter_LateErrorOnTestDone(t *testing.T) {
	a, dir := newTestAdapter(t)

	require.NoError(t, a.Handle(Event{Kind: KindFileStart, Name: "f.spec.ts"}))
	require.NoError(t, a.Handle(Event{Kind: KindTestReady, Name: "snap", TestPath: "f.spec.ts"}))
	require.NoError(t, a.Handle(Event{Kind: KindTestPass}))
	require.NoError(t, a.Handle(Event{
		Kind:  KindTestDone,
		Error: &ErrorPayload{Name: "Error", MatcherMessage: "Snapshot mismatch\nReceived different value"},
	}))
	require.NoError(t, a.Handle(Event{Kind: KindFileEnd}))

	assert.Equal(t, 1, a.Summary().Failed)
	assert.Equal(t, 0, a.Summary().Passed)

	results := readResults(t, dir)
	require.Len(t, results, 1)
	assert.Equal(t, types.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].StatusDetails.Message, "Snapshot mismatch")
}

func TestAdapter_FailThenDoneNotDoubleCounted(t *testing.T) {
	a, _ := newTestAdapter(t)

	require.NoError(t, a.Handle(Event{Kind: KindFileStart, Name: "f.spec.ts"}))
	require.NoError(t, a.Handle(Event{Kind: KindTestReady, Name: "t", TestPath: "f.spec.ts"}))
	require.NoError(t, a.Handle(Event{Kind: KindTestFail, Error: &ErrorPayload{Name: "Error", Stack: "Error: boom"}}))
	require.NoError(t, a.Handle(Event{Kind: KindTestDone, Error: &ErrorPayload{Name: "Error", Stack: "Error: boom"}}))

	assert.Equal(t, 1, a.Summary().Failed)
}

func TestAdapter_HookFailureWithoutPayload(t *testing.T) {
	a, _ := newTestAdapter(t)

	require.NoError(t, a.Handle(Event{Kind: KindFileStart, Name: "f.spec.ts"}))
	require.NoError(t, a.Handle(Event{Kind: KindHookStart, Name: "beforeAll"}))
	require.NoError(t, a.Handle(Event{Kind: KindHookFail}))

	assert.Equal(t, 1, a.Summary().HookFailures)
}

func TestAdapter_StateViolationAbortsStream(t *testing.T) {
	a, _ := newTestAdapter(t)

	// testReady without any open suite is an adapter ordering bug
	err := a.Run(strings.NewReader(`{"kind":"testReady","name":"t","testPath":"f.spec.ts"}`))
	require.Error(t, err)
	assert.True(t, reporter.IsInvalidState(err))
}

func TestAdapter_FileEndUnwindsNestedSuites(t *testing.T) {
	a, dir := newTestAdapter(t)

	require.NoError(t, a.Handle(Event{Kind: KindFileStart, Name: "f.spec.ts"}))
	require.NoError(t, a.Handle(Event{Kind: KindSuiteStart, Name: "outer"}))
	require.NoError(t, a.Handle(Event{Kind: KindSuiteStart, Name: "inner"}))
	require.NoError(t, a.Handle(Event{Kind: KindFileEnd}))

	containers, err := filepath.Glob(filepath.Join(dir, "*-container.json"))
	require.NoError(t, err)
	assert.Len(t, containers, 3)
}
