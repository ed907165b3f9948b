package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportsmith/reportsmith/annotations"
	"github.com/reportsmith/reportsmith/classify"
	"github.com/reportsmith/reportsmith/sink"
	"github.com/reportsmith/reportsmith/types"
)

// fakeSink records every sink interaction in memory
type fakeSink struct {
	groups      []*fakeGroup
	tests       []*fakeTest
	execs       []*fakeExec
	envWrites   int
	catWrites   int
	environment map[string]string
	categories  []types.Category
	attachments []string
}

type fakeGroup struct {
	name   string
	parent *fakeGroup
	closed bool
}

func (g *fakeGroup) Name() string { return g.name }
func (g *fakeGroup) Done() error  { g.closed = true; return nil }

type fakeTest struct {
	result *types.TestResult
	done   bool
}

func (t *fakeTest) Result() *types.TestResult { return t.result }
func (t *fakeTest) Done() error               { t.done = true; return nil }

type fakeExec struct {
	result *types.ExecutableResult
	done   bool
}

func (e *fakeExec) Result() *types.ExecutableResult { return e.result }
func (e *fakeExec) Done() error                     { e.done = true; return nil }

func (s *fakeSink) StartGroup(parent sink.Group, name string) (sink.Group, error) {
	var p *fakeGroup
	if parent != nil {
		p = parent.(*fakeGroup)
	}
	g := &fakeGroup{name: name, parent: p}
	s.groups = append(s.groups, g)
	return g, nil
}

func (s *fakeSink) StartTest(_ sink.Group, result *types.TestResult) (sink.TestHandle, error) {
	t := &fakeTest{result: result}
	s.tests = append(s.tests, t)
	return t, nil
}

func (s *fakeSink) StartExecutable(_ sink.Group, result *types.ExecutableResult) (sink.ExecutableHandle, error) {
	e := &fakeExec{result: result}
	s.execs = append(s.execs, e)
	return e, nil
}

func (s *fakeSink) WriteAttachment(name, contentType string, body []byte) (string, error) {
	s.attachments = append(s.attachments, name)
	return name + ".txt", nil
}

func (s *fakeSink) WriteEnvironment(info map[string]string) error {
	s.envWrites++
	s.environment = info
	return nil
}

func (s *fakeSink) WriteCategories(categories []types.Category) error {
	s.catWrites++
	s.categories = categories
	return nil
}

func newTestReporter(t *testing.T) (*Reporter, *fakeSink) {
	t.Helper()
	fs := &fakeSink{}
	r, err := New(Config{
		Sink:         fs,
		IssueBaseURL: "https://tracker/",
		TMSBaseURL:   "https://tms/",
		Environment:  map[string]string{"node": "20"},
	})
	require.NoError(t, err)
	return r, fs
}

func TestNew_WritesEnvironmentAndCategoriesOnce(t *testing.T) {
	_, fs := newTestReporter(t)

	assert.Equal(t, 1, fs.envWrites)
	assert.Equal(t, 1, fs.catWrites)
	assert.GreaterOrEqual(t, len(fs.categories), len(types.DefaultCategories()))
}

func TestNew_AppendsExtraCategories(t *testing.T) {
	fs := &fakeSink{}
	extra := types.Category{Name: "Infrastructure problems", MatchedStatuses: []types.TestStatus{types.StatusBroken}}
	_, err := New(Config{Sink: fs, Categories: []types.Category{extra}})
	require.NoError(t, err)

	require.NotEmpty(t, fs.categories)
	assert.Equal(t, extra, fs.categories[len(fs.categories)-1])
}

func TestNew_RequiresSink(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestReporter_TestLifecycle(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("login.spec.ts"))
	require.NoError(t, r.StartSuite("Login", []string{"logs in"}))
	require.NoError(t, r.StartTestCase(TestCase{Name: "logs in"}, WorkerState{WorkerID: "worker-1"}, "a/b/c.spec.ts"))
	require.NoError(t, r.PassTestCase())
	require.NoError(t, r.EndTest())
	require.NoError(t, r.EndSuite())
	require.NoError(t, r.EndSuite())

	require.Len(t, fs.tests, 1)
	result := fs.tests[0].result
	assert.Equal(t, "logs in", result.Name)
	assert.Equal(t, "logs in", result.FullName)
	assert.Equal(t, types.HistoryID("a/b/c.spec.ts", "logs in"), result.HistoryID)
	assert.Equal(t, types.StatusPassed, result.Status)
	assert.Equal(t, types.StageFinished, result.Stage)
	assert.True(t, fs.tests[0].done)

	labels := labelMap(result)
	assert.Equal(t, "worker-1", labels[types.LabelThread])
	assert.Equal(t, "a", labels[types.LabelParentSuite])
	assert.Equal(t, "b", labels[types.LabelSuite])
	assert.Equal(t, "c.spec.ts", labels[types.LabelSubSuite])

	for _, g := range fs.groups {
		assert.True(t, g.closed, "group %s left open", g.name)
	}
}

func TestReporter_NoStatusDowngrade(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	require.NoError(t, r.StartTestCase(TestCase{Name: "t"}, WorkerState{}, "f.spec.ts"))

	first := &classify.RunnerError{
		Matcher: &classify.MatcherResult{Message: "Expected: 1\nReceived: 2"},
	}
	require.NoError(t, r.FailTestCase(first))

	result := fs.tests[0].result
	require.Equal(t, types.StatusFailed, result.Status)
	firstDetails := result.StatusDetails

	// A later, weaker signal must not overwrite the original failure
	require.NoError(t, r.FailTestCase(&classify.RunnerError{Name: "TypeError", Stack: "late"}))
	assert.Equal(t, types.StatusFailed, result.Status)
	assert.Equal(t, firstDetails, result.StatusDetails)

	// Neither may a pass arriving after the failure
	require.NoError(t, r.PassTestCase())
	assert.Equal(t, types.StatusFailed, result.Status)
}

func TestReporter_BrokenFinishedIsTerminal(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	require.NoError(t, r.StartTestCase(TestCase{Name: "t"}, WorkerState{}, "f.spec.ts"))
	require.NoError(t, r.FailTestCase(&classify.RunnerError{Name: "TypeError", Stack: "TypeError: boom"}))

	result := fs.tests[0].result
	require.Equal(t, types.StatusBroken, result.Status)
	result.Stage = types.StageFinished

	require.NoError(t, r.FailTestCase(&classify.RunnerError{Name: "RangeError"}))
	assert.Equal(t, "TypeError", result.StatusDetails.Message)
}

func TestReporter_EndSuiteForceClosesChildren(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	require.NoError(t, r.StartSuite("suite", nil))
	require.NoError(t, r.StartTestCase(TestCase{Name: "left open"}, WorkerState{}, "f.spec.ts"))
	require.NoError(t, r.StartStep("step"))
	require.NoError(t, r.StartHook("afterEach"))

	require.NoError(t, r.EndSuite())

	assert.Equal(t, types.StageFinished, fs.tests[0].result.Stage)
	assert.True(t, fs.tests[0].done)
	require.Len(t, fs.execs, 1)
	assert.Equal(t, types.StageFinished, fs.execs[0].result.Stage)
	assert.Equal(t, 1, r.OpenSuites())
}

func TestReporter_LabelGatingByOrdinalIndex(t *testing.T) {
	r, fs := newTestReporter(t)
	zero, one := 0, 1

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	require.NoError(t, r.StartSuite("suite", []string{"first", "second"}))

	r.AddPendingAnnotation(annotations.Annotation{Name: "tag", Value: "for-first"}, &zero)
	r.AddPendingAnnotation(annotations.Annotation{Name: "tag", Value: "for-second"}, &one)

	require.NoError(t, r.StartTestCase(TestCase{Name: "first"}, WorkerState{}, "f.spec.ts"))
	require.NoError(t, r.PassTestCase())
	require.NoError(t, r.EndTest())

	labels := labelMap(fs.tests[0].result)
	assert.Equal(t, "for-first", labels[types.LabelTag])

	require.NoError(t, r.StartTestCase(TestCase{Name: "second"}, WorkerState{}, "f.spec.ts"))
	require.NoError(t, r.PassTestCase())
	require.NoError(t, r.EndTest())

	labels = labelMap(fs.tests[1].result)
	assert.Equal(t, "for-second", labels[types.LabelTag])

	for _, l := range fs.tests[0].result.Labels {
		assert.NotEqual(t, "for-second", l.Value, "index-1 label leaked onto test 0")
	}
}

func TestReporter_HookLifecycle(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))

	require.NoError(t, r.StartHook("beforeEach"))
	require.NoError(t, r.EndHook(nil))

	require.NoError(t, r.StartHook("afterAll"))
	require.NoError(t, r.EndHook(&classify.RunnerError{Name: "Error", Stack: "Error: teardown failed"}))

	require.Len(t, fs.execs, 2)
	passed, failed := fs.execs[0].result, fs.execs[1].result

	assert.Equal(t, types.HookBefore, passed.Type)
	assert.Equal(t, types.StatusPassed, passed.Status)
	assert.Equal(t, types.StageFinished, passed.Stage)

	assert.Equal(t, types.HookAfter, failed.Type)
	assert.Equal(t, types.StatusBroken, failed.Status)
	assert.Equal(t, "Error", failed.StatusDetails.Message)
}

func TestReporter_HookOutsideSuiteIsNoOp(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartHook("beforeEach"))
	assert.Empty(t, fs.execs)
	assert.True(t, IsInvalidState(r.EndHook(nil)))
}

func TestReporter_PendingTestCase(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	require.NoError(t, r.StartTestCase(TestCase{Name: "someday", Mode: "todo"}, WorkerState{}, "f.spec.ts"))
	require.NoError(t, r.PendingTestCase(TestCase{Name: "someday", Mode: "todo"}))
	require.NoError(t, r.EndTest())

	result := fs.tests[0].result
	assert.Equal(t, types.StatusSkipped, result.Status)
	assert.Equal(t, "Test ignored (todo)", result.StatusDetails.Message)
}

func TestReporter_DescriptionFromSource(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	source := `/**
 * Covers the addition path.
 * @issue JIRA-1,JIRA-2
 * @tag math
 */
const sum = add(1, 2);
expect(sum).toBe(3);`
	require.NoError(t, r.StartTestCase(TestCase{Name: "adds", Source: source}, WorkerState{}, "f.spec.ts"))

	result := fs.tests[0].result
	assert.Contains(t, result.Description, "Covers the addition path.")
	assert.Contains(t, result.Description, "```ts")
	assert.Contains(t, result.Description, "expect(sum).toBe(3);")
	assert.NotContains(t, result.Description, "@issue")

	require.Len(t, result.Links, 2)
	assert.Equal(t, "https://tracker/JIRA-1", result.Links[0].URL)
	assert.Equal(t, "https://tracker/JIRA-2", result.Links[1].URL)
	assert.Equal(t, "math", labelMap(result)[types.LabelTag])
}

func TestReporter_DescriptionPlaceholderWithoutSource(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	require.NoError(t, r.StartTestCase(TestCase{Name: "opaque"}, WorkerState{}, "f.spec.ts"))

	assert.Equal(t, "Code is not available.", fs.tests[0].result.Description)
}

func TestReporter_InvalidStateErrors(t *testing.T) {
	r, _ := newTestReporter(t)

	assert.True(t, IsInvalidState(r.EndSuite()))
	assert.True(t, IsInvalidState(r.EndHook(nil)))
	assert.True(t, IsInvalidState(r.PassTestCase()))
	assert.True(t, IsInvalidState(r.PendingTestCase(TestCase{})))
	assert.True(t, IsInvalidState(r.FailTestCase(nil)))
	assert.True(t, IsInvalidState(r.EndTest()))
	assert.True(t, IsInvalidState(r.StartStep("s")))
	assert.True(t, IsInvalidState(r.EndStep(types.StatusPassed)))
	assert.True(t, IsInvalidState(r.StartTestCase(TestCase{Name: "t"}, WorkerState{}, "p")))
}

func TestReporter_AttachmentsRouteToOpenEntity(t *testing.T) {
	r, fs := newTestReporter(t)

	require.NoError(t, r.StartTestFile("f.spec.ts"))
	require.NoError(t, r.StartTestCase(TestCase{Name: "t"}, WorkerState{}, "f.spec.ts"))
	require.NoError(t, r.AddAttachment("stdout", "text/plain", []byte("hello")))

	require.Len(t, fs.tests[0].result.Attachments, 1)
	assert.Equal(t, "stdout", fs.tests[0].result.Attachments[0].Name)

	require.NoError(t, r.StartHook("afterEach"))
	require.NoError(t, r.AddAttachment("hook-log", "text/plain", []byte("bye")))
	assert.Contains(t, fs.execs[0].result.StatusDetails.Trace, "hook-log")
}

func labelMap(tr *types.TestResult) map[string]string {
	m := make(map[string]string, len(tr.Labels))
	for _, l := range tr.Labels {
		m[l.Name] = l.Value
	}
	return m
}
