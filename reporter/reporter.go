// Package reporter implements the event-to-report state machine. A Reporter
// receives lifecycle operations in arrival order, maintains the currently
// open suite/test/step/hook context, and issues creation and mutation calls
// to the report sink.
//
// One Reporter instance is driven by one single-threaded event stream; it is
// not safe for concurrent use. Correctness depends on operations arriving in
// exactly the order the runner delivered its events.
package reporter

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/reportsmith/reportsmith/annotations"
	"github.com/reportsmith/reportsmith/classify"
	"github.com/reportsmith/reportsmith/sink"
	"github.com/reportsmith/reportsmith/types"
)

// DefaultLinkBaseURL is used for issue and TMS links when no tracker is
// configured; it points at the project documentation so links stay valid.
const DefaultLinkBaseURL = "https://github.com/reportsmith/reportsmith#"

// InvalidStateError reports a lifecycle operation invoked with no matching
// open suite/test/executable. It indicates an adapter ordering bug, not a
// test failure, so it is surfaced immediately rather than recorded.
type InvalidStateError struct {
	Op     string
	Entity string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: no %s is currently open", e.Op, e.Entity)
}

// IsInvalidState checks if the error is or wraps an InvalidStateError
func IsInvalidState(err error) bool {
	var stateErr *InvalidStateError
	return err != nil && errors.As(err, &stateErr)
}

// TestCase identifies one test as delivered by the runner
type TestCase struct {
	// Name is the test's display name
	Name string
	// Source is the serialized body of the test function; empty when the
	// runner could not recover it
	Source string
	// Mode names the skip mode for pending tests ("skip", "todo")
	Mode string
}

// WorkerState carries per-worker runner state relevant to reporting
type WorkerState struct {
	// WorkerID identifies the worker process executing the test, when known
	WorkerID string
}

// Config is the reporter construction surface
type Config struct {
	Log  log.Logger
	Sink sink.Sink

	// IssueBaseURL prefixes issue annotation values; defaults to the
	// project documentation URL
	IssueBaseURL string
	// TMSBaseURL prefixes tms annotation values; same default
	TMSBaseURL string
	// Environment is written once to the sink at construction
	Environment map[string]string
	// Categories are appended to the default failure-bucketing rules
	Categories []types.Category
	// OmitSource disables embedding test source in descriptions
	OmitSource bool
	// Formatter pretty-prints extracted source snippets; defaults to a
	// trim-only passthrough
	Formatter annotations.Formatter
}

// pendingAnnotation is an annotation accumulated while tests run
// concurrently, kept until a test with a matching ordinal index applies it
type pendingAnnotation struct {
	annotation annotations.Annotation
	index      *int
}

// openTest pairs a sink handle with the identity needed for label gating
type openTest struct {
	handle sink.TestHandle
	name   string
}

// Reporter is the report context stack manager. The four stacks are the only
// mutable state; the exported operations are their only mutators.
type Reporter struct {
	log       log.Logger
	sink      sink.Sink
	mapper    annotations.Mapper
	formatter annotations.Formatter

	omitSource bool

	suites      []sink.Group
	tests       []*openTest
	steps       []*types.StepResult
	currentExec sink.ExecutableHandle

	// testNames is the ordered list of known test identities recorded at
	// StartSuite, read (never mutated) during label application
	testNames []string
	pending   []pendingAnnotation
}

// New creates a Reporter and writes the write-once environment info and
// category definitions to the sink.
func New(cfg Config) (*Reporter, error) {
	if cfg.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.IssueBaseURL == "" {
		cfg.IssueBaseURL = DefaultLinkBaseURL
	}
	if cfg.TMSBaseURL == "" {
		cfg.TMSBaseURL = DefaultLinkBaseURL
	}
	if cfg.Formatter == nil {
		cfg.Formatter = annotations.PassthroughFormatter{}
	}

	r := &Reporter{
		log:        cfg.Log,
		sink:       cfg.Sink,
		mapper:     annotations.Mapper{IssueBaseURL: cfg.IssueBaseURL, TMSBaseURL: cfg.TMSBaseURL},
		formatter:  cfg.Formatter,
		omitSource: cfg.OmitSource,
	}

	if len(cfg.Environment) > 0 {
		if err := r.sink.WriteEnvironment(cfg.Environment); err != nil {
			return nil, fmt.Errorf("failed to write environment info: %w", err)
		}
	}
	categories := append(types.DefaultCategories(), cfg.Categories...)
	if err := r.sink.WriteCategories(categories); err != nil {
		return nil, fmt.Errorf("failed to write categories: %w", err)
	}

	return r, nil
}

// StartTestFile opens a root suite named after the test file
func (r *Reporter) StartTestFile(name string) error {
	group, err := r.sink.StartGroup(nil, name)
	if err != nil {
		return fmt.Errorf("failed to open root suite %q: %w", name, err)
	}
	r.suites = append(r.suites, group)
	r.log.Debug("Opened test file", "name", name)
	return nil
}

// StartSuite opens a nested suite in the current scope (root if none). When
// tests is non-empty it becomes the ordered list of known test identities
// used for ordinal label gating.
func (r *Reporter) StartSuite(name string, tests []string) error {
	group, err := r.sink.StartGroup(r.currentSuite(), name)
	if err != nil {
		return fmt.Errorf("failed to open suite %q: %w", name, err)
	}
	r.suites = append(r.suites, group)
	if len(tests) > 0 {
		r.testNames = tests
	}
	return nil
}

// EndSuite force-closes any open steps and tests, then closes and pops the
// current suite. Stacks stay strictly nested: nothing opened inside the
// suite survives it.
func (r *Reporter) EndSuite() error {
	if len(r.suites) == 0 {
		return &InvalidStateError{Op: "EndSuite", Entity: "suite"}
	}

	for len(r.steps) > 0 {
		if err := r.EndStep(types.StatusUnset); err != nil {
			return err
		}
	}
	for len(r.tests) > 0 {
		r.log.Warn("Force-closing test left open at suite end", "test", r.tests[len(r.tests)-1].name)
		if err := r.EndTest(); err != nil {
			return err
		}
	}
	if r.currentExec != nil {
		r.currentExec.Result().Stage = types.StageFinished
		if err := r.currentExec.Done(); err != nil {
			return err
		}
		r.currentExec = nil
	}

	group := r.suites[len(r.suites)-1]
	r.suites = r.suites[:len(r.suites)-1]
	return group.Done()
}

// StartHook opens a before/after executable on the current suite. With no
// suite open this is a logged no-op: hook events can arrive for files whose
// reporting already failed, and dropping them is safer than corrupting state.
func (r *Reporter) StartHook(hookType string) error {
	suite := r.currentSuite()
	if suite == nil {
		r.log.Warn("Ignoring hook outside any suite", "type", hookType)
		return nil
	}

	result := &types.ExecutableResult{
		Name:  hookType,
		Type:  types.HookTypeOf(hookType),
		Stage: types.StageRunning,
	}
	handle, err := r.sink.StartExecutable(suite, result)
	if err != nil {
		return fmt.Errorf("failed to open hook %q: %w", hookType, err)
	}
	r.currentExec = handle
	return nil
}

// EndHook resolves the open executable: a non-nil error is classified into
// FAILED/BROKEN with details, otherwise the hook passed.
func (r *Reporter) EndHook(errVal any) error {
	if r.currentExec == nil {
		return &InvalidStateError{Op: "EndHook", Entity: "executable"}
	}

	result := r.currentExec.Result()
	if errVal != nil {
		c := classify.Classify(errVal)
		result.Status = c.Status
		result.StatusDetails = c.Details
	} else {
		result.Status = types.StatusPassed
	}
	result.Stage = types.StageFinished

	err := r.currentExec.Done()
	r.currentExec = nil
	return err
}

// StartTestCase opens a test on the current suite: computes its history id,
// derives suite-hierarchy and thread labels, and extracts description and
// annotations from the test source when available.
func (r *Reporter) StartTestCase(test TestCase, state WorkerState, testPath string) error {
	suite := r.currentSuite()
	if suite == nil {
		return &InvalidStateError{Op: "StartTestCase", Entity: "suite"}
	}

	result := &types.TestResult{
		Name:      test.Name,
		FullName:  test.Name,
		HistoryID: types.HistoryID(testPath, test.Name),
		Stage:     types.StageRunning,
	}

	r.applySource(result, test.Source)

	if state.WorkerID != "" {
		result.AddLabel(types.LabelThread, state.WorkerID)
	}
	for _, label := range types.SuitePathLabels(testPath) {
		result.AddLabel(label.Name, label.Value)
	}

	handle, err := r.sink.StartTest(suite, result)
	if err != nil {
		return fmt.Errorf("failed to start test %q: %w", test.Name, err)
	}
	r.tests = append(r.tests, &openTest{handle: handle, name: test.Name})
	return nil
}

// applySource fills in the test description and directly-applied annotation
// metadata from the test's source text.
func (r *Reporter) applySource(result *types.TestResult, source string) {
	if source == "" {
		result.Description = annotations.BuildDescription("", "", !r.omitSource)
		return
	}

	meta := annotations.Extract(source)
	for _, a := range meta.Annotations {
		labels, links := r.mapper.Map(a)
		for _, l := range labels {
			result.AddLabel(l.Name, l.Value)
		}
		for _, l := range links {
			result.AddLink(l)
		}
	}

	formatted, err := r.formatter.Format(annotations.PrepareSource(meta.Source))
	if err != nil {
		r.log.Warn("Source formatter failed, embedding raw source", "err", err)
		formatted = meta.Source
	}
	result.Description = annotations.BuildDescription(meta.Description, formatted, !r.omitSource)
}

// PassTestCase applies pending labels and marks the current test passed.
// An already-failed test keeps its failure: a later pass signal is weaker
// than the failure context gathered earlier.
func (r *Reporter) PassTestCase() error {
	test, err := r.requireTest("PassTestCase")
	if err != nil {
		return err
	}
	r.applyPending(test)

	result := test.handle.Result()
	if result.Status == types.StatusFailed || result.Status == types.StatusBroken {
		return nil
	}
	result.Status = types.StatusPassed
	return nil
}

// PendingTestCase applies pending labels and marks the current test skipped,
// recording which skip mode applied.
func (r *Reporter) PendingTestCase(test TestCase) error {
	open, err := r.requireTest("PendingTestCase")
	if err != nil {
		return err
	}
	r.applyPending(open)

	mode := test.Mode
	if mode == "" {
		mode = "skip"
	}
	result := open.handle.Result()
	result.Status = types.StatusSkipped
	result.StatusDetails = types.StatusDetails{Message: fmt.Sprintf("Test ignored (%s)", mode)}
	return nil
}

// FailTestCase applies pending labels and records the classified failure.
// A test already FAILED, or BROKEN and finished, keeps its earlier richer
// failure context; the late signal is a no-op.
func (r *Reporter) FailTestCase(errVal any) error {
	test, err := r.requireTest("FailTestCase")
	if err != nil {
		return err
	}
	r.applyPending(test)

	result := test.handle.Result()
	if result.Status == types.StatusFailed {
		return nil
	}
	if result.Status == types.StatusBroken && result.Stage == types.StageFinished {
		return nil
	}

	c := classify.Classify(errVal)
	result.Status = c.Status
	result.StatusDetails = c.Details
	return nil
}

// EndTest finishes the current test and pops it off the stack
func (r *Reporter) EndTest() error {
	test, err := r.requireTest("EndTest")
	if err != nil {
		return err
	}
	test.handle.Result().Stage = types.StageFinished
	r.tests = r.tests[:len(r.tests)-1]
	return test.handle.Done()
}

// StartStep opens an ad-hoc step inside the current test. Steps are an
// extension point for nested-step reporting; no lifecycle event drives them.
func (r *Reporter) StartStep(name string) error {
	if _, err := r.requireTest("StartStep"); err != nil {
		return err
	}
	r.steps = append(r.steps, &types.StepResult{Name: name, Stage: types.StageRunning})
	return nil
}

// EndStep closes the current step with the given status
func (r *Reporter) EndStep(status types.TestStatus) error {
	if len(r.steps) == 0 {
		return &InvalidStateError{Op: "EndStep", Entity: "step"}
	}
	step := r.steps[len(r.steps)-1]
	r.steps = r.steps[:len(r.steps)-1]
	step.Status = status
	step.Stage = types.StageFinished
	return nil
}

// AddPendingAnnotation records an annotation gathered while tests run
// concurrently. It is applied to the test whose ordinal position in the
// suite's known test identities matches index; a nil index applies to the
// next test that resolves.
func (r *Reporter) AddPendingAnnotation(a annotations.Annotation, index *int) {
	r.pending = append(r.pending, pendingAnnotation{annotation: a, index: index})
}

// AddAttachment persists an attachment and references it from the current
// executable if one is open, otherwise the current test.
func (r *Reporter) AddAttachment(name, contentType string, body []byte) error {
	if r.currentExec == nil && len(r.tests) == 0 {
		return &InvalidStateError{Op: "AddAttachment", Entity: "test"}
	}

	filename, err := r.sink.WriteAttachment(name, contentType, body)
	if err != nil {
		return err
	}
	attachment := types.Attachment{Name: name, Source: filename, Type: contentType}

	if r.currentExec != nil {
		// Hook diagnostics land in the hook's status details; the
		// container format has no attachment slot of its own.
		result := r.currentExec.Result()
		if result.StatusDetails.Trace != "" {
			result.StatusDetails.Trace += "\n"
		}
		result.StatusDetails.Trace += fmt.Sprintf("attachment: %s (%s)", name, filename)
		return nil
	}
	result := r.tests[len(r.tests)-1].handle.Result()
	result.Attachments = append(result.Attachments, attachment)
	return nil
}

// applyPending maps accumulated annotations onto the test, keeping only the
// ones gated to a different test identity.
func (r *Reporter) applyPending(test *openTest) {
	if len(r.pending) == 0 {
		return
	}
	currentIndex := r.indexOf(test.name)

	result := test.handle.Result()
	remaining := r.pending[:0]
	for _, p := range r.pending {
		labels, links := r.mapper.MapIndexed(p.annotation, p.index, currentIndex)
		if labels == nil && links == nil && p.index != nil && *p.index != currentIndex {
			remaining = append(remaining, p)
			continue
		}
		for _, l := range labels {
			result.AddLabel(l.Name, l.Value)
		}
		for _, l := range links {
			result.AddLink(l)
		}
	}
	r.pending = remaining
}

// indexOf locates a test name in the suite's ordered known identities;
// unknown names get -1 so only ungated annotations apply to them.
func (r *Reporter) indexOf(name string) int {
	for i, n := range r.testNames {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *Reporter) currentSuite() sink.Group {
	if len(r.suites) == 0 {
		return nil
	}
	return r.suites[len(r.suites)-1]
}

func (r *Reporter) requireTest(op string) (*openTest, error) {
	if len(r.tests) == 0 {
		return nil, &InvalidStateError{Op: op, Entity: "test"}
	}
	return r.tests[len(r.tests)-1], nil
}

// OpenSuites reports how many suites are currently open. The adapter uses
// this at file end to unwind any suites the runner never closed explicitly.
func (r *Reporter) OpenSuites() int {
	return len(r.suites)
}
