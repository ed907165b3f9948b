package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TestStatus represents the possible outcomes of a test or hook
type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusBroken  TestStatus = "broken"
	StatusSkipped TestStatus = "skipped"
	// StatusUnset marks an entity whose outcome has not been resolved yet
	StatusUnset TestStatus = ""
)

// Stage tracks whether an entity is still executing or has completed
type Stage string

const (
	StageRunning  Stage = "running"
	StageFinished Stage = "finished"
)

// Well-known label names understood by report viewers
const (
	LabelParentSuite = "parentSuite"
	LabelSuite       = "suite"
	LabelSubSuite    = "subSuite"
	LabelPackage     = "package"
	LabelThread      = "thread"
	LabelTag         = "tag"
	LabelMilestone   = "milestone"
	LabelEpic        = "epic"
)

// Link types understood by report viewers
const (
	LinkTypeIssue = "issue"
	LinkTypeTMS   = "tms"
)

// Label is a (name, value) tag attached to a test for categorization.
// Index, when non-nil, is the ordinal position of the test the label was
// recorded for; it gates application so labels accumulated for concurrently
// running tests never bleed onto the wrong test.
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Index *int   `json:"-"`
}

// Link points from a test to an external resource (issue tracker, TMS)
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// StatusDetails carries the human-legible failure diagnostics for an entity
type StatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// Category is a write-once failure-bucketing rule consumed by the report sink
type Category struct {
	Name            string       `json:"name" yaml:"name"`
	MessageRegex    string       `json:"messageRegex,omitempty" yaml:"messageRegex,omitempty"`
	TraceRegex      string       `json:"traceRegex,omitempty" yaml:"traceRegex,omitempty"`
	MatchedStatuses []TestStatus `json:"matchedStatuses,omitempty" yaml:"matchedStatuses,omitempty"`
}

// DefaultCategories returns the fixed category set written at construction.
// Caller-supplied extras are appended after these.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:            "Assertion failures",
			MatchedStatuses: []TestStatus{StatusFailed},
		},
		{
			Name:            "Broken tests",
			MatchedStatuses: []TestStatus{StatusBroken},
		},
		{
			Name:            "Timeouts",
			MessageRegex:    ".*[Tt]imeout.*",
			MatchedStatuses: []TestStatus{StatusBroken, StatusFailed},
		},
	}
}

// Attachment references a persisted attachment body by its stored file name
type Attachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// TestResult captures one test entity as persisted by the report sink
type TestResult struct {
	UUID          string        `json:"uuid"`
	Name          string        `json:"name"`
	FullName      string        `json:"fullName"`
	HistoryID     string        `json:"historyId"`
	Status        TestStatus    `json:"status,omitempty"`
	Stage         Stage         `json:"stage"`
	StatusDetails StatusDetails `json:"statusDetails"`
	Description   string        `json:"description,omitempty"`
	Labels        []Label       `json:"labels"`
	Links         []Link        `json:"links"`
	Attachments   []Attachment  `json:"attachments,omitempty"`
	Start         int64         `json:"start"`
	Stop          int64         `json:"stop,omitempty"`
}

// AddLabel appends a label, dropping exact (name, value) duplicates
func (tr *TestResult) AddLabel(name, value string) {
	for _, l := range tr.Labels {
		if l.Name == name && l.Value == value {
			return
		}
	}
	tr.Labels = append(tr.Labels, Label{Name: name, Value: value})
}

// AddLink appends a link, dropping exact URL duplicates of the same type
func (tr *TestResult) AddLink(link Link) {
	for _, l := range tr.Links {
		if l.Type == link.Type && l.URL == link.URL {
			return
		}
	}
	tr.Links = append(tr.Links, link)
}

// HookType distinguishes setup from teardown executables
type HookType string

const (
	HookBefore HookType = "before"
	HookAfter  HookType = "after"
)

// HookTypeOf maps a runner hook name ("beforeAll", "afterEach", ...) onto
// the before/after executable type. Names that match neither prefix are
// treated as setup hooks.
func HookTypeOf(name string) HookType {
	if strings.HasPrefix(name, "after") {
		return HookAfter
	}
	return HookBefore
}

// ExecutableResult captures a hook (before/after) tracked with its own
// status, distinct from a test
type ExecutableResult struct {
	Name          string        `json:"name"`
	Type          HookType      `json:"-"`
	Status        TestStatus    `json:"status,omitempty"`
	Stage         Stage         `json:"stage"`
	StatusDetails StatusDetails `json:"statusDetails"`
	Start         int64         `json:"start"`
	Stop          int64         `json:"stop,omitempty"`
}

// StepResult is an ad-hoc nested executable unit inside a test. The step
// stack is not driven by the lifecycle event table; it is kept as an
// extension point for nested-step reporting.
type StepResult struct {
	Name          string        `json:"name"`
	Status        TestStatus    `json:"status,omitempty"`
	Stage         Stage         `json:"stage"`
	StatusDetails StatusDetails `json:"statusDetails"`
	Start         int64         `json:"start"`
	Stop          int64         `json:"stop,omitempty"`
}

// HistoryID derives the stable identity of one logical test across runs.
// It must be byte-identical for the same (testPath, testName) pair in any
// process, so history/trend comparison in the report sink keeps working.
func HistoryID(testPath, testName string) string {
	sum := sha256.Sum256([]byte(testPath + "." + testName))
	return hex.EncodeToString(sum[:])
}

// SuitePathLabels derives the 3-level suite breadcrumb from a runner-relative
// test file path, independent of the runner's own describe-block nesting.
// First segment becomes the parent suite (and package), last segment the
// sub-suite, and any middle segments join into the suite label.
func SuitePathLabels(testPath string) []Label {
	segments := splitPath(testPath)
	if len(segments) == 0 {
		return nil
	}

	labels := []Label{
		{Name: LabelParentSuite, Value: segments[0]},
		{Name: LabelPackage, Value: segments[0]},
	}
	if len(segments) > 1 {
		labels = append(labels, Label{Name: LabelSubSuite, Value: segments[len(segments)-1]})
	}
	if len(segments) > 2 {
		middle := strings.Join(segments[1:len(segments)-1], " > ")
		labels = append(labels, Label{Name: LabelSuite, Value: middle})
	}
	return labels
}

func splitPath(p string) []string {
	parts := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
