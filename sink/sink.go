// Package sink defines the contract between the reporter and the library
// that persists suite/test/attachment entities to durable report storage,
// along with a filesystem-backed implementation.
package sink

import (
	"github.com/reportsmith/reportsmith/types"
)

// Group is a handle to an open suite container. Tests and executables are
// attached to a group; Done finalizes and persists the container.
type Group interface {
	// Name returns the group's display name
	Name() string
	// Done closes the container and persists it
	Done() error
}

// TestHandle is a mutable handle to a started test entity. The reporter
// mutates Result() during the test lifecycle and calls Done once terminal.
type TestHandle interface {
	Result() *types.TestResult
	Done() error
}

// ExecutableHandle is a mutable handle to a started before/after executable
type ExecutableHandle interface {
	Result() *types.ExecutableResult
	Done() error
}

// Sink persists report entities. One sink instance belongs to one reporter
// instance; neither is safe for concurrent use.
type Sink interface {
	// StartGroup opens a suite container. A nil parent opens a root group.
	StartGroup(parent Group, name string) (Group, error)

	// StartTest attaches a test entity to a group and returns its handle
	StartTest(group Group, result *types.TestResult) (TestHandle, error)

	// StartExecutable attaches a before/after executable to a group
	StartExecutable(group Group, result *types.ExecutableResult) (ExecutableHandle, error)

	// WriteAttachment persists an attachment body and returns the stored
	// file name. HTML content gets an .html extension override since the
	// sink has no native HTML attachment type.
	WriteAttachment(name, contentType string, body []byte) (string, error)

	// WriteEnvironment persists the environment info map. Write-once.
	WriteEnvironment(info map[string]string) error

	// WriteCategories persists the failure-bucketing rules. Write-once.
	WriteCategories(categories []types.Category) error
}
