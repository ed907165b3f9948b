// Package exitcodes defines the standard exit codes used by reportsmith.
package exitcodes

// Exit code constants used by reportsmith
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every reported test passed
// * TestFailure (1): Used when the report records failed tests or hooks
// * RuntimeErr (2): Used for runtime errors such as panics or unreadable input
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
