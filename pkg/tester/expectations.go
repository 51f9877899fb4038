package tester

import (
	"fmt"
	"sync"

	"github.com/devicelab-dev/visual-diff/pkg/report"
)

// Expectations is an Asserter that records failures instead of reporting them
// to a test framework. Hosts without *testing.T (the CLI) read the failures
// back with Take when a spec ends.
type Expectations struct {
	mu       sync.Mutex
	failures []report.Expectation
	checks   int
}

// LessOrEqual records a failure when actual > threshold.
func (e *Expectations) LessOrEqual(actual, threshold float64, msgAndArgs ...interface{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checks++
	if actual <= threshold {
		return true
	}
	e.failures = append(e.failures, report.Expectation{
		Message: withContext(fmt.Sprintf("%v is not less than or equal to %v", actual, threshold), msgAndArgs),
	})
	return false
}

// NoError records a failure when err is non-nil.
func (e *Expectations) NoError(err error, msgAndArgs ...interface{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checks++
	if err == nil {
		return true
	}
	e.failures = append(e.failures, report.Expectation{
		Message: withContext(fmt.Sprintf("Received unexpected error: %v", err), msgAndArgs),
	})
	return false
}

// Failed reports whether any assertion failed since the last Take.
func (e *Expectations) Failed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.failures) > 0
}

// Checks returns how many assertions ran since the last Take.
func (e *Expectations) Checks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checks
}

// Take returns the recorded failures and clears them.
func (e *Expectations) Take() []report.Expectation {
	e.mu.Lock()
	defer e.mu.Unlock()

	failures := e.failures
	e.failures = nil
	e.checks = 0
	return failures
}

// withContext appends the caller's message, formatted like testify's msgAndArgs.
func withContext(msg string, msgAndArgs []interface{}) string {
	extra := formatMsgAndArgs(msgAndArgs)
	if extra == "" {
		return msg
	}
	return extra + ": " + msg
}

func formatMsgAndArgs(msgAndArgs []interface{}) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%+v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}

var _ Asserter = (*Expectations)(nil)
