package agent

import "errors"

// Configuration errors (spec.md §7): synchronous, returned immediately by
// the operation that violates the guard, never surfaced as AgentEvents.
var (
	// ErrAlreadyRunning is returned by Prompt/Continue when a run is already
	// in progress (spec.md §3: "a second prompt while streaming fails fast").
	ErrAlreadyRunning = errors.New("agent: a run is already in progress")

	// ErrNothingToContinue is returned by Continue when the log is empty or
	// ends with an assistant message (spec.md §4.6).
	ErrNothingToContinue = errors.New("agent: nothing to continue: log is empty or already ends with an assistant message")
)
