package orchestrator

import (
	"errors"
	"fmt"

	"github.com/pysugar/agent-nexus/internal/functions"
)

var (
	// ErrNoToolCalls means the model finished without calling any function.
	ErrNoToolCalls = errors.New("model made no tool calls")
	// ErrTerminalNotCalled means the last recorded call was not the trigger's function.
	ErrTerminalNotCalled = errors.New("model did not call the required function")
	// ErrTurnLimit means the conversation hit the turn ceiling first.
	ErrTurnLimit = errors.New("conversation turn limit reached")
)

// ToolError is a thrown tool failure that ended the conversation.
type ToolError struct {
	Function string
	Attempts int
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("function %s failed (tool error %d): %v", e.Function, e.Attempts, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// StructuredError is the terminal function's structured failure, surfaced
// after the conversation.
type StructuredError struct {
	Function string
	Result   *functions.Result
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("function %s failed (%s): %s", e.Function, e.Result.Code, e.Result.Error)
}
