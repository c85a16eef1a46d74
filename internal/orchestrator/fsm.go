package orchestrator

import (
	"errors"
	"fmt"
)

// Phase is where a conversation stands.
type Phase int

const (
	AwaitingModel Phase = iota
	ProcessingToolCalls
	Done
	FatalError
)

func (p Phase) String() string {
	switch p {
	case AwaitingModel:
		return "awaiting_model"
	case ProcessingToolCalls:
		return "processing_tool_calls"
	case Done:
		return "done"
	case FatalError:
		return "fatal_error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the loop state of one conversation. It is a value; transition
// returns a new one.
type State struct {
	Phase          Phase
	Turns          int
	ToolErrors     int
	TerminalCalled bool
	Err            error
}

type limits struct {
	maxTurns      int
	maxToolErrors int
}

type event interface{ isEvent() }

type modelReplied struct{ toolCalls int }

type modelFailed struct{ err error }

type toolSucceeded struct{ terminal bool }

// toolReturnedError is a structured failure result. It never counts against
// the error budget.
type toolReturnedError struct{}

type toolFailed struct {
	name        string
	terminal    bool
	rateLimited bool
	err         error
}

type batchFinished struct{}

func (modelReplied) isEvent()      {}
func (modelFailed) isEvent()       {}
func (toolSucceeded) isEvent()     {}
func (toolReturnedError) isEvent() {}
func (toolFailed) isEvent()        {}
func (batchFinished) isEvent()     {}

var errUnexpectedEvent = errors.New("unexpected conversation event")

// transition is the whole loop policy:
//   - a reply without tool calls ends the conversation;
//   - a thrown tool error is fatal when it came from the terminal function or
//     exhausts the budget, unless it is a rate limit;
//   - once the terminal function succeeded, the current batch is the last;
//   - the turn ceiling ends a conversation that never reached the terminal call.
func transition(s State, ev event, lim limits) State {
	if s.Phase == Done || s.Phase == FatalError {
		return s
	}

	switch e := ev.(type) {
	case modelReplied:
		if s.Phase != AwaitingModel {
			break
		}
		s.Turns++
		if e.toolCalls == 0 {
			s.Phase = Done
		} else {
			s.Phase = ProcessingToolCalls
		}
		return s

	case modelFailed:
		if s.Phase != AwaitingModel {
			break
		}
		s.Phase = FatalError
		s.Err = fmt.Errorf("chat completion failed: %w", e.err)
		return s

	case toolSucceeded:
		if s.Phase != ProcessingToolCalls {
			break
		}
		if e.terminal {
			s.TerminalCalled = true
		}
		return s

	case toolReturnedError:
		if s.Phase != ProcessingToolCalls {
			break
		}
		return s

	case toolFailed:
		if s.Phase != ProcessingToolCalls {
			break
		}
		s.ToolErrors++
		if (e.terminal || s.ToolErrors >= lim.maxToolErrors) && !e.rateLimited {
			s.Phase = FatalError
			s.Err = &ToolError{Function: e.name, Attempts: s.ToolErrors, Err: e.err}
		}
		return s

	case batchFinished:
		if s.Phase != ProcessingToolCalls {
			break
		}
		switch {
		case s.TerminalCalled:
			s.Phase = Done
		case s.Turns >= lim.maxTurns:
			s.Phase = FatalError
			s.Err = fmt.Errorf("%w after %d turns", ErrTurnLimit, s.Turns)
		default:
			s.Phase = AwaitingModel
		}
		return s
	}

	s.Err = fmt.Errorf("%w %T in phase %s", errUnexpectedEvent, ev, s.Phase)
	s.Phase = FatalError
	return s
}
