package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = limits{maxTurns: 10, maxToolErrors: 3}

func apply(s State, events ...event) State {
	for _, ev := range events {
		s = transition(s, ev, testLimits)
	}
	return s
}

func TestTransition_ReplyWithoutToolCallsIsDone(t *testing.T) {
	s := apply(State{}, modelReplied{toolCalls: 0})
	assert.Equal(t, Done, s.Phase)
	assert.Equal(t, 1, s.Turns)
}

func TestTransition_TerminalSuccessEndsAfterBatch(t *testing.T) {
	s := apply(State{}, modelReplied{toolCalls: 2}, toolSucceeded{terminal: true})
	require.Equal(t, ProcessingToolCalls, s.Phase, "rest of the batch is still processed")
	s = apply(s, toolSucceeded{}, batchFinished{})
	assert.Equal(t, Done, s.Phase)
}

func TestTransition_NonTerminalBatchAsksModelAgain(t *testing.T) {
	s := apply(State{}, modelReplied{toolCalls: 1}, toolSucceeded{}, batchFinished{})
	assert.Equal(t, AwaitingModel, s.Phase)
}

func TestTransition_TerminalFailureIsImmediatelyFatal(t *testing.T) {
	boom := errors.New("boom")
	s := apply(State{}, modelReplied{toolCalls: 1}, toolFailed{name: "post_tweet", terminal: true, err: boom})
	require.Equal(t, FatalError, s.Phase)
	assert.Equal(t, 1, s.ToolErrors)

	var toolErr *ToolError
	require.ErrorAs(t, s.Err, &toolErr)
	assert.Equal(t, "post_tweet", toolErr.Function)
	assert.ErrorIs(t, s.Err, boom)
}

func TestTransition_BudgetIsSharedAcrossTurns(t *testing.T) {
	fail := toolFailed{name: "get_mentions", err: errors.New("timeout")}
	s := apply(State{}, modelReplied{toolCalls: 2}, fail, fail, batchFinished{})
	require.Equal(t, AwaitingModel, s.Phase)
	assert.Equal(t, 2, s.ToolErrors)

	s = apply(s, modelReplied{toolCalls: 1}, fail)
	assert.Equal(t, FatalError, s.Phase)
	assert.Equal(t, 3, s.ToolErrors)
}

func TestTransition_RateLimitIsNeverFatal(t *testing.T) {
	limited := toolFailed{name: "post_tweet", terminal: true, rateLimited: true, err: errors.New("429")}
	s := apply(State{}, modelReplied{toolCalls: 4}, limited, limited, limited, limited)
	assert.Equal(t, ProcessingToolCalls, s.Phase)
	assert.Equal(t, 4, s.ToolErrors)
}

func TestTransition_StructuredErrorsDoNotCount(t *testing.T) {
	s := apply(State{}, modelReplied{toolCalls: 5},
		toolReturnedError{}, toolReturnedError{}, toolReturnedError{}, toolReturnedError{}, toolReturnedError{},
		batchFinished{})
	assert.Equal(t, AwaitingModel, s.Phase)
	assert.Zero(t, s.ToolErrors)
}

func TestTransition_TurnLimit(t *testing.T) {
	s := State{}
	for i := 0; i < testLimits.maxTurns; i++ {
		s = apply(s, modelReplied{toolCalls: 1}, toolSucceeded{}, batchFinished{})
	}
	require.Equal(t, FatalError, s.Phase)
	assert.ErrorIs(t, s.Err, ErrTurnLimit)
	assert.Equal(t, testLimits.maxTurns, s.Turns)
}

func TestTransition_ModelFailure(t *testing.T) {
	s := apply(State{}, modelFailed{err: errors.New("503")})
	assert.Equal(t, FatalError, s.Phase)
	assert.ErrorContains(t, s.Err, "chat completion failed: 503")
}

func TestTransition_FinalStatesAbsorb(t *testing.T) {
	done := State{Phase: Done, Turns: 2}
	assert.Equal(t, done, apply(done, modelReplied{toolCalls: 1}, batchFinished{}))

	fatal := State{Phase: FatalError, Err: errors.New("x")}
	assert.Equal(t, fatal, apply(fatal, toolSucceeded{terminal: true}))
}

func TestTransition_UnexpectedEvent(t *testing.T) {
	s := apply(State{}, toolSucceeded{terminal: true})
	assert.Equal(t, FatalError, s.Phase)
	assert.ErrorIs(t, s.Err, errUnexpectedEvent)
	assert.Contains(t, s.Err.Error(), "awaiting_model")
}
