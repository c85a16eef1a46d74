// Package orchestrator drives the tool-calling conversation that executes a
// trigger: the model gathers context with auxiliary tools and must finish by
// calling the trigger's terminal function.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/llm"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/upstream"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultMaxTurns      = 10
	DefaultMaxToolErrors = 3
)

// Dispatcher executes one function call within an execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, exec *functions.Execution, name string, args functions.Args) (*functions.Result, error)
}

type Config struct {
	Model         string
	MaxTurns      int
	MaxToolErrors int
}

type Orchestrator struct {
	chat       llm.ChatClient
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger
}

func New(chat llm.ChatClient, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxToolErrors <= 0 {
		cfg.MaxToolErrors = DefaultMaxToolErrors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{chat: chat, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Request is one trigger execution. Tools should include Terminal.
type Request struct {
	Agent     models.Agent
	Trigger   models.AgentTrigger
	Terminal  models.Function
	Tools     []models.Function
	Execution *functions.Execution
}

// Call is one recorded tool call.
type Call struct {
	Name   string            `json:"name"`
	Args   functions.Args    `json:"args"`
	Result *functions.Result `json:"result"`
}

// Outcome is everything the conversation produced. It is returned even when
// Run fails so the transcript can be logged.
type Outcome struct {
	Result   *functions.Result              `json:"result,omitempty"`
	Calls    []Call                         `json:"calls"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
	Turns    int                            `json:"turns"`
}

// Run converses until the terminal function has been called, then returns
// its result, executing it once more only if the in-conversation call did
// not succeed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Execution == nil {
		req.Execution = functions.NewExecution(req.Agent.ID, req.Trigger.ID, nil)
	}
	logger := logging.FromContext(ctx, o.logger).With("agent_id", req.Agent.ID, "function", req.Terminal.Name)

	out := &Outcome{Messages: seedMessages(req)}
	tools := functions.Tools(req.Tools)
	lim := limits{maxTurns: o.cfg.MaxTurns, maxToolErrors: o.cfg.MaxToolErrors}
	state := State{Phase: AwaitingModel}

	for state.Phase == AwaitingModel {
		msg, err := o.complete(ctx, out.Messages, tools)
		if err != nil {
			state = transition(state, modelFailed{err: err}, lim)
			break
		}
		out.Messages = append(out.Messages, msg)
		state = transition(state, modelReplied{toolCalls: len(msg.ToolCalls)}, lim)

		for _, tc := range msg.ToolCalls {
			if state.Phase != ProcessingToolCalls {
				break
			}
			state = o.handleToolCall(ctx, logger, req, tc, state, lim, out)
		}
		state = transition(state, batchFinished{}, lim)
	}
	out.Turns = state.Turns

	if state.Phase == FatalError {
		logger.Error("conversation failed", "turns", state.Turns, "tool_errors", state.ToolErrors, "error", state.Err)
		return out, state.Err
	}
	return o.finish(ctx, logger, req, out)
}

func (o *Orchestrator) complete(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	resp, err := o.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:      o.cfg.Model,
		Messages:   messages,
		Tools:      tools,
		ToolChoice: "auto",
	})
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("response has no choices")
	}
	msg := resp.Choices[0].Message
	if msg.Role == "" {
		msg.Role = openai.ChatMessageRoleAssistant
	}
	return msg, nil
}

func (o *Orchestrator) handleToolCall(
	ctx context.Context,
	logger *slog.Logger,
	req Request,
	tc openai.ToolCall,
	state State,
	lim limits,
	out *Outcome,
) State {
	name := tc.Function.Name
	terminal := name == req.Terminal.Name
	logger = logger.With("tool", name, "tool_call_id", tc.ID)

	args, err := functions.ParseArgs(tc.Function.Arguments)
	if err != nil {
		res := &functions.Result{Success: false, Error: err.Error(), Code: functions.CodeInvalidArguments, OriginalError: tc.Function.Arguments}
		logger.Warn("tool call has malformed arguments", "error", err)
		out.Calls = append(out.Calls, Call{Name: name, Result: res})
		out.Messages = append(out.Messages, toolMessage(tc.ID, res))
		return transition(state, toolReturnedError{}, lim)
	}

	res, err := o.dispatcher.Dispatch(ctx, req.Execution, name, args)
	if err != nil {
		rateLimited := upstream.IsRateLimited(err)
		state = transition(state, toolFailed{name: name, terminal: terminal, rateLimited: rateLimited, err: err}, lim)
		logger.Warn("tool call failed", "error", err, "rate_limited", rateLimited, "tool_errors", state.ToolErrors)
		if state.Phase == ProcessingToolCalls {
			out.Messages = append(out.Messages, toolErrorMessage(tc.ID, err, rateLimited, upstream.RetryAfter(err)))
		}
		return state
	}

	out.Calls = append(out.Calls, Call{Name: name, Args: args, Result: res})
	out.Messages = append(out.Messages, toolMessage(tc.ID, res))

	if !res.Success {
		logger.Warn("tool returned an error result", "code", res.Code, "error", res.Error)
		return transition(state, toolReturnedError{}, lim)
	}
	if terminal {
		logger.Info("terminal function executed", "synthetic", res.Synthetic)
	}
	return transition(state, toolSucceeded{terminal: terminal}, lim)
}

// finish applies the post-loop rules to a conversation that ended cleanly.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, req Request, out *Outcome) (*Outcome, error) {
	if len(out.Calls) == 0 {
		logger.Error("conversation ended without tool calls", "turns", out.Turns)
		return out, ErrNoToolCalls
	}

	last := out.Calls[len(out.Calls)-1]
	if last.Name != req.Terminal.Name {
		sequence := make([]string, len(out.Calls))
		for i, c := range out.Calls {
			sequence[i] = c.Name
		}
		logger.Error("required function was not called last", "calls", sequence)
		return out, fmt.Errorf("%w: expected %s, last call was %s", ErrTerminalNotCalled, req.Terminal.Name, last.Name)
	}

	if last.Result != nil && last.Result.Success {
		out.Result = last.Result
		return out, nil
	}

	res, err := o.dispatcher.Dispatch(ctx, req.Execution, req.Terminal.Name, last.Args)
	if err != nil {
		return out, fmt.Errorf("execute %s: %w", req.Terminal.Name, err)
	}
	out.Result = res
	if !res.Success {
		logger.Error("terminal function failed", "code", res.Code, "error", res.Error)
		return out, &StructuredError{Function: req.Terminal.Name, Result: res}
	}
	return out, nil
}

func toolMessage(id string, res *functions.Result) openai.ChatCompletionMessage {
	content, err := json.Marshal(res)
	if err != nil {
		content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: id, Content: string(content)}
}

func toolErrorMessage(id string, err error, rateLimited bool, retryAfter time.Duration) openai.ChatCompletionMessage {
	body := map[string]interface{}{
		"success":  false,
		"error":    err.Error(),
		"guidance": "The call failed. Try a different approach or another tool.",
	}
	if rateLimited {
		guidance := "The provider is rate limiting this call. Avoid calling it again in this conversation."
		if secs := int(retryAfter.Round(time.Second) / time.Second); secs > 0 {
			guidance = fmt.Sprintf("The provider is rate limiting this call; retry after %d seconds. Avoid calling it again in this conversation.", secs)
			body["retry_after_seconds"] = secs
		}
		body["guidance"] = guidance
	}
	content, _ := json.Marshal(body)
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: id, Content: string(content)}
}
