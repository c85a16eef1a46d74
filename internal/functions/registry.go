package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/logging"
)

// maxPostLength is the X limit for a single post.
const maxPostLength = 280

// Handler performs one function call and returns the data handed back to the model.
type Handler func(ctx context.Context, exec *Execution, args Args) (interface{}, error)

type entry struct {
	kind     models.FunctionType
	required []string
	handle   Handler
}

// Deps are the shared adapters. Social is per execution and lives on Execution.
type Deps struct {
	Messenger Messenger
	Market    MarketData
	Chain     ChainReader
	Logger    *slog.Logger
}

// Registry is the lookup table from function name to implementation.
type Registry struct {
	entries map[Name]entry
	deps    Deps
	logger  *slog.Logger
}

func NewRegistry(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{deps: deps, logger: logger}
	r.entries = map[Name]entry{
		PostTweet:           {kind: models.FunctionTypeTrigger, required: []string{"text"}, handle: r.postTweet},
		ReplyToTweet:        {kind: models.FunctionTypeTrigger, required: []string{"tweet_id", "text"}, handle: r.replyToTweet},
		QuoteTweet:          {kind: models.FunctionTypeTrigger, required: []string{"tweet_id", "text"}, handle: r.quoteTweet},
		SendTelegramMessage: {kind: models.FunctionTypeTrigger, required: []string{"text"}, handle: r.sendTelegramMessage},
		LikeTweet:           {kind: models.FunctionTypeAgent, required: []string{"tweet_id"}, handle: r.likeTweet},
		Retweet:             {kind: models.FunctionTypeAgent, required: []string{"tweet_id"}, handle: r.retweet},
		GetHomeTimeline:     {kind: models.FunctionTypeAgent, handle: r.homeTimeline},
		GetMentions:         {kind: models.FunctionTypeAgent, handle: r.mentions},
		SearchTweets:        {kind: models.FunctionTypeAgent, required: []string{"query"}, handle: r.searchTweets},
		GetTokenPrice:       {kind: models.FunctionTypeAgent, required: []string{"address"}, handle: r.tokenPrice},
		GetTokenChart:       {kind: models.FunctionTypeAgent, required: []string{"address"}, handle: r.tokenChart},
		GetWalletBalance:    {kind: models.FunctionTypeAgent, required: []string{"address"}, handle: r.walletBalance},
	}
	return r
}

// Names returns every implemented function, sorted.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Has reports whether name has an implementation.
func (r *Registry) Has(name string) bool {
	n, ok := ParseName(name)
	if !ok {
		return false
	}
	_, ok = r.entries[n]
	return ok
}

type parameterSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

// Bind checks stored function rows against the implementations: the row must
// name a known function of the right type, and its schema must be an object
// schema declaring and requiring every argument the handler needs.
func (r *Registry) Bind(defs []models.Function) error {
	var errs []error
	for _, def := range defs {
		if err := r.validate(def); err != nil {
			errs = append(errs, fmt.Errorf("function %q: %w", def.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) validate(def models.Function) error {
	n, ok := ParseName(def.Name)
	if !ok {
		return errors.New("no implementation")
	}
	e := r.entries[n]
	if def.Type != e.kind {
		return fmt.Errorf("stored as type %q, implementation is %q", def.Type, e.kind)
	}

	var schema parameterSchema
	if len(def.Parameters) > 0 {
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			return fmt.Errorf("parameters are not a JSON schema: %w", err)
		}
	}
	if schema.Type != "object" {
		return fmt.Errorf("parameters type must be object, got %q", schema.Type)
	}
	required := make(map[string]bool, len(schema.Required))
	for _, k := range schema.Required {
		required[k] = true
	}
	for _, k := range e.required {
		if _, ok := schema.Properties[k]; !ok {
			return fmt.Errorf("parameter %q is not declared", k)
		}
		if !required[k] {
			return fmt.Errorf("parameter %q must be required", k)
		}
	}
	return nil
}

// Dispatch runs the named function within exec. Recognised provider failures
// and bad arguments come back as an unsuccessful Result; anything else is
// returned as an error.
func (r *Registry) Dispatch(ctx context.Context, exec *Execution, name string, args Args) (*Result, error) {
	n, ok := ParseName(name)
	e, found := r.entries[n]
	if !ok || !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if exec == nil {
		return nil, errors.New("dispatch requires an execution")
	}
	logger := logging.FromContext(ctx, r.logger).With("function", string(n))

	if n == PostTweet && exec.posted != nil {
		logger.Info("post already published in this execution, returning previous result")
		return &Result{Success: true, Data: exec.posted.Data, Synthetic: true}, nil
	}

	if args == nil {
		args = Args{}
	}
	if err := args.require(e.required...); err != nil {
		return failure(CodeInvalidArguments, err.Error(), err), nil
	}

	data, err := e.handle(ctx, exec, args)
	if err != nil {
		if code, msg, ok := classify(err); ok {
			logger.Warn("function returned a recoverable error", "code", code, "error", err)
			return failure(code, msg, err), nil
		}
		return nil, fmt.Errorf("%s: %w", n, err)
	}

	res := &Result{Success: true, Data: data}
	if n == PostTweet {
		exec.posted = res
	}
	return res, nil
}

func failure(code, msg string, err error) *Result {
	return &Result{Success: false, Error: msg, Code: code, OriginalError: err.Error()}
}

func checkPostLength(text string) error {
	if n := utf8.RuneCountInString(text); n > maxPostLength {
		return &ArgumentError{Message: fmt.Sprintf("text is %d characters, the limit is %d", n, maxPostLength)}
	}
	return nil
}
