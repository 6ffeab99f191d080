// Package react runs the bounded reasoning loop: stream a model response,
// execute its tool calls concurrently, feed the observations back, repeat
// until the model answers or a budget runs out.
package react

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"cryobank/agent/llm"
	"cryobank/agent/tool"
	"cryobank/contract"
)

const (
	DefaultMaxSteps = 10
	DefaultWorkers  = 4
)

// Agent drives one conversation turn through the loop.
type Agent struct {
	client     llm.Client
	dispatcher *tool.Dispatcher
	system     string
	maxSteps   int
	workers    int
	log        zerolog.Logger
}

type Option func(*Agent)

func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.workers = n
		}
	}
}

func New(client llm.Client, dispatcher *tool.Dispatcher, system string, logger zerolog.Logger, opts ...Option) *Agent {
	a := &Agent{
		client:     client,
		dispatcher: dispatcher,
		system:     system,
		maxSteps:   DefaultMaxSteps,
		workers:    DefaultWorkers,
		log:        logger.With().Str("component", "react").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes one user turn. onEvent may be nil. The loop is sequential
// across steps; only tool calls within a step run concurrently.
func (a *Agent) Run(ctx context.Context, actor contract.ActorContext, query string, history []llm.Message, onEvent func(Event)) RunResult {
	emit := func(ev Event) {
		if onEvent != nil {
			onEvent(ev)
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	result := RunResult{}
	emptyStreak := 0

	for step := 1; step <= a.maxSteps; step++ {
		// Cancellation is honored between steps; in-flight writes inside a
		// step finish safely because the pipeline isolates each one.
		if err := ctx.Err(); err != nil {
			return a.terminate(result, emit, step, ReasonCancelled, contract.CodeRunStopped,
				"the run was cancelled before it could finish")
		}
		result.Steps = step
		emit(Event{Kind: EventStepStarted, Step: step})

		resp, err := a.streamStep(ctx, messages, emit, step)
		if err != nil {
			a.log.Warn().Err(err).Int("step", step).Msg("model call failed")
			return a.terminate(result, emit, step, ReasonStreamFailed, contract.CodeLLMStreamFailed, err.Error())
		}

		if resp.Empty() {
			emptyStreak++
			if emptyStreak > 1 {
				return a.terminate(result, emit, step, ReasonEmpty, contract.CodeEmptyResponse,
					"the model returned nothing twice in a row")
			}
			// One forced retry with an explicit nudge.
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: "Your last response was empty. Answer the request or call a tool.",
			})
			continue
		}
		emptyStreak = 0

		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			result.OK = true
			result.Reason = ReasonAnswered
			emit(Event{Kind: EventTerminated, Step: step, Reason: ReasonAnswered})
			return result
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		observations := a.executeStep(ctx, actor, resp.ToolCalls, emit, step, &result)
		messages = append(messages, observations...)
	}

	// Step budget exhausted: one last call, tools withheld, for a direct
	// answer from whatever was gathered.
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "Stop using tools. Give your best final answer now from what you have gathered.",
	})
	final, err := a.client.Chat(ctx, llm.Request{
		Messages:   messages,
		ToolChoice: "none",
	})
	if err != nil || final.Empty() {
		return a.terminate(result, emit, a.maxSteps, ReasonMaxSteps, contract.CodeMaxSteps,
			"step budget exhausted and no final answer could be produced")
	}
	result.Answer = final.Content
	result.OK = true
	result.Reason = ReasonMaxSteps
	result.ErrorCode = contract.CodeMaxSteps
	emit(Event{Kind: EventTerminated, Step: a.maxSteps, Reason: ReasonMaxSteps})
	return result
}

// streamStep makes one provider call, forwarding text deltas as events.
func (a *Agent) streamStep(ctx context.Context, messages []llm.Message, emit func(Event), step int) (*llm.Response, error) {
	events, err := a.client.Stream(ctx, llm.Request{
		Messages: messages,
		Tools:    tool.Specs(),
	})
	if err != nil {
		return nil, err
	}
	var resp *llm.Response
	for ev := range events {
		switch {
		case ev.Err != nil:
			return nil, ev.Err
		case ev.TextDelta != "":
			emit(Event{Kind: EventTextDelta, Step: step, Text: ev.TextDelta})
		case ev.Done != nil:
			resp = ev.Done
		}
	}
	if resp == nil {
		return &llm.Response{}, nil
	}
	return resp, nil
}

// executeStep runs one step's tool calls on a bounded worker pool and
// returns the observations in call order. Lone-call tools (question,
// manage_boxes) requested alongside other calls are rejected without
// executing while the rest run normally.
func (a *Agent) executeStep(ctx context.Context, actor contract.ActorContext, calls []llm.ToolCall, emit func(Event), step int, run *RunResult) []llm.Message {
	results := make([]contract.Result, len(calls))

	sem := make(chan struct{}, a.workers)
	var wg sync.WaitGroup
	for i, call := range calls {
		if def, ok := tool.Lookup(call.Name); ok && def.Alone && len(calls) > 1 {
			results[i] = contract.Failure(contract.CodeQuestionNotAlone,
				fmt.Sprintf("%s must be the only tool call in its step; issue it alone in the next step", call.Name))
			continue
		}
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			emit(Event{Kind: EventToolStarted, Step: step, ToolName: call.Name, ToolCall: call.ID})
			results[i] = a.dispatcher.Dispatch(ctx, actor, call)
		}(i, call)
	}
	wg.Wait()

	observations := make([]llm.Message, 0, len(calls))
	for i, call := range calls {
		res := results[i]
		run.ToolCalls++
		if res.Staged {
			run.Staged++
		}
		emit(Event{Kind: EventToolFinished, Step: step, ToolName: call.Name, ToolCall: call.ID, Result: &res})
		observations = append(observations, llm.Message{
			Role:       llm.RoleTool,
			Content:    renderObservation(res),
			ToolCallID: call.ID,
		})
	}
	return observations
}

func (a *Agent) terminate(result RunResult, emit func(Event), step int, reason, code, message string) RunResult {
	result.Reason = reason
	result.ErrorCode = code
	if result.Answer == "" {
		result.Answer = message
	}
	emit(Event{Kind: EventTerminated, Step: step, Reason: reason})
	return result
}

func renderObservation(res contract.Result) string {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"error_code":%q,"message":"observation not serializable"}`,
			contract.CodeWriteFailed)
	}
	return string(raw)
}
