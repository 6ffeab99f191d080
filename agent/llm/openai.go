package llm

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"

	"cryobank/contract"
)

// OpenAIClient adapts an OpenAI-compatible endpoint (OpenRouter included)
// to the Client interface.
type OpenAIClient struct {
	client *openaisdk.Client
	model  string
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(client *openaisdk.Client, model string) *OpenAIClient {
	return &OpenAIClient{client: client, model: model}
}

func (c *OpenAIClient) Chat(ctx context.Context, req Request) (*Response, error) {
	completion, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrModelInvoke, err)
	}
	if len(completion.Choices) == 0 {
		return &Response{}, nil
	}
	msg := completion.Choices[0].Message
	resp := &Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

// Stream emits text deltas as they arrive and one terminal event carrying
// the accumulated response.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
	events := make(chan StreamEvent)

	go func() {
		defer close(events)
		var acc openaisdk.ChatCompletionAccumulator
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				select {
				case events <- StreamEvent{TextDelta: chunk.Choices[0].Delta.Content}:
				case <-ctx.Done():
					events <- StreamEvent{Err: fmt.Errorf("%w: %v", contract.ErrModelInvoke, ctx.Err())}
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			events <- StreamEvent{Err: fmt.Errorf("%w: %v", contract.ErrModelInvoke, err)}
			return
		}
		resp := &Response{}
		if len(acc.Choices) > 0 {
			msg := acc.Choices[0].Message
			resp.Content = msg.Content
			for _, tc := range msg.ToolCalls {
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}
		events <- StreamEvent{Done: resp}
	}()
	return events, nil
}

func (c *OpenAIClient) params(req Request) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: toParamMessages(req.Messages),
	}
	if req.Temperature >= 0 {
		params.Temperature = openaisdk.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(req.MaxTokens))
	}
	if req.ToolChoice != "none" {
		for _, tool := range req.Tools {
			params.Tools = append(params.Tools, openaisdk.ChatCompletionFunctionTool(
				shared.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openaisdk.String(tool.Description),
					Parameters:  shared.FunctionParameters(tool.Parameters),
				}))
		}
	}
	return params
}

func toParamMessages(messages []Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		case RoleAssistant:
			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openaisdk.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls,
					openaisdk.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Arguments,
							},
						},
					})
			}
			out = append(out, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			out = append(out, openaisdk.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}
