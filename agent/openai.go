package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/etnz/tradeledger/session"
	"github.com/sashabaranov/go-openai"
)

// OpenAI is a Completer backed by an OpenAI compatible chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI returns an OpenAI completer. baseURL selects a compatible server,
// the OpenAI API if empty.
func NewOpenAI(model, apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (*Reply, error) {
	creq, err := openaiRequest(o.model, req)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model %s", o.model)
	}
	return openaiReply(resp.Choices[0].Message), nil
}

func openaiRequest(model string, req Request) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case session.User:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		case session.Assistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text}
			for _, call := range m.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return openai.ChatCompletionRequest{}, fmt.Errorf("cannot encode %s arguments: %w", call.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       call.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: call.Name, Arguments: string(args)},
				})
			}
			messages = append(messages, msg)
		case session.Tool:
			for _, r := range m.ToolResults {
				payload, err := json.Marshal(r.Payload)
				if err != nil {
					return openai.ChatCompletionRequest{}, fmt.Errorf("cannot encode %s result: %w", r.Name, err)
				}
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: r.ID,
					Name:       r.Name,
					Content:    string(payload),
				})
			}
		}
	}

	tools := make([]openai.Tool, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return openai.ChatCompletionRequest{Model: model, Messages: messages, Tools: tools}, nil
}

func openaiReply(msg openai.ChatCompletionMessage) *Reply {
	reply := &Reply{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		if call.Type != "" && call.Type != openai.ToolTypeFunction {
			continue
		}
		tc := session.ToolCall{ID: call.ID, Name: call.Function.Name, Args: map[string]any{}}
		if s := strings.TrimSpace(call.Function.Arguments); s != "" {
			dec := json.NewDecoder(strings.NewReader(s))
			dec.UseNumber()
			if err := dec.Decode(&tc.Args); err != nil {
				tc.Args = map[string]any{}
				tc.Invalid = fmt.Sprintf("arguments are not a JSON object: %v", err)
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, tc)
	}
	return reply
}
