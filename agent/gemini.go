package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/etnz/tradeledger/session"
	"google.golang.org/genai"
)

// Gemini is a Completer backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini returns a Gemini completer. An empty apiKey lets the client read
// GEMINI_API_KEY or GOOGLE_API_KEY from the environment.
func NewGemini(ctx context.Context, model, apiKey, baseURL string) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Complete(ctx context.Context, req Request) (*Reply, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(req.Messages), geminiConfig(req))
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from model %s", g.model)
	}
	return geminiReply(resp.Candidates[0].Content), nil
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	declarations := make([]*genai.FunctionDeclaration, len(req.Tools))
	for i, t := range req.Tools {
		declarations[i] = t.Declaration()
	}
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{FunctionDeclarations: declarations}},
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return config
}

// geminiContents maps a history to Gemini contents. Tool results are sent
// back as function responses from the user side.
func geminiContents(messages []session.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case session.User:
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleUser))
		case session.Assistant:
			c := &genai.Content{Role: genai.RoleModel}
			if m.Text != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Text})
			}
			for _, call := range m.ToolCalls {
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args}})
			}
			contents = append(contents, c)
		case session.Tool:
			c := &genai.Content{Role: genai.RoleUser}
			for _, r := range m.ToolResults {
				c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Payload}})
			}
			contents = append(contents, c)
		}
	}
	return contents
}

func geminiReply(content *genai.Content) *Reply {
	var text strings.Builder
	reply := &Reply{}
	for _, part := range content.Parts {
		switch {
		case part.FunctionCall != nil:
			reply.ToolCalls = append(reply.ToolCalls, session.ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		case part.Thought:
		case part.Text != "":
			text.WriteString(part.Text)
		}
	}
	reply.Text = text.String()
	return reply
}
