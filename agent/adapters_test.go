package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/etnz/tradeledger/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

// history is one complete turn followed by a new question.
var history = []session.Message{
	{Role: session.User, Text: "What is MSFT worth?"},
	{Role: session.Assistant, ToolCalls: []session.ToolCall{{ID: "c1", Name: LatestPrice, Args: map[string]any{"ticker_symbol": "MSFT"}}}},
	{Role: session.Tool, ToolResults: []session.ToolResult{{ID: "c1", Name: LatestPrice, Payload: map[string]any{"price_per_share": json.Number("416.10")}}}},
	{Role: session.Assistant, Text: "416.10 USD"},
	{Role: session.User, Text: "And AAPL?"},
}

func TestOpenAIRequest(t *testing.T) {
	req, err := openaiRequest("gpt-test", Request{
		System:   "be precise",
		Messages: history,
		Tools:    []Tool{{Name: ListAccounts, Description: "lists", Parameters: object(nil, map[string]any{})}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-test", req.Model)
	var roles []string
	for _, m := range req.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "assistant", "user"}, roles)
	assert.Equal(t, `{"ticker_symbol":"MSFT"}`, req.Messages[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "c1", req.Messages[3].ToolCallID)
	assert.JSONEq(t, `{"price_per_share":416.10}`, req.Messages[3].Content)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, ListAccounts, req.Tools[0].Function.Name)
}

func TestOpenAIReply(t *testing.T) {
	reply := openaiReply(openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       "x",
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: InsertEvent, Arguments: `{"shares": 0.1, "account_id": "ACC-001"}`},
		}},
	})
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, json.Number("0.1"), reply.ToolCalls[0].Args["shares"])
	assert.Empty(t, reply.ToolCalls[0].Invalid)

	// truncated arguments still produce the call, flagged invalid.
	reply = openaiReply(openai.ChatCompletionMessage{ToolCalls: []openai.ToolCall{
		{ID: "a", Function: openai.FunctionCall{Name: LatestPrice, Arguments: `{"ticker_symbol": "MS`}},
		{ID: "b", Function: openai.FunctionCall{Name: ListAccounts}},
	}})
	require.Len(t, reply.ToolCalls, 2)
	assert.NotEmpty(t, reply.ToolCalls[0].Invalid)
	assert.Equal(t, map[string]any{}, reply.ToolCalls[0].Args)
	assert.Empty(t, reply.ToolCalls[1].Invalid)

	// and are sent back as an empty object.
	creq, err := openaiRequest("m", Request{Messages: []session.Message{{Role: session.Assistant, ToolCalls: reply.ToolCalls}}})
	require.NoError(t, err)
	assert.Equal(t, "{}", creq.Messages[0].ToolCalls[0].Function.Arguments)
}

func TestGeminiContents(t *testing.T) {
	contents := geminiContents(history)
	require.Len(t, contents, 5)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, LatestPrice, contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, genai.RoleUser, contents[2].Role)
	assert.Equal(t, "c1", contents[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "416.10 USD", contents[3].Parts[0].Text)
}

func TestGeminiReply(t *testing.T) {
	reply := geminiReply(&genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
		{Text: "thinking", Thought: true},
		{Text: "Let me check. "},
		{FunctionCall: &genai.FunctionCall{Name: ListAccounts, Args: map[string]any{}}},
	}})
	assert.Equal(t, "Let me check. ", reply.Text)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, ListAccounts, reply.ToolCalls[0].Name)

	decls := geminiConfig(Request{Tools: []Tool{{Name: ListAccounts}}}).Tools[0].FunctionDeclarations
	assert.Equal(t, ListAccounts, decls[0].Name)
}

func TestMCPHandler(t *testing.T) {
	lib := NewLibrary(newTestLedger(t, scenarioA()...), zaptest.NewLogger(t), nil)
	_, err := NewMCPServer(lib, "tlg", "test")
	require.NoError(t, err)

	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]any{"account_id": "ACC-001"}
	result, err := mcpHandler(lib, PortfolioSummary)(context.Background(), request)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	text := result.Content[0].(mcp.TextContent).Text
	assert.Contains(t, text, `"ticker_symbol": "MSFT"`)

	request.Params.Arguments = map[string]any{}
	result, err = mcpHandler(lib, PortfolioSummary)(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	tool, err := mcpTool(Tool{Name: RunQuery, Parameters: object([]string{"sql"}, map[string]any{"sql": str("q")}), ReadOnly: true})
	require.NoError(t, err)
	assert.True(t, *tool.Annotations.ReadOnlyHint)
	assert.JSONEq(t, `{"type":"object","properties":{"sql":{"type":"string","description":"q"}},"required":["sql"]}`, string(tool.RawInputSchema))
}
