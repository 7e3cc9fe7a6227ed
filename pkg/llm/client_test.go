package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "tool_use", ToolName: "web_search"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", resp.Text())
}

func TestMessageResponseToolUses(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "thinking"},
		{Type: "tool_use", ToolUseID: "tu_1", ToolName: "web_search", ToolInput: json.RawMessage(`{"query":"acme"}`)},
		{Type: "tool_use", ToolUseID: "tu_2", ToolName: "scrape_website"},
	}}

	uses := resp.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "tu_1", uses[0].ToolUseID)
	assert.Equal(t, "web_search", uses[0].ToolName)
	assert.Equal(t, "tu_2", uses[1].ToolUseID)
}

func TestTextMessage(t *testing.T) {
	m := TextMessage("user", "enrich Acme Corp")
	assert.Equal(t, "user", m.Role)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text", m.Content[0].Type)
}

func TestToolResultMessage(t *testing.T) {
	m := ToolResultMessage("tu_1", "lookup failed", true)
	assert.Equal(t, "user", m.Role)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "tool_result", m.Content[0].Type)
	assert.Equal(t, "tu_1", m.Content[0].ToolUseID)
	assert.True(t, m.Content[0].IsError)
}

func TestTokenUsageAddAndTotal(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	u.Add(TokenUsage{InputTokens: 10, OutputTokens: 5})
	assert.Equal(t, int64(110), u.InputTokens)
	assert.Equal(t, int64(55), u.OutputTokens)
	assert.Equal(t, int64(165), u.Total())
}

func TestEstimateCostKnownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.0, u.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
}

func TestEstimateCostUnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1000, OutputTokens: 1000}
	assert.Zero(t, u.EstimateCost("some-future-model"))
}

func TestClassifyErrRateLimit(t *testing.T) {
	raw := &sdk.Error{StatusCode: 429}
	err := classifyErr(errors.New("wrapped"), raw)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 429, rle.StatusCode)
}

func TestClassifyErrOverloaded(t *testing.T) {
	raw := &sdk.Error{StatusCode: 529}
	err := classifyErr(errors.New("wrapped"), raw)

	var rle *RateLimitError
	assert.ErrorAs(t, err, &rle)
}

func TestClassifyErrTimeout(t *testing.T) {
	err := classifyErr(errors.New("wrapped"), context.DeadlineExceeded)

	var te *TimeoutError
	assert.ErrorAs(t, err, &te)
}

func TestClassifyErrHardFailure(t *testing.T) {
	raw := &sdk.Error{StatusCode: 400}
	wrapped := errors.New("wrapped")
	err := classifyErr(wrapped, raw)

	var rle *RateLimitError
	var te *TimeoutError
	assert.False(t, errors.As(err, &rle))
	assert.False(t, errors.As(err, &te))
	assert.Equal(t, wrapped, err)
}

func TestToSDKToolsShape(t *testing.T) {
	tools := toSDKTools([]Tool{{
		Name:        "web_search",
		Description: "Search the web",
		Properties: map[string]any{
			"query": map[string]any{"type": "string"},
		},
		Required: []string{"query"},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "web_search", tools[0].OfTool.Name)
	assert.Equal(t, []string{"query"}, tools[0].OfTool.InputSchema.Required)
}
