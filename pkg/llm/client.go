// Package llm wraps the Anthropic SDK behind a small interface so the
// agent loop can be tested against a fake provider. The wrapper owns all
// SDK type conversion; callers only see package-local types.
package llm

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the reasoning-provider operations used by the agent.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// Tool describes a capability offered to the model.
type Tool struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object; Properties maps parameter name
	// to its schema, Required lists mandatory parameters.
	Properties map[string]any
	Required   []string
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature *float64
}

// Message represents a single conversational message. Content is a list
// of blocks so assistant tool_use turns and user tool_result turns can
// round-trip through the transcript.
type Message struct {
	Role    string // "user" or "assistant"
	Content []ContentBlock
}

// ContentBlock represents one block of message content.
type ContentBlock struct {
	Type string // "text", "tool_use", "tool_result"
	Text string

	// tool_use fields
	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage

	// tool_result fields
	IsError bool
}

// TextMessage builds a single-block text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ToolResultMessage builds a user message carrying one tool result.
func ToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{Role: "user", Content: []ContentBlock{{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Text:      content,
		IsError:   isError,
	}}}
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string // "end_turn", "tool_use", "max_tokens"
	Usage      TokenUsage
}

// Text concatenates all text blocks in the response.
func (r *MessageResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns the tool_use blocks in the response, in order.
func (r *MessageResponse) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range r.Content {
		if b.Type == "tool_use" {
			uses = append(uses, b)
		}
	}
	return uses
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns combined input and output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-6":            {15.00, 75.00},
}

// EstimateCost computes an estimated cost in USD from a TokenUsage and
// model ID. Returns 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * pricing[0]
	outCost := (float64(u.OutputTokens) / 1e6) * pricing[1]
	return inCost + outCost
}

// LogCost logs token usage and estimated cost with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a provider client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}

	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toSDKTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyErr(eris.Wrap(err, "llm: create message"), err)
	}

	return fromSDKMessage(msg), nil
}

// --- SDK type conversion helpers ---

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			blocks = append(blocks, toSDKBlock(b))
		}

		role := sdk.MessageParamRoleUser
		if m.Role == "assistant" {
			role = sdk.MessageParamRoleAssistant
		}
		out[i] = sdk.MessageParam{Role: role, Content: blocks}
	}
	return out
}

func toSDKBlock(b ContentBlock) sdk.ContentBlockParamUnion {
	switch b.Type {
	case "tool_use":
		var input any = map[string]any{}
		if len(b.ToolInput) > 0 {
			input = json.RawMessage(b.ToolInput)
		}
		return sdk.ContentBlockParamUnion{OfToolUse: &sdk.ToolUseBlockParam{
			ID:    b.ToolUseID,
			Name:  b.ToolName,
			Input: input,
		}}
	case "tool_result":
		return sdk.ContentBlockParamUnion{OfToolResult: &sdk.ToolResultBlockParam{
			ToolUseID: b.ToolUseID,
			IsError:   sdk.Bool(b.IsError),
			Content: []sdk.ToolResultBlockParamContentUnion{
				{OfText: &sdk.TextBlockParam{Text: b.Text}},
			},
		}}
	default:
		return sdk.NewTextBlock(b.Text)
	}
}

func toSDKTools(tools []Tool) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
			Name:        t.Name,
			Description: sdk.String(t.Description),
			InputSchema: sdk.ToolInputSchemaParam{
				Properties: t.Properties,
				Required:   t.Required,
			},
		}}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		cb := ContentBlock{
			Type: b.Type,
			Text: b.Text,
		}
		if b.Type == "tool_use" {
			cb.ToolUseID = b.ID
			cb.ToolName = b.Name
			cb.ToolInput = json.RawMessage(b.Input)
		}
		blocks = append(blocks, cb)
	}

	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Content:    blocks,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
}
