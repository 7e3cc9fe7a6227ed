// Package agent runs the tool-calling enrichment loop: bounded provider
// turns, tool execution against the lookup client, and JSON recovery of
// the final profile. The agent performs no storage writes; the runner
// owns persistence.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/resilience"
	"github.com/agentiq/crm-engine/pkg/llm"
	"github.com/agentiq/crm-engine/pkg/lookup"
)

// Config controls the agent loop.
type Config struct {
	Model         string
	MaxTokens     int64
	MaxIterations int
	MaxRetries    int
	BaseBackoff   time.Duration
}

// Outcome records the accounting for one enrichment attempt, successful
// or not. Always returned, even alongside an error.
type Outcome struct {
	ModelUsed    string
	TokensUsed   int64
	ToolCalls    int
	Iterations   int
	ProcessingMS int64
	RawText      string
}

// Agent enriches one company per call.
type Agent struct {
	client llm.Client
	tools  *Registry
	cfg    Config
}

// New creates an agent from a provider client and a lookup client.
func New(client llm.Client, lk lookup.Client, cfg Config) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 15
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Agent{
		client: client,
		tools:  NewRegistry(lk),
		cfg:    cfg,
	}
}

// retryableProviderErr retries only throttling and timeouts; hard
// provider failures surface immediately.
func retryableProviderErr(err error) bool {
	var rle *llm.RateLimitError
	var te *llm.TimeoutError
	return errors.As(err, &rle) || errors.As(err, &te)
}

// Enrich researches one company and returns its profile. A nil profile
// with a *ParseError means the unit failed but the run should continue;
// typed *llm.RateLimitError / *llm.TimeoutError surface after the bounded
// backoff schedule is exhausted.
func (a *Agent) Enrich(ctx context.Context, companyName, websiteHint string) (*model.CompanyProfile, *Outcome, error) {
	start := time.Now()
	outcome := &Outcome{ModelUsed: a.cfg.Model}

	userContent := "Research this company thoroughly: " + companyName
	if websiteHint != "" {
		userContent += fmt.Sprintf("\nWebsite: %s — scrape it directly.", websiteHint)
	}

	messages := []llm.Message{llm.TextMessage("user", userContent)}
	tools := a.tools.Definitions()

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    a.cfg.MaxRetries,
		InitialBackoff: a.cfg.BaseBackoff,
		ShouldRetry:    retryableProviderErr,
		OnRetry:        resilience.RetryLogger("llm", "create_message"),
	}

	var finalText string
	var usage llm.TokenUsage

	for outcome.Iterations < a.cfg.MaxIterations {
		outcome.Iterations++

		resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*llm.MessageResponse, error) {
			return a.client.CreateMessage(ctx, llm.MessageRequest{
				Model:     a.cfg.Model,
				MaxTokens: a.cfg.MaxTokens,
				System:    systemPrompt,
				Messages:  messages,
				Tools:     tools,
			})
		})
		if err != nil {
			outcome.ProcessingMS = time.Since(start).Milliseconds()
			outcome.TokensUsed = usage.Total()
			return nil, outcome, err
		}

		usage.Add(resp.Usage)

		toolUses := resp.ToolUses()
		if len(toolUses) == 0 {
			finalText = resp.Text()
			zap.L().Info("enrichment complete",
				zap.String("company", companyName),
				zap.Int("iterations", outcome.Iterations),
				zap.Int("tool_calls", outcome.ToolCalls),
			)
			break
		}

		// Echo the assistant turn, then answer every tool_use block.
		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})
		for _, tu := range toolUses {
			outcome.ToolCalls++
			zap.L().Debug("tool call",
				zap.String("company", companyName),
				zap.String("tool", tu.ToolName),
			)
			result := a.tools.Execute(ctx, tu.ToolName, tu.ToolInput)
			messages = append(messages, llm.ToolResultMessage(tu.ToolUseID, result, false))
		}
	}

	outcome.ProcessingMS = time.Since(start).Milliseconds()
	outcome.TokensUsed = usage.Total()
	outcome.RawText = finalText
	usage.LogCost(a.cfg.Model, "enrichment")

	profile, err := parseProfile(finalText, companyName)
	if err != nil {
		return nil, outcome, err
	}
	return profile, outcome, nil
}
