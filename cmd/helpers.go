package main

import (
	"context"
	"net/http"
	"time"

	"github.com/agentiq/crm-engine/internal/agent"
	"github.com/agentiq/crm-engine/internal/mailer"
	"github.com/agentiq/crm-engine/internal/runner"
	"github.com/agentiq/crm-engine/internal/store"
	"github.com/agentiq/crm-engine/pkg/llm"
	"github.com/agentiq/crm-engine/pkg/lookup"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func initAgent() (*agent.Agent, error) {
	if err := cfg.Validate("enrichment"); err != nil {
		return nil, err
	}

	provider := llm.NewClient(cfg.Anthropic.Key)
	lookupClient := lookup.NewClient(
		lookup.WithSearchBaseURL(cfg.Lookup.SearchBaseURL),
		lookup.WithUserAgent(cfg.Lookup.UserAgent),
		lookup.WithMaxScrapeChars(cfg.Lookup.MaxScrapeChars),
		lookup.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Lookup.TimeoutSecs) * time.Second}),
	)

	return agent.New(provider, lookupClient, agent.Config{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		MaxIterations: cfg.Agent.MaxIterations,
		MaxRetries:    cfg.Agent.MaxRetries,
		BaseBackoff:   time.Duration(cfg.Agent.BackoffSecs) * time.Second,
	}), nil
}

func initMailer() (mailer.Mailer, string, error) {
	if err := cfg.Validate("campaign"); err != nil {
		return nil, "", err
	}

	m, err := mailer.NewSMTP(mailer.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromEmail: cfg.SMTP.FromEmail,
		FromName:  cfg.SMTP.FromName,
	})
	if err != nil {
		return nil, "", err
	}

	fromEmail := cfg.SMTP.FromEmail
	if fromEmail == "" {
		fromEmail = cfg.SMTP.Username
	}
	return m, fromEmail, nil
}

func initJobRunner(st store.Store) (*runner.JobRunner, error) {
	enricher, err := initAgent()
	if err != nil {
		return nil, err
	}
	return runner.NewJobRunner(st, enricher, runner.JobConfig{
		Budget:     time.Duration(cfg.Worker.JobBudgetMins) * time.Minute,
		RatePerMin: cfg.Worker.EnrichRatePerMin,
	}), nil
}

func initCampaignRunner(st store.Store) (*runner.CampaignRunner, error) {
	m, fromEmail, err := initMailer()
	if err != nil {
		return nil, err
	}
	return runner.NewCampaignRunner(st, m, fromEmail), nil
}
