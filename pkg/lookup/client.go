// Package lookup provides the web research capabilities backing the
// enrichment agent's tools: website discovery, page scraping, web search,
// and LinkedIn company lookup.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the web lookup operations.
type Client interface {
	// FindWebsite attempts to discover a company's official website.
	FindWebsite(ctx context.Context, companyName string) (string, error)
	// Scrape fetches a URL and returns its readable text content,
	// truncated to the configured maximum.
	Scrape(ctx context.Context, targetURL string) (string, error)
	// Search performs a web search and returns results.
	Search(ctx context.Context, query string) ([]SearchResult, error)
	// LinkedIn looks up a company's LinkedIn presence.
	LinkedIn(ctx context.Context, companyName string) (*LinkedInInfo, error)
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// LinkedInInfo holds what could be found about a company's LinkedIn page.
type LinkedInInfo struct {
	ProfileURL string `json:"profile_url"`
	Summary    string `json:"summary"`
}

// Option configures the lookup client.
type Option func(*httpClient)

// WithSearchBaseURL sets a custom search API base URL (for testing).
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header for scrape requests.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

// WithMaxScrapeChars caps the text returned by Scrape.
func WithMaxScrapeChars(n int) Option {
	return func(c *httpClient) {
		c.maxScrapeChars = n
	}
}

type httpClient struct {
	searchBaseURL  string
	userAgent      string
	maxScrapeChars int
	http           *http.Client
}

// NewClient creates a web lookup client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		searchBaseURL:  "https://api.duckduckgo.com",
		userAgent:      "AgentIQ-Enrichment/1.0",
		maxScrapeChars: 6000,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures. Returns the response body and status code on
// success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "lookup: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("lookup: status %d", resp.StatusCode)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// ddgResponse is the DuckDuckGo instant answer API payload, reduced to
// the fields we consume.
type ddgResponse struct {
	AbstractURL   string     `json:"AbstractURL"`
	AbstractText  string     `json:"AbstractText"`
	Heading       string     `json:"Heading"`
	Results       []ddgTopic `json:"Results"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	FirstURL string `json:"FirstURL"`
	Text     string `json:"Text"`
}

func (c *httpClient) searchRaw(ctx context.Context, query string) (*ddgResponse, error) {
	reqURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		c.searchBaseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: create search request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: search request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("lookup: search unexpected status %d", statusCode)
	}

	var result ddgResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "lookup: unmarshal search response")
	}
	return &result, nil
}

func (c *httpClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	raw, err := c.searchRaw(ctx, query)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	if raw.AbstractURL != "" {
		results = append(results, SearchResult{
			Title:   raw.Heading,
			URL:     raw.AbstractURL,
			Snippet: raw.AbstractText,
		})
	}
	for _, t := range raw.Results {
		if t.FirstURL != "" {
			results = append(results, SearchResult{Title: t.Text, URL: t.FirstURL, Snippet: t.Text})
		}
	}
	for _, t := range raw.RelatedTopics {
		if t.FirstURL != "" {
			results = append(results, SearchResult{Title: t.Text, URL: t.FirstURL, Snippet: t.Text})
		}
	}
	return results, nil
}

func (c *httpClient) FindWebsite(ctx context.Context, companyName string) (string, error) {
	raw, err := c.searchRaw(ctx, companyName+" official website")
	if err != nil {
		return "", err
	}

	if raw.AbstractURL != "" {
		return raw.AbstractURL, nil
	}
	for _, t := range raw.Results {
		if t.FirstURL != "" && !strings.Contains(t.FirstURL, "duckduckgo.com") {
			return t.FirstURL, nil
		}
	}
	for _, t := range raw.RelatedTopics {
		if t.FirstURL != "" && !strings.Contains(t.FirstURL, "duckduckgo.com") {
			return t.FirstURL, nil
		}
	}

	return "", eris.Errorf("lookup: no website found for %q", companyName)
}

func (c *httpClient) Scrape(ctx context.Context, targetURL string) (string, error) {
	if !strings.HasPrefix(targetURL, "http://") && !strings.HasPrefix(targetURL, "https://") {
		targetURL = "https://" + targetURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "lookup: create scrape request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "lookup: scrape request failed")
	}
	if statusCode != http.StatusOK {
		return "", eris.Errorf("lookup: scrape %s: status %d", targetURL, statusCode)
	}

	text := extractText(string(body))
	if len(text) > c.maxScrapeChars {
		text = text[:c.maxScrapeChars]
	}
	return text, nil
}

func (c *httpClient) LinkedIn(ctx context.Context, companyName string) (*LinkedInInfo, error) {
	results, err := c.Search(ctx, fmt.Sprintf("%s site:linkedin.com/company", companyName))
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if strings.Contains(r.URL, "linkedin.com/company") {
			return &LinkedInInfo{ProfileURL: r.URL, Summary: r.Snippet}, nil
		}
	}

	return nil, eris.Errorf("lookup: no linkedin page found for %q", companyName)
}
