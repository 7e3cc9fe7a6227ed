package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentiq/crm-engine/pkg/llm"
	"github.com/agentiq/crm-engine/pkg/lookup"
)

// Registry executes the agent's research tools against the lookup client.
// Tool failures are returned as text so the model can route around them
// (fall back to search when a scrape fails) instead of aborting the unit.
type Registry struct {
	lookup lookup.Client
}

// NewRegistry creates a tool registry backed by the given lookup client.
func NewRegistry(lk lookup.Client) *Registry {
	return &Registry{lookup: lk}
}

// Definitions returns the tool schemas offered to the model.
func (r *Registry) Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        "search_web",
			Description: "Search the internet for company info, news, funding, or any research topic. Use specific queries.",
			Properties: map[string]any{
				"query": map[string]any{"type": "string", "description": "Specific search query"},
			},
			Required: []string{"query"},
		},
		{
			Name:        "scrape_website",
			Description: "Fetch and read full text content of a URL. Use for homepages, About pages, pricing pages.",
			Properties: map[string]any{
				"url": map[string]any{"type": "string", "description": "Full URL including https://"},
			},
			Required: []string{"url"},
		},
		{
			Name:        "find_company_website",
			Description: "Find the official website URL for a company by name. Call this first before scraping.",
			Properties: map[string]any{
				"company_name": map[string]any{"type": "string"},
			},
			Required: []string{"company_name"},
		},
		{
			Name:        "get_linkedin_info",
			Description: "Search for company LinkedIn profile — employee count, industry, key people.",
			Properties: map[string]any{
				"company_name": map[string]any{"type": "string"},
			},
			Required: []string{"company_name"},
		},
	}
}

type searchInput struct {
	Query string `json:"query"`
}

type scrapeInput struct {
	URL string `json:"url"`
}

type companyInput struct {
	CompanyName string `json:"company_name"`
}

// Execute runs the named tool and returns its result as text.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) string {
	switch name {
	case "search_web":
		var in searchInput
		if err := json.Unmarshal(input, &in); err != nil {
			return fmt.Sprintf("Tool error (%s): bad input: %v", name, err)
		}
		results, err := r.lookup.Search(ctx, in.Query)
		if err != nil {
			return fmt.Sprintf("Search error: %v", err)
		}
		if len(results) == 0 {
			return "No results for: " + in.Query
		}
		return formatResults(results)

	case "scrape_website":
		var in scrapeInput
		if err := json.Unmarshal(input, &in); err != nil {
			return fmt.Sprintf("Tool error (%s): bad input: %v", name, err)
		}
		text, err := r.lookup.Scrape(ctx, in.URL)
		if err != nil {
			return fmt.Sprintf("Scrape error for %s: %v", in.URL, err)
		}
		return text

	case "find_company_website":
		var in companyInput
		if err := json.Unmarshal(input, &in); err != nil {
			return fmt.Sprintf("Tool error (%s): bad input: %v", name, err)
		}
		site, err := r.lookup.FindWebsite(ctx, in.CompanyName)
		if err != nil {
			return fmt.Sprintf("Could not find website for %s: %v", in.CompanyName, err)
		}
		return site

	case "get_linkedin_info":
		var in companyInput
		if err := json.Unmarshal(input, &in); err != nil {
			return fmt.Sprintf("Tool error (%s): bad input: %v", name, err)
		}
		info, err := r.lookup.LinkedIn(ctx, in.CompanyName)
		if err != nil {
			return fmt.Sprintf("No LinkedIn page found for %s: %v", in.CompanyName, err)
		}
		return fmt.Sprintf("Profile: %s\n%s", info.ProfileURL, info.Summary)

	default:
		return "Unknown tool: " + name
	}
}

func formatResults(results []lookup.SearchResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Title)
		if r.Snippet != "" && r.Snippet != r.Title {
			fmt.Fprintf(&b, "  %s\n", r.Snippet)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "  URL: %s\n", r.URL)
		}
	}
	return b.String()
}
