// Package export renders enrichment results as downloadable CSV or XLSX.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/agentiq/crm-engine/internal/model"
)

var columns = []string{
	"input_name", "status", "name", "website", "linkedin_url",
	"founded_year", "headquarters", "employee_count", "industry",
	"company_type", "description", "key_products", "target_customers",
	"tech_stack", "recent_news", "funding_info", "key_contacts",
	"annual_revenue_estimate", "growth_signals", "risk_factors",
	"confidence_score", "enrichment_notes", "error_message",
	"model_used", "tokens_used", "tool_calls", "processing_ms",
	"enriched_at",
}

// WriteCSV writes results as CSV with a header row.
func WriteCSV(w io.Writer, results []model.EnrichmentResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i := range results {
		if err := cw.Write(resultRow(&results[i])); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes results as a single-sheet workbook.
func WriteXLSX(w io.Writer, results []model.EnrichmentResult) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}
	for i := range results {
		row := sheet.AddRow()
		for _, val := range resultRow(&results[i]) {
			row.AddCell().SetString(val)
		}
	}

	return eris.Wrap(file.Write(w), "export: write xlsx")
}

func resultRow(r *model.EnrichmentResult) []string {
	p := r.Profile
	if p == nil {
		p = &model.CompanyProfile{}
	}
	return []string{
		r.InputName,
		string(r.Status),
		p.Name,
		p.Website,
		p.LinkedInURL,
		intField(p.FoundedYear),
		p.Headquarters,
		p.EmployeeCount,
		p.Industry,
		p.CompanyType,
		p.Description,
		strings.Join(p.KeyProducts, "; "),
		p.TargetCustomers,
		strings.Join(p.TechStack, "; "),
		p.RecentNews,
		p.FundingInfo,
		strings.Join(p.KeyContacts, "; "),
		p.RevenueEstimate,
		strings.Join(p.GrowthSignals, "; "),
		strings.Join(p.RiskFactors, "; "),
		intField(p.ConfidenceScore),
		p.Notes,
		r.ErrorMessage,
		r.ModelUsed,
		strconv.Itoa(r.TokensUsed),
		strconv.Itoa(r.ToolCalls),
		strconv.Itoa(r.ProcessingMS),
		r.EnrichedAt.Format(time.RFC3339),
	}
}

func intField(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
