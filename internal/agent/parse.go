package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentiq/crm-engine/internal/model"
)

// ParseError indicates the model's final text could not be recovered into
// a JSON profile. The unit is recorded as failed; the run continues.
type ParseError struct {
	RawText string
	Reason  string
}

func (e *ParseError) Error() string {
	preview := e.RawText
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return fmt.Sprintf("agent: parse profile: %s. Preview: %s", e.Reason, preview)
}

var (
	fenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	braceRe   = regexp.MustCompile(`(?s)\{.*\}`)
	partialRe = regexp.MustCompile(`(?s)\{.*`)
)

// extractJSON recovers a JSON object from model output. Cascade: literal
// object, fenced code block, largest {...} span, then truncated-object
// repair (strip trailing comma, close the brace).
func extractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	if strings.HasPrefix(text, "{") && validObject(text) {
		return text, true
	}

	if m := fenceRe.FindStringSubmatch(text); m != nil && validObject(m[1]) {
		return m[1], true
	}

	if m := braceRe.FindString(text); m != "" && validObject(m) {
		return m, true
	}

	if m := partialRe.FindString(text); m != "" {
		candidate := strings.TrimRight(strings.TrimSpace(m), ",") + "\n}"
		if validObject(candidate) {
			return candidate, true
		}
	}

	return "", false
}

func validObject(s string) bool {
	var obj map[string]any
	return json.Unmarshal([]byte(s), &obj) == nil
}

// flexInt tolerates numbers arriving as strings, floats, or junk; junk
// decodes to zero rather than failing the whole profile.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(int(v))
	return nil
}

// profilePayload mirrors model.CompanyProfile with tolerant numeric fields.
type profilePayload struct {
	Name            string   `json:"name"`
	Website         string   `json:"website"`
	LinkedInURL     string   `json:"linkedin_url"`
	FoundedYear     flexInt  `json:"founded_year"`
	Headquarters    string   `json:"headquarters"`
	EmployeeCount   string   `json:"employee_count"`
	Industry        string   `json:"industry"`
	CompanyType     string   `json:"company_type"`
	Description     string   `json:"description"`
	KeyProducts     []string `json:"key_products"`
	TargetCustomers string   `json:"target_customers"`
	TechStack       []string `json:"tech_stack"`
	RecentNews      string   `json:"recent_news"`
	FundingInfo     string   `json:"funding_info"`
	KeyContacts     []string `json:"key_contacts"`
	RevenueEstimate string   `json:"annual_revenue_estimate"`
	GrowthSignals   []string `json:"growth_signals"`
	RiskFactors     []string `json:"risk_factors"`
	ConfidenceScore flexInt  `json:"confidence_score"`
	Notes           string   `json:"enrichment_notes"`
}

// parseProfile runs the extraction cascade over the model's final text
// and builds a profile. companyName fills in when the model omits a name.
func parseProfile(text, companyName string) (*model.CompanyProfile, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, &ParseError{RawText: text, Reason: "no JSON object found"}
	}

	var p profilePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &ParseError{RawText: text, Reason: err.Error()}
	}

	name := p.Name
	if name == "" {
		name = companyName
	}

	return &model.CompanyProfile{
		Name:            name,
		Website:         p.Website,
		LinkedInURL:     p.LinkedInURL,
		FoundedYear:     int(p.FoundedYear),
		Headquarters:    p.Headquarters,
		EmployeeCount:   p.EmployeeCount,
		Industry:        p.Industry,
		CompanyType:     p.CompanyType,
		Description:     p.Description,
		KeyProducts:     p.KeyProducts,
		TargetCustomers: p.TargetCustomers,
		TechStack:       p.TechStack,
		RecentNews:      p.RecentNews,
		FundingInfo:     p.FundingInfo,
		KeyContacts:     p.KeyContacts,
		RevenueEstimate: p.RevenueEstimate,
		GrowthSignals:   p.GrowthSignals,
		RiskFactors:     p.RiskFactors,
		ConfidenceScore: int(p.ConfidenceScore),
		Notes:           p.Notes,
	}, nil
}
