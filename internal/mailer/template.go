// Package mailer renders campaign templates and delivers mail over SMTP.
package mailer

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentiq/crm-engine/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{\{(\s*\w+\s*)\}\}`)

// Render substitutes {{variable}} placeholders in a template. Unknown or
// missing variables render as empty, never as an error — a half-filled
// greeting still beats a template artifact in a recipient's inbox.
func Render(template string, variables map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])
		return variables[key]
	})
}

// nameCaser capitalizes word initials without lowercasing the rest, so
// imported all-lowercase names render presentably but "McDonald" survives.
var nameCaser = cases.Title(language.English, cases.NoLower)

// LeadVariables builds the template variable set from a lead. Every
// supported key is always present; empty lead fields map to empty values.
func LeadVariables(lead *model.Lead) map[string]string {
	firstName := ""
	lastName := ""
	fullName := strings.TrimSpace(lead.ContactName)
	if fullName != "" {
		fullName = nameCaser.String(fullName)
		parts := strings.SplitN(fullName, " ", 2)
		firstName = parts[0]
		if len(parts) > 1 {
			lastName = parts[1]
		}
	}

	return map[string]string{
		"first_name":   firstName,
		"last_name":    lastName,
		"full_name":    fullName,
		"company":      lead.CompanyName,
		"industry":     lead.Industry,
		"website":      lead.Website,
		"email":        lead.Email,
		"headquarters": lead.Headquarters,
	}
}
