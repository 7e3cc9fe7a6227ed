package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentiq/crm-engine/internal/model"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	out := Render("Hi {{first_name}}, greetings from {{company}}!",
		map[string]string{"first_name": "Jane", "company": "Acme"})
	assert.Equal(t, "Hi Jane, greetings from Acme!", out)
}

func TestRenderMissingVariableIsEmpty(t *testing.T) {
	out := Render("Hi {{first_name}}{{unknown}}", map[string]string{"first_name": "Jane"})
	assert.Equal(t, "Hi Jane", out)
}

func TestRenderTolerantOfSpaces(t *testing.T) {
	out := Render("Hi {{ first_name }}", map[string]string{"first_name": "Jane"})
	assert.Equal(t, "Hi Jane", out)
}

func TestRenderNoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", Render("plain text", nil))
}

func TestLeadVariablesSplitsContactName(t *testing.T) {
	vars := LeadVariables(&model.Lead{
		ContactName:  "jane van der berg",
		CompanyName:  "Acme",
		Email:        "jane@acme.com",
		Industry:     "Anvils",
		Headquarters: "Portland, OR",
	})

	assert.Equal(t, "Jane", vars["first_name"])
	assert.Equal(t, "Van Der Berg", vars["last_name"])
	assert.Equal(t, "Jane Van Der Berg", vars["full_name"])
	assert.Equal(t, "Acme", vars["company"])
	assert.Equal(t, "Portland, OR", vars["headquarters"])
}

func TestLeadVariablesPreservesInnerCaps(t *testing.T) {
	vars := LeadVariables(&model.Lead{ContactName: "ronald mcDonald"})
	assert.Equal(t, "Ronald", vars["first_name"])
	assert.Equal(t, "McDonald", vars["last_name"])
}

func TestLeadVariablesNoContactName(t *testing.T) {
	// Name keys stay present but empty, matching how Render treats any
	// missing variable: a clean blank, never a placeholder artifact.
	vars := LeadVariables(&model.Lead{CompanyName: "Acme"})
	assert.Equal(t, "", vars["first_name"])
	assert.Equal(t, "", vars["full_name"])
	assert.Equal(t, "", vars["last_name"])
	assert.Equal(t, "", vars["website"])
	assert.Equal(t, "Acme", vars["company"])
}

func TestNewSMTPDefaults(t *testing.T) {
	m, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", Username: "u@example.com", Password: "p"})
	assert.NoError(t, err)
	assert.Equal(t, "u@example.com", m.cfg.FromEmail)
	assert.Equal(t, 587, m.cfg.Port)
}

func TestNewSMTPRequiresHost(t *testing.T) {
	_, err := NewSMTP(SMTPConfig{})
	assert.Error(t, err)
}

func TestBuildPayloadHeaders(t *testing.T) {
	m, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", FromEmail: "hello@acme.com", FromName: "Acme"})
	assert.NoError(t, err)

	payload := string(m.buildPayload(Message{
		To:       "jane@example.com",
		Subject:  "Hello",
		BodyHTML: "<p>Hi</p>",
		ReplyTo:  "sales@acme.com",
	}, "<id-1@acme.com>"))

	assert.Contains(t, payload, "To: jane@example.com\r\n")
	assert.Contains(t, payload, "Subject: Hello\r\n")
	assert.Contains(t, payload, "Reply-To: sales@acme.com\r\n")
	assert.Contains(t, payload, "Message-ID: <id-1@acme.com>\r\n")
	assert.Contains(t, payload, "Content-Type: text/html")
	assert.Contains(t, payload, "\r\n\r\n<p>Hi</p>")
}

func TestMakeMessageIDUsesFromDomain(t *testing.T) {
	id := makeMessageID("hello@acme.com")
	assert.Contains(t, id, "@acme.com>")

	id = makeMessageID("not-an-address")
	assert.Contains(t, id, "@agentiq.app>")
}
