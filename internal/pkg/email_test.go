package pkg

import (
	"testing"

	"Green_Community/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestMembershipDecisionHTML(t *testing.T) {
	body := MembershipDecisionHTML("ann", "<Green>", true)
	assert.Contains(t, body, "approved")
	assert.Contains(t, body, "&lt;Green&gt;")

	assert.Contains(t, MembershipDecisionHTML("bob", "Blue", false), "declined")
}

func TestMailerEnabled(t *testing.T) {
	assert.False(t, NewMailer(config.SMTPConfig{}).Enabled())
	assert.True(t, NewMailer(config.SMTPConfig{Host: "smtp.example.com"}).Enabled())
	var m *Mailer
	assert.False(t, m.Enabled())
}
