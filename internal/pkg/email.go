package pkg

import (
	"crypto/tls"
	"fmt"
	"html"

	"Green_Community/internal/config"

	"gopkg.in/gomail.v2"
)

// Mailer 通过 SMTP 发送 HTML 邮件
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled 未配置 SMTP 时只记录日志
func (m *Mailer) Enabled() bool { return m != nil && m.cfg.Host != "" }

func (m *Mailer) Send(to, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: m.cfg.Host}
	return d.DialAndSend(msg)
}

// MembershipDecisionHTML 入会申请处理结果通知
func MembershipDecisionHTML(username, communityName string, approved bool) string {
	result := "was declined"
	if approved {
		result = "was approved. Welcome aboard"
	}
	return fmt.Sprintf(`<p>Hi %s,</p><p>Your request to join <b>%s</b> %s.</p>`,
		html.EscapeString(username), html.EscapeString(communityName), result)
}
