package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Mailer handles sending emails
type Mailer struct {
	config Config
}

// New creates a new Mailer instance
func New(cfg Config) *Mailer {
	return &Mailer{config: cfg}
}

// SendVerificationCode emails the property verification code
func (m *Mailer) SendVerificationCode(toEmail, code string) error {
	subject := "ClipSync - Verify your email address"

	body, err := renderCodeTemplate(toEmail, code)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return m.send(toEmail, subject, body)
}

// send delivers an email via SMTP
func (m *Mailer) send(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)

	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From),
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": `text/html; charset="UTF-8"`,
	}

	var msg bytes.Buffer
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var a smtp.Auth
	if m.config.Username != "" {
		a = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	return smtp.SendMail(addr, a, m.config.From, []string{to}, msg.Bytes())
}

var codeTemplate = template.Must(template.New("code").Parse(`
<html>
  <body style="font-family: sans-serif; color: #222;">
    <h2>Verify your email address</h2>
    <p>Someone asked to link <b>{{.Email}}</b> to a ClipSync account.</p>
    <p>Your verification code is:</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
    <p>If this wasn't you, you can ignore this email.</p>
  </body>
</html>
`))

func renderCodeTemplate(email, code string) (string, error) {
	var buf bytes.Buffer
	err := codeTemplate.Execute(&buf, struct {
		Email string
		Code  string
	}{Email: email, Code: code})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
