package mailer

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/fgc-kenya/admissions-api/pkg/config"
)

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Mailer delivers messages. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(msg Message) error
}

// SMTPMailer sends messages through a configured SMTP relay.
type SMTPMailer struct {
	smtp config.SMTPConfig
	mail config.MailConfig
}

// NewSMTP constructs an SMTP-backed mailer.
func NewSMTP(smtpCfg config.SMTPConfig, mailCfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{smtp: smtpCfg, mail: mailCfg}
}

// Send delivers a single message, dialing a fresh connection per call.
func (m *SMTPMailer) Send(msg Message) error {
	addr := fmt.Sprintf("%s:%d", m.smtp.Host, m.smtp.Port)
	client, err := m.connect(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if m.smtp.Username != "" {
		auth := smtp.PlainAuth("", m.smtp.Username, m.smtp.Password, m.smtp.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.mail.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}

	if _, err := writer.Write([]byte(m.build(msg))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	if err := client.Quit(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func (m *SMTPMailer) connect(addr string) (*smtp.Client, error) {
	tlsMode := m.smtp.TLSMode
	if tlsMode == "" {
		tlsMode = "starttls"
	}

	switch tlsMode {
	case "tls":
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.smtp.Host, MinVersion: tls.VersionTLS12})
		if err != nil {
			return nil, fmt.Errorf("smtp tls dial: %w", err)
		}
		client, err := smtp.NewClient(conn, m.smtp.Host)
		if err != nil {
			return nil, fmt.Errorf("smtp client: %w", err)
		}
		return client, nil
	case "starttls":
		client, err := smtp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("smtp dial: %w", err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.smtp.Host, MinVersion: tls.VersionTLS12}); err != nil {
				client.Close()
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
		return client, nil
	default:
		client, err := smtp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("smtp dial: %w", err)
		}
		return client, nil
	}
}

func (m *SMTPMailer) build(msg Message) string {
	from := m.mail.FromEmail
	if m.mail.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.mail.FromName), m.mail.FromEmail)
	}

	var b strings.Builder
	boundary := "fgc-mail-boundary"

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.TextBody)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
		fmt.Fprintf(&b, "--%s--\r\n", boundary)
	case msg.HTMLBody != "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTMLBody)
		b.WriteString("\r\n")
	default:
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.TextBody)
		b.WriteString("\r\n")
	}

	return b.String()
}
