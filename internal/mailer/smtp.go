package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPMailer sends mail through a standard SMTP relay. None of the
// pack's example repos pull in a third-party mail-sending library
// (notification-service stubs every channel with a TODO and a sleep);
// net/smtp is the stdlib's own small, complete client for exactly this
// protocol, so there is no ecosystem package to prefer it over — see
// DESIGN.md.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: smtp.PlainAuth("", username, password, host),
		from: from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody, senderName string) error {
	msg := buildMessage(m.from, to, subject, htmlBody, senderName)
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %q: %w", to, err)
	}
	return nil
}

// buildMessage renders the raw RFC 5322 message SendMail transmits:
// headers plus a single HTML body, no multipart alternative.
func buildMessage(from, to, subject, htmlBody, senderName string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", senderName, from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
