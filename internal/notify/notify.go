// Package notify sends plain-text report email for the scheduled jobs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/nciocpl/ebms/internal/config"
)

// ErrNoRecipients is returned when a report has nowhere to go.
var ErrNoRecipients = errors.New("no report recipients configured")

// Mailer delivers a report.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// SMTPMailer sends mail through a relay.
type SMTPMailer struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string

	// Now stamps the Date header; defaults to time.Now.
	Now func() time.Time
}

// NewSMTPMailer returns a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		Host:     cfg.Host,
		Port:     cfg.Port,
		From:     cfg.From,
		To:       cfg.To,
		Username: cfg.Username,
		Password: cfg.Password,
	}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	port := m.Port
	if port == 0 {
		port = 25
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(port))

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	msg := Message(m.From, m.To, subject, body, now())
	if err := smtp.SendMail(addr, auth, m.From, m.To, msg); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}
	return nil
}

// Message renders a plain-text message with CRLF line endings.
func Message(from string, to []string, subject, body string, date time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// Report sends a report and logs, rather than returns, any failure.
// A broken mail relay must never fail the job being reported on.
func Report(ctx context.Context, m Mailer, logger *log.Logger, subject, body string) {
	if m == nil {
		return
	}
	if err := m.Send(ctx, subject, body); err != nil {
		logger.Printf("notifying recipients: %v", err)
		return
	}
	logger.Printf("sent report %q", subject)
}
