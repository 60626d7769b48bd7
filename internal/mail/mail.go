// Package mail delivers report files through an authenticated SMTP relay.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
)

// Message is one outgoing mail.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []string // file paths
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends through an SMTP relay with PLAIN authentication. The
// sender address doubles as the login.
type SMTPSender struct {
	Host     string
	Port     int
	From     string
	Password string
	Name     string // display name of the sender, optional
}

// Build assembles the message with its attachments.
func (s *SMTPSender) Build(msg Message) (*email.Email, error) {
	to := splitRecipients(msg.To)
	if len(to) == 0 {
		return nil, fmt.Errorf("message has no recipient")
	}

	e := email.NewEmail()
	if s.Name != "" {
		e.From = fmt.Sprintf("%s <%s>", s.Name, s.From)
	} else {
		e.From = s.From
	}
	e.To = to
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)

	for _, path := range msg.Attachments {
		if _, err := e.AttachFile(path); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", filepath.Base(path), err)
		}
	}
	return e, nil
}

// Send delivers msg over a PLAIN-authenticated session. A relay that does
// not offer AUTH is an error; mail is never sent unauthenticated. PLAIN is
// only attempted over TLS (STARTTLS) or to a loopback host.
//
// It returns when the relay accepted the message, the relay failed, or ctx
// ended.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	e, err := s.Build(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	done := make(chan error, 1)
	go func() {
		done <- e.Send(addr, smtp.PlainAuth("", s.From, s.Password, s.Host))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// splitRecipients accepts a comma separated recipient list.
func splitRecipients(to string) []string {
	var out []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
