// Package mail delivers rendered notifications.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/venue-booking/internal/model"
)

// SMTP sends plain-text mail through a relay.  Username may be empty for
// unauthenticated relays.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTP) Send(ctx context.Context, e model.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	return smtp.SendMail(addr, auth, s.From, []string{e.To}, render(s.From, e))
}

// headerValue flattens line breaks so a value cannot start a new header.
var headerValue = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func render(from string, e model.Email) []byte {
	var b strings.Builder
	b.WriteString("From: " + headerValue.Replace(from) + "\r\n")
	b.WriteString("To: " + headerValue.Replace(e.To) + "\r\n")
	b.WriteString("Subject: " + headerValue.Replace(e.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(e.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Log writes mail to the logger instead of sending it.  Used in
// development and whenever no relay is configured.
type Log struct {
	L *zap.Logger
}

func (l Log) Send(_ context.Context, e model.Email) error {
	l.L.Info("email", zap.String("to", e.To), zap.String("subject", e.Subject), zap.String("body", e.Body))
	return nil
}

// Sender is the delivery half of a Notifier.
type Sender interface {
	Send(ctx context.Context, e model.Email) error
}

// Direct adapts a Sender to the service Notifier when no broker runs.
type Direct struct {
	S Sender
}

func (d Direct) Notify(ctx context.Context, e model.Email) error { return d.S.Send(ctx, e) }
