package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/sso-registry/sso/internal/config"
)

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, t *Template) error
}

// NewSender returns an SMTP sender, or a sender that only logs when no SMTP
// host is configured.
func NewSender(cfg *config.SMTPConfig) Sender {
	if cfg.Host == "" {
		slog.Info("email: smtp host not set, messages will be logged instead of sent")
		return LogSender{}
	}
	return &SMTPSender{cfg: cfg}
}

// LogSender writes messages to the application log. Tokens in links are not
// logged.
type LogSender struct{}

// Send logs t.
func (LogSender) Send(_ context.Context, t *Template) error {
	slog.Info("email not sent (smtp disabled)", "kind", t.Kind, "to", t.To, "subject", t.Subject)
	return nil
}

// SMTPSender delivers messages with net/smtp.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

// Send composes a plain-text message and delivers it.
func (s *SMTPSender) Send(ctx context.Context, t *Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := compose(s.cfg.From, t)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var err error
	if s.cfg.UseTLS {
		err = sendMailTLS(addr, s.cfg.Host, auth, s.cfg.From, []string{t.To}, msg)
	} else {
		err = smtp.SendMail(addr, auth, s.cfg.From, []string{t.To}, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", t.Kind, err)
	}
	slog.Debug("email sent", "kind", t.Kind, "to", t.To)
	return nil
}

func compose(from string, t *Template) []byte {
	to := (&mail.Address{Name: t.ToName, Address: t.To}).String()
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		from, to, mime.QEncoding.Encode("utf-8", t.Subject),
	)
	body := strings.ReplaceAll(strings.ReplaceAll(t.Text, "\r\n", "\n"), "\n", "\r\n")
	return []byte(headers + body)
}

// sendMailTLS connects via implicit TLS (port 465) and sends a message. When
// the TLS handshake fails it falls back to smtp.SendMail, which upgrades with
// STARTTLS if the server offers it.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := c.Rcpt(addr); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", addr, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
