package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/go-mail/mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLSMode is one of starttls, ssl, none.
	TLSMode string
	Timeout time.Duration
}

type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	// DialAndSend ignores ctx. A result arriving after ctx ends is dropped.
	done := make(chan error, 1)
	go func() { done <- s.dialer().DialAndSend(m) }()
	select {
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "email send abandoned", "host", s.cfg.Host, "to", msg.To, "error", ctx.Err())
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
	}
	s.logger.DebugContext(ctx, "email sent", "host", s.cfg.Host, "to", msg.To, "subject", msg.Subject)
	return nil
}

func (s *SMTPSender) dialer() *gomail.Dialer {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if s.cfg.Timeout > 0 {
		d.Timeout = s.cfg.Timeout
	}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
		d.TLSConfig = &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	case "none":
		d.StartTLSPolicy = gomail.NoStartTLS
	default:
		d.TLSConfig = &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}
	return d
}
