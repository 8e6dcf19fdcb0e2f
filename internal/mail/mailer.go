// Package mail delivers the magic-link sign-in emails.
package mail

import (
	"context"
	"fmt"
)

// Mail modes
const (
	ModeLog  = "log"
	ModeSMTP = "smtp"
)

// Message represents an email message.
type Message struct {
	To       string
	From     string
	Subject  string
	BodyHTML string
	BodyText string
}

// Validate checks if the message has all required fields.
func (m *Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("to address is required")
	}
	if m.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if m.BodyHTML == "" && m.BodyText == "" {
		return fmt.Errorf("body (html or text) is required")
	}
	return nil
}

// Mailer is the interface for sending emails.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// Config holds email configuration.
type Config struct {
	Mode     string // log, smtp
	From     string // default sender address
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:     ModeLog,
		From:     "noreply@localhost",
		SMTPPort: 587,
	}
}

// NewMailer builds a Mailer for the configured mode.
func NewMailer(cfg *Config) (Mailer, error) {
	switch cfg.Mode {
	case "", ModeLog:
		return NewLogMailer(nil), nil
	case ModeSMTP:
		smtpCfg := SMTPConfig{Host: cfg.SMTPHost, Port: cfg.SMTPPort, User: cfg.SMTPUser, Pass: cfg.SMTPPass}
		if err := smtpCfg.Validate(); err != nil {
			return nil, err
		}
		return NewSMTPMailer(smtpCfg), nil
	default:
		return nil, fmt.Errorf("unknown mail mode %q", cfg.Mode)
	}
}
