package mail

import (
	"context"
	"fmt"
	"net/url"
)

// VerificationSender sends the magic-link email for the email provider.
type VerificationSender struct {
	mailer  Mailer
	from    string
	baseURL string
}

// NewVerificationSender creates a sender that builds sign-in links against
// the given base URL.
func NewVerificationSender(mailer Mailer, from, baseURL string) *VerificationSender {
	return &VerificationSender{mailer: mailer, from: from, baseURL: baseURL}
}

// SendVerification mails a sign-in link carrying the raw verification token.
// Only the hash of the token is ever persisted; the mail is the sole carrier
// of the raw value.
func (s *VerificationSender) SendVerification(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/auth/callback/email?token=%s&email=%s",
		s.baseURL, url.QueryEscape(token), url.QueryEscape(email))

	host := s.baseURL
	if u, err := url.Parse(s.baseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	msg := &Message{
		To:      email,
		From:    s.from,
		Subject: fmt.Sprintf("Sign in to %s", host),
		BodyText: fmt.Sprintf(
			"Sign in to %s\n\n%s\n\nIf you did not request this email you can safely ignore it.\n",
			host, link),
		BodyHTML: fmt.Sprintf(
			`<body><p>Sign in to <strong>%s</strong></p><p><a href=%q>Sign in</a></p>`+
				`<p>If you did not request this email you can safely ignore it.</p></body>`,
			host, link),
	}

	return s.mailer.Send(ctx, msg)
}
