package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	valid := &Message{To: "a@example.com", Subject: "hi", BodyText: "hello"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&Message{Subject: "hi", BodyText: "x"}).Validate())
	assert.Error(t, (&Message{To: "a@example.com", BodyText: "x"}).Validate())
	assert.Error(t, (&Message{To: "a@example.com", Subject: "hi"}).Validate())
}

func TestLogMailerSend(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(&buf)

	err := m.Send(context.Background(), &Message{
		To:       "a@example.com",
		From:     "noreply@localhost",
		Subject:  "Sign in",
		BodyText: "click the link",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "To:      a@example.com")
	assert.Contains(t, out, "Subject: Sign in")
	assert.Contains(t, out, "click the link")
}

func TestNewMailerModes(t *testing.T) {
	m, err := NewMailer(&Config{Mode: ModeLog})
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = NewMailer(&Config{})
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	_, err = NewMailer(&Config{Mode: ModeSMTP})
	assert.Error(t, err, "smtp mode without credentials must fail")

	_, err = NewMailer(&Config{Mode: "pigeon"})
	assert.Error(t, err)
}

func TestSendVerificationBuildsCallbackLink(t *testing.T) {
	var buf bytes.Buffer
	sender := NewVerificationSender(NewLogMailer(&buf), "noreply@localhost", "http://localhost:8080")

	err := sender.SendVerification(context.Background(), "user+tag@example.com", "tok/with=chars")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "/auth/callback/email?token=tok%2Fwith%3Dchars&email=user%2Btag%40example.com")
	assert.Contains(t, out, "Sign in to localhost:8080")
	assert.True(t, strings.Contains(out, "To:      user+tag@example.com"))
}
