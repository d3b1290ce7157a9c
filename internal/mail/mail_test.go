package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	raw := string(Build("no-reply@linkmarket.test", Message{
		To:      []string{"ops@linkmarket.test"},
		ReplyTo: "client@acme.test\r\nBcc: evil@x.test",
		Subject: "New intake: Acme",
		Body:    "line one\nline two",
	}, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	assert.Contains(t, raw, "From: no-reply@linkmarket.test\r\n")
	assert.Contains(t, raw, "To: ops@linkmarket.test\r\n")
	assert.Contains(t, raw, "Reply-To: client@acme.test Bcc: evil@x.test\r\n")
	assert.Contains(t, raw, "Subject: New intake: Acme\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two"))
}

func TestSMTPMailerSend(t *testing.T) {
	m := New(&config.Config{SMTPHost: "smtp.test", SMTPPort: "587", SMTPUser: "u", SMTPPassword: "p", SMTPFrom: "from@test"}).(*SMTPMailer)

	var gotAddr, gotFrom string
	var gotTo []string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: []string{"a@test"}, Subject: "hi", Body: "x"}))
	assert.Equal(t, "smtp.test:587", gotAddr)
	assert.Equal(t, "from@test", gotFrom)
	assert.Equal(t, []string{"a@test"}, gotTo)

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.Error(t, m.Send(context.Background(), Message{To: []string{"a@test"}}))
	assert.ErrorIs(t, m.Send(context.Background(), Message{}), ErrNoRecipients)
}

func TestLogMailer(t *testing.T) {
	m := New(&config.Config{})
	assert.NoError(t, m.Send(context.Background(), Message{To: []string{"a@test"}, Subject: "s"}))
	assert.ErrorIs(t, m.Send(context.Background(), Message{}), ErrNoRecipients)
}
