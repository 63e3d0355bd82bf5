package mail

import (
	"context"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendgridPrepare(t *testing.T) {
	m := NewSendgridMailer("key", mail.Address{Name: "Swebuk", Address: "no-reply@swebuk.local"}, "[Swebuk] ")
	v3 := m.prepare(Message{
		To:      []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
		Subject: "Submission reviewed",
		Text:    "approved",
	})

	require.Equal(t, "no-reply@swebuk.local", v3.From.Address)
	require.Len(t, v3.Personalizations, 1)
	require.Equal(t, "[Swebuk] Submission reviewed", v3.Personalizations[0].Subject)
	require.Equal(t, "ada@example.com", v3.Personalizations[0].To[0].Address)
	require.Len(t, v3.Content, 1)
	require.Equal(t, "text/plain", v3.Content[0].Type)
}

func TestSendgridRejectsEmptyRecipients(t *testing.T) {
	m := NewSendgridMailer("key", mail.Address{Address: "a@b.c"}, "")
	require.Error(t, m.Send(context.Background(), Message{Subject: "x"}))
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))
	require.NoError(t, m.Send(context.Background(), Message{To: []mail.Address{{Address: "ada@example.com"}}, Subject: "hi"}))
	require.Equal(t, 1, logs.FilterMessage("mail delivery disabled").Len())
}
