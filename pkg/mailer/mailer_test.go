package mailer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/src-permit-api/pkg/config"
)

func TestBuildMessage(t *testing.T) {
	gm, err := Build("office@example.edu", Message{
		To:      "student@example.edu",
		Subject: "Your SRC permit",
		Text:    "Code 26-K7Q2",
		HTML:    `<p>Code <b>26-K7Q2</b></p><img src="cid:permit-qr.png">`,
		Attachments: []Attachment{
			{Filename: "permit-qr.png", ContentType: "image/png", Data: []byte("png"), Inline: true},
			{Filename: "permit.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = gm.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Subject: Your SRC permit")
	assert.Contains(t, out, "To: student@example.edu")
	assert.Contains(t, out, "text/html")
	assert.Contains(t, out, `filename="permit.pdf"`)
	assert.Contains(t, out, "Content-ID: <permit-qr.png>")
}

func TestBuildRequiresRecipient(t *testing.T) {
	_, err := Build("office@example.edu", Message{Subject: "x"})
	assert.Error(t, err)
}

func TestSendHonoursCancelledContext(t *testing.T) {
	m := NewSMTP(config.SMTPConfig{Host: "localhost", Port: 2525, From: "office@example.edu"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "a@example.edu"}), context.Canceled)
}
