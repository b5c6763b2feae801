package mail

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimplePlainText(t *testing.T) {
	raw := []byte("From: Alice <alice@example.com>\r\n" +
		"To: Bob <bob@example.com>\r\n" +
		"Subject: Hello\r\n" +
		"Date: Mon, 2 Jan 2006 15:04:05 +0000\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"Hi there.\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "Alice", msg.From.Name)
	assert.Equal(t, "alice@example.com", msg.From.Email)
	require.Len(t, msg.To, 1)
	assert.Equal(t, "bob@example.com", msg.To[0].Email)
	assert.Equal(t, "Hello", msg.Subject)
	assert.Equal(t, "Hi there.\r\n", msg.Text)
	assert.Empty(t, msg.HTML)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), msg.Raw)
}

func TestParse_MissingFromUsesPlaceholder(t *testing.T) {
	raw := []byte("To: bob@example.com\r\nSubject: no from\r\n\r\nbody\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "No from header", msg.From.Name)
	assert.Equal(t, "no-from-header@example.com", msg.From.Email)
}

func TestParse_MissingToUsesPlaceholderList(t *testing.T) {
	raw := []byte("From: a@example.com\r\nSubject: no to\r\n\r\nbody\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)

	require.Len(t, msg.To, 1)
	assert.Equal(t, "No to header", msg.To[0].Name)
	assert.Equal(t, "no-to-header@example.com", msg.To[0].Email)
}

func TestParse_MultipartAlternativeAndAttachment(t *testing.T) {
	raw := []byte("From: a@example.com\r\n" +
		"To: b@example.com\r\n" +
		"Subject: multi\r\n" +
		"Content-Type: multipart/mixed; boundary=\"outer\"\r\n\r\n" +
		"--outer\r\n" +
		"Content-Type: multipart/alternative; boundary=\"inner\"\r\n\r\n" +
		"--inner\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"plain body\r\n" +
		"--inner\r\n" +
		"Content-Type: text/html\r\n\r\n" +
		"<p>html body</p>\r\n" +
		"--inner--\r\n" +
		"--outer\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment; filename=\"note.txt\"\r\n\r\n" +
		"attachment contents\r\n" +
		"--outer--\r\n")

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "plain body\r\n", msg.Text)
	assert.Equal(t, "<p>html body</p>\r\n", msg.HTML)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "note.txt", msg.Attachments[0].Filename)

	decoded, err := base64.StdEncoding.DecodeString(msg.Attachments[0].Content)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(decoded), "attachment contents"))
}

func TestParse_EnvelopeFieldsAreSetByCaller(t *testing.T) {
	raw := []byte("From: a@example.com\r\n\r\nbody\r\n")
	msg, err := Parse(raw)
	require.NoError(t, err)

	// Parse never touches envelope data; that's the session's job.
	assert.Empty(t, msg.EnvelopeFrom)
	assert.Empty(t, msg.EnvelopeRecipients)
	assert.Equal(t, ID{}, msg.ID)
}

func TestParse_StructuralFailure(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)
}

func TestMessage_Metadata(t *testing.T) {
	msg := Message{
		HTML:        "<p>hi</p>",
		Attachments: []Attachment{newAttachment("a.txt", "", "text/plain", []byte("x"))},
	}
	meta := msg.Metadata()
	assert.True(t, meta.HasHTML)
	assert.False(t, meta.HasPlain)
	require.Len(t, meta.Attachments, 1)
	assert.Equal(t, "a.txt", meta.Attachments[0].Filename)
}
