// Package mail holds MailCrab's message data model and the RFC 5322/MIME
// parser that turns a raw SMTP DATA buffer into a Message.
package mail

import (
	"encoding/base64"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ID uniquely identifies a captured message. It is a version-4 UUID
// assigned once at ingest and never changes.
type ID = uuid.UUID

// NewID generates a fresh message identifier.
func NewID() ID {
	return uuid.New()
}

// Address is an RFC 5322 mailbox. Both fields are optional because address
// headers in the wild are frequently malformed.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// placeholderFromAddress is substituted whenever a From header is missing
// or cannot be parsed at all, so downstream consumers never see a zero
// Address.
func placeholderFromAddress() Address {
	return Address{Name: "No from header", Email: "no-from-header@example.com"}
}

// placeholderToAddress is substituted whenever a To header is missing or
// cannot be parsed at all.
func placeholderToAddress() Address {
	return Address{Name: "No to header", Email: "no-to-header@example.com"}
}

// Attachment is a single MIME part flagged as an attachment.
type Attachment struct {
	Filename  string `json:"filename"`
	ContentID string `json:"content_id,omitempty"`
	Mime      string `json:"mime"`
	Size      string `json:"size"`
	Content   string `json:"content"`

	// raw is the decoded byte payload, exposed through Raw. It is never
	// marshaled (lowercase, and content carries the base64 form already).
	raw []byte
}

// Raw returns the attachment's decoded bytes.
func (a Attachment) Raw() []byte { return a.raw }

func newAttachment(filename, contentID, mime string, data []byte) Attachment {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return Attachment{
		Filename:  filename,
		ContentID: contentID,
		Mime:      mime,
		Size:      humanize.Bytes(uint64(len(data))),
		Content:   base64.StdEncoding.EncodeToString(data),
		raw:       data,
	}
}

// Message is the canonical record of one captured email.
type Message struct {
	ID                 ID           `json:"id"`
	Time               int64        `json:"time"`
	Date               string       `json:"date"`
	Size               string       `json:"size"`
	From               Address      `json:"from"`
	To                 []Address    `json:"to"`
	Subject            string       `json:"subject"`
	Text               string       `json:"text"`
	HTML               string       `json:"html"`
	Attachments        []Attachment `json:"attachments"`
	Headers            map[string]string `json:"headers"`
	Raw                string       `json:"raw"`
	Opened             bool         `json:"opened"`
	EnvelopeFrom       string       `json:"envelope_from"`
	EnvelopeRecipients []string     `json:"envelope_recipients"`
}

// Metadata is the lightweight projection of a Message used for list views
// and live push, dropping bodies, raw bytes, headers, and attachment
// content in favor of boolean presence flags.
type Metadata struct {
	ID                 ID                 `json:"id"`
	Time               int64              `json:"time"`
	Date               string             `json:"date"`
	Size               string             `json:"size"`
	From               Address            `json:"from"`
	To                 []Address          `json:"to"`
	Subject            string             `json:"subject"`
	HasHTML            bool               `json:"has_html"`
	HasPlain           bool               `json:"has_plain"`
	Attachments        []AttachmentMeta   `json:"attachments"`
	Opened             bool               `json:"opened"`
	EnvelopeFrom       string             `json:"envelope_from"`
	EnvelopeRecipients []string           `json:"envelope_recipients"`
}

// AttachmentMeta is the metadata-only projection of an Attachment.
type AttachmentMeta struct {
	Filename string `json:"filename"`
	Mime     string `json:"mime"`
	Size     string `json:"size"`
}

// Metadata projects the full Message down to its metadata view.
func (m Message) Metadata() Metadata {
	attachments := make([]AttachmentMeta, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, AttachmentMeta{
			Filename: a.Filename,
			Mime:     a.Mime,
			Size:     a.Size,
		})
	}
	return Metadata{
		ID:                 m.ID,
		Time:               m.Time,
		Date:               m.Date,
		Size:               m.Size,
		From:               m.From,
		To:                 m.To,
		Subject:            m.Subject,
		HasHTML:            m.HTML != "",
		HasPlain:           m.Text != "",
		Attachments:        attachments,
		Opened:             m.Opened,
		EnvelopeFrom:       m.EnvelopeFrom,
		EnvelopeRecipients: m.EnvelopeRecipients,
	}
}

// Body returns the message's preferred rendering: HTML if present,
// otherwise plain text.
func (m Message) Body() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Text
}
