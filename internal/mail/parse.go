package mail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
)

// ErrUnparseable is returned when the parser cannot extract a message at
// all — no usable header block, not even a malformed one. Content-level
// defects (missing From, bad charset, unparseable addresses) never produce
// this error; they degrade to placeholders instead.
var ErrUnparseable = errors.New("mail: could not parse message")

// Parse interprets raw as an RFC 5322 message with MIME extensions and
// produces a Message. Only structural failures return an error; everything
// else is tolerated with sane defaults, per the parser's "never hard
// reject" contract.
func Parse(raw []byte) (Message, error) {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !isTolerable(err) {
		return Message{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	header := gomail.Header{Header: entity.Header}

	subject, _ := header.Subject()

	when, dateErr := header.Date()
	if dateErr != nil {
		when = time.Now()
	}

	msg := Message{
		Time:               when.Unix(),
		Date:               when.Format("2006-01-02 15:04:05"),
		Size:               humanize.Bytes(uint64(len(raw))),
		From:               firstAddressOrPlaceholder(header, "From"),
		To:                 addressListOrPlaceholder(header, "To"),
		Subject:            subject,
		Headers:            collectHeaders(entity.Header),
		Raw:                base64.StdEncoding.EncodeToString(raw),
		EnvelopeRecipients: []string{},
	}

	walkBody(&msg, entity)

	return msg, nil
}

// isTolerable reports whether an error returned by gomessage.Read still
// left us with a usable (if imperfect) entity: an unknown charset or an
// unknown transfer encoding, both of which go-message surfaces as errors
// while still handing back a parsed entity. Any other read error, such as a
// malformed header line, yields no entity and is treated as structural.
func isTolerable(err error) bool {
	return gomessage.IsUnknownCharset(err) || gomessage.IsUnknownEncoding(err)
}

func firstAddressOrPlaceholder(header gomail.Header, key string) Address {
	addrs, err := header.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return placeholderFromAddress()
	}
	return toAddress(addrs[0])
}

func addressListOrPlaceholder(header gomail.Header, key string) []Address {
	addrs, err := header.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return []Address{placeholderToAddress()}
	}
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, toAddress(a))
	}
	return out
}

func toAddress(a *gomail.Address) Address {
	return Address{Name: a.Name, Email: a.Address}
}

func collectHeaders(h gomessage.Header) map[string]string {
	out := make(map[string]string)
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		out[fields.Key()] = value
	}
	return out
}

// walkBody populates msg.Text, msg.HTML, and msg.Attachments by recursively
// walking a (possibly multipart) entity, preserving document order: first
// text part, first html part, attachments in the order they appear.
func walkBody(msg *Message, entity *gomessage.Entity) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			walkBody(msg, part)
		}
	}

	contentType, _, _ := entity.Header.ContentType()
	disposition, dispParams, _ := entity.Header.ContentDisposition()

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return
	}

	attachHeader := gomail.AttachmentHeader{Header: entity.Header}
	filename, _ := attachHeader.Filename()
	if filename == "" {
		filename = dispParams["filename"]
	}

	isAttachment := strings.EqualFold(disposition, "attachment") || filename != ""

	switch {
	case isAttachment:
		msg.Attachments = append(msg.Attachments, newAttachment(filename, contentID(entity.Header), contentType, body))
	case strings.HasPrefix(contentType, "text/html"):
		if msg.HTML == "" {
			msg.HTML = string(body)
		}
	case strings.HasPrefix(contentType, "text/"):
		if msg.Text == "" {
			msg.Text = string(body)
		}
	default:
		msg.Attachments = append(msg.Attachments, newAttachment(filename, contentID(entity.Header), contentType, body))
	}
}

func contentID(h gomessage.Header) string {
	id := h.Get("Content-Id")
	return strings.Trim(id, "<>")
}
