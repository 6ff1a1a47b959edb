package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

// parseRawMessage extracts the parts of an RFC 5322 message the inbox needs.
// The first text/plain and text/html inline parts become Body and BodyHTML.
func parseRawMessage(raw []byte) (*InboundMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	msg := &InboundMessage{Headers: model.Headers{}}
	fields := mr.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers.Add(fields.Key(), value)
	}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil && len(to) > 0 {
		msg.To = to[0].Address
	}
	if msg.Subject, err = mr.Header.Subject(); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	msg.MessageID, _ = mr.Header.MessageID()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := inline.ContentType()
		if mediaType == "" {
			mediaType = "text/plain"
		}
		if mediaType != "text/plain" && mediaType != "text/html" {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s part: %w", mediaType, err)
		}
		if mediaType == "text/plain" && msg.Body == "" {
			msg.Body = string(body)
		}
		if mediaType == "text/html" && msg.BodyHTML == "" {
			msg.BodyHTML = string(body)
		}
	}

	msg.Body = plainBody(msg.Body, msg.BodyHTML)
	return msg, nil
}

// plainBody falls back to a text rendering of html when plain is empty.
func plainBody(plain, html string) string {
	if strings.TrimSpace(plain) != "" || html == "" {
		return plain
	}
	return html2text.HTML2Text(html)
}

// buildMessage renders msg as a plain-text RFC 5322 message marked as an
// automatic reply.
func buildMessage(msg *OutboundMessage, messageID string) ([]byte, error) {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
	}
	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		a, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", addr, err)
		}
		to = append(to, a)
	}

	var h mail.Header
	h.SetDate(now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	h.SetMessageID(messageID)
	h.Set("Auto-Submitted", "auto-replied")
	h.Set("X-Auto-Response-Suppress", "All")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// domainOf returns the part after the last @, or "localhost".
func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return strings.Trim(address[i+1:], "> ")
	}
	return "localhost"
}
