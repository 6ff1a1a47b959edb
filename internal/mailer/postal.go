package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

const postalName = "postal"

// PostalProvider talks to a self-hosted Postal server: it parses Postal's
// HTTP endpoint webhook and sends through the Postal send API.
type PostalProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPostalProvider(cfg config.PostalConfig) (*PostalProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("postal.base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostalProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *PostalProvider) Name() string { return postalName }

type postalInbound struct {
	MailFrom      *string `json:"mail_from"`
	RcptTo        *string `json:"rcpt_to"`
	Subject       *string `json:"subject"`
	PlainBody     *string `json:"plain_body"`
	HTMLBody      *string `json:"html_body"`
	MessageID     *string `json:"message_id"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Cc            string  `json:"cc"`
	Date          string  `json:"date"`
	InReplyTo     string  `json:"in_reply_to"`
	References    string  `json:"references"`
	AutoSubmitted string  `json:"auto_submitted"`
}

func (p *PostalProvider) Receive(ctx context.Context, payload []byte) (*InboundMessage, error) {
	var in postalInbound
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, appErrors.NewMalformedPayload(postalName, err)
	}

	required := map[string]*string{
		"mail_from":  in.MailFrom,
		"rcpt_to":    in.RcptTo,
		"subject":    in.Subject,
		"message_id": in.MessageID,
	}
	for field, v := range required {
		if v == nil {
			return nil, appErrors.NewMalformedPayload(postalName, fmt.Errorf("missing field %q", field))
		}
	}
	if strings.TrimSpace(*in.MailFrom) == "" || strings.TrimSpace(*in.RcptTo) == "" {
		return nil, appErrors.NewMalformedPayload(postalName, errors.New("empty sender or recipient"))
	}
	if in.PlainBody == nil && in.HTMLBody == nil {
		return nil, appErrors.NewMalformedPayload(postalName, errors.New("missing plain_body and html_body"))
	}

	headers := model.Headers{}
	for key, value := range map[string]string{
		"From":           in.From,
		"To":             in.To,
		"Cc":             in.Cc,
		"Date":           in.Date,
		"In-Reply-To":    in.InReplyTo,
		"References":     in.References,
		"Auto-Submitted": in.AutoSubmitted,
	} {
		if value != "" {
			headers.Add(key, value)
		}
	}

	msg := &InboundMessage{
		From:      strings.TrimSpace(*in.MailFrom),
		To:        strings.TrimSpace(*in.RcptTo),
		Subject:   *in.Subject,
		Headers:   headers,
		MessageID: *in.MessageID,
	}
	if in.PlainBody != nil {
		msg.Body = *in.PlainBody
	}
	if in.HTMLBody != nil {
		msg.BodyHTML = *in.HTMLBody
	}
	msg.Body = plainBody(msg.Body, msg.BodyHTML)
	return msg, nil
}

type postalSendRequest struct {
	To        []string          `json:"to"`
	From      string            `json:"from"`
	Subject   string            `json:"subject"`
	PlainBody string            `json:"plain_body"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type postalSendResponse struct {
	Status string `json:"status"`
	Data   struct {
		MessageID string `json:"message_id"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	} `json:"data"`
}

func (p *PostalProvider) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	body, err := json.Marshal(postalSendRequest{
		To:        msg.To,
		From:      msg.From,
		Subject:   msg.Subject,
		PlainBody: msg.Body,
		Headers:   map[string]string{"Auto-Submitted": "auto-replied"},
	})
	if err != nil {
		return "", appErrors.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/send/message", bytes.NewReader(body))
	if err != nil {
		return "", appErrors.Permanent(err)
	}
	req.Header.Set("X-Server-API-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("postal request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read postal response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("postal returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", appErrors.Permanent(fmt.Errorf("postal returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out postalSendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("invalid postal response: %w", err)
	}
	if out.Status != "success" {
		return "", appErrors.Permanent(fmt.Errorf("postal rejected message: %s %s", out.Data.Code, out.Data.Message))
	}
	if out.Data.MessageID == "" {
		return "", fmt.Errorf("postal response carries no message id")
	}
	return out.Data.MessageID, nil
}

var _ Provider = (*PostalProvider)(nil)
