package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
)

const smtpName = "smtp"

var now = time.Now

// SMTPProvider relays replies through an SMTP server and accepts inbound
// mail as raw RFC 5322 messages.
type SMTPProvider struct {
	cfg config.SMTPConfig
}

func NewSMTPProvider(cfg config.SMTPConfig) *SMTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Helo == "" {
		cfg.Helo = "localhost"
	}
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Name() string { return smtpName }

func (p *SMTPProvider) Receive(ctx context.Context, payload []byte) (*InboundMessage, error) {
	msg, err := parseRawMessage(payload)
	if err != nil {
		return nil, appErrors.NewMalformedPayload(smtpName, err)
	}
	if msg.From == "" || msg.To == "" {
		return nil, appErrors.NewMalformedPayload(smtpName, errors.New("missing From or To header"))
	}
	return msg, nil
}

func (p *SMTPProvider) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	dialer := &net.Dialer{Timeout: p.cfg.Timeout}
	tlsConfig := &tls.Config{ServerName: p.cfg.Host}

	var conn net.Conn
	var err error
	if p.cfg.TLS == "tls" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(p.cfg.Timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	if err := c.Hello(p.cfg.Helo); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}
	if p.cfg.TLS == "starttls" {
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			c.Close()
			return nil, classifySMTPError("AUTH", err)
		}
	}
	return c, nil
}

// Send delivers msg and returns the Message-ID it was given.
func (p *SMTPProvider) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	messageID := uuid.NewString() + "@" + domainOf(msg.From)
	data, err := buildMessage(msg, messageID)
	if err != nil {
		return "", appErrors.Permanent(err)
	}

	c, err := p.dial(ctx)
	if err != nil {
		return "", err
	}
	defer c.Close()

	if err := c.Mail(msg.From, nil); err != nil {
		return "", classifySMTPError("MAIL FROM", err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return "", classifySMTPError("RCPT TO", err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return "", classifySMTPError("DATA", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return "", fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", classifySMTPError("DATA", err)
	}

	// The message is accepted once DATA completes.
	_ = c.Quit()
	return "<" + messageID + ">", nil
}

// classifySMTPError marks 5xx replies as permanent.
func classifySMTPError(stage string, err error) error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) && !smtpErr.Temporary() {
		return appErrors.Permanent(fmt.Errorf("%s rejected: %w", stage, err))
	}
	return fmt.Errorf("%s failed: %w", stage, err)
}

var _ Provider = (*SMTPProvider)(nil)
