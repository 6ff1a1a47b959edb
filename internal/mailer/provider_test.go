package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
)

func TestNewProviderSelectsByConfig(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("postal.base_url", "https://postal.example")

	for _, name := range []string{"postal", "smtp"} {
		cfg.Set("mail.provider", name)
		p, err := NewProvider(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}

	cfg.Set("mail.provider", "carrier-pigeon")
	_, err := NewProvider(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestPlainBody(t *testing.T) {
	assert.Equal(t, "plain", plainBody("plain", "<p>html</p>"))
	assert.Equal(t, "", plainBody("", ""))
	assert.Contains(t, plainBody("  ", "<div>from html</div>"), "from html")
}

func TestBuildMessageRejectsBadAddresses(t *testing.T) {
	p := NewSMTPProvider(config.SMTPConfig{Host: "127.0.0.1", Port: 1})
	_, err := p.Send(context.Background(), &OutboundMessage{From: "not an address", To: []string{"a@x.com"}})
	require.Error(t, err)
	assert.True(t, appErrors.IsPermanent(err))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "news.example", domainOf("hello@news.example"))
	assert.Equal(t, "localhost", domainOf("nobody"))
}
