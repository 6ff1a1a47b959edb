package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-0001")}, nil
}

const rawInbound = "From: Ada <a@x.com>\r\n" +
	"To: news-tag@y.com\r\n" +
	"Subject: Hello there\r\n" +
	"Message-Id: <orig@x.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Count me in\r\n"

func snsPayload(t *testing.T, content, encoding, msgType string) []byte {
	t.Helper()
	notification := map[string]any{
		"notificationType": "Received",
		"mail": map[string]any{
			"source":        "bounce+a@x.com",
			"messageId":     "ses-in-1",
			"destination":   []string{"news-tag@y.com"},
			"commonHeaders": map[string]any{"subject": "Hello there"},
		},
		"receipt": map[string]any{
			"recipients": []string{"news-tag@y.com"},
			"action":     map[string]any{"type": "SNS", "encoding": encoding},
		},
		"content": content,
	}
	inner, err := json.Marshal(notification)
	require.NoError(t, err)
	outer, err := json.Marshal(map[string]string{"Type": msgType, "MessageId": "sns-1", "Message": string(inner)})
	require.NoError(t, err)
	return outer
}

func TestSESReceive(t *testing.T) {
	p := &SESProvider{client: &fakeSES{}}

	for _, enc := range []string{"UTF8", "BASE64"} {
		t.Run(enc, func(t *testing.T) {
			content := rawInbound
			if enc == "BASE64" {
				content = base64.StdEncoding.EncodeToString([]byte(rawInbound))
			}

			msg, err := p.Receive(context.Background(), snsPayload(t, content, enc, "Notification"))
			require.NoError(t, err)
			assert.Equal(t, "bounce+a@x.com", msg.From)
			assert.Equal(t, "news-tag@y.com", msg.To)
			assert.Equal(t, "Hello there", msg.Subject)
			assert.Equal(t, "Count me in\r\n", msg.Body)
			assert.Equal(t, "ses-in-1", msg.MessageID)
			assert.Equal(t, "<orig@x.com>", msg.Headers.Get("Message-Id"))
		})
	}
}

func TestSESReceiveMalformed(t *testing.T) {
	p := &SESProvider{client: &fakeSES{}}

	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("nope")},
		{"subscription confirmation", snsPayload(t, rawInbound, "UTF8", "SubscriptionConfirmation")},
		{"no content", snsPayload(t, "", "UTF8", "Notification")},
		{"bad base64", snsPayload(t, "***", "BASE64", "Notification")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Receive(context.Background(), tt.payload)
			var malformed *appErrors.ErrMalformedPayload
			assert.ErrorAs(t, err, &malformed)
		})
	}
}

func TestSESSend(t *testing.T) {
	fake := &fakeSES{}
	p := &SESProvider{client: fake, configurationSet: "autoresponder"}

	id, err := p.Send(context.Background(), &OutboundMessage{
		From: "hello@news.example", To: []string{"a@x.com"}, Subject: "Re: Hello", Body: "Thanks",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-0001", id)

	in := fake.input
	assert.Equal(t, "hello@news.example", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"a@x.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Re: Hello", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "Thanks", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "autoresponder", aws.ToString(in.ConfigurationSetName))
	require.Len(t, in.Content.Simple.Headers, 1)
	assert.Equal(t, "Auto-Submitted", aws.ToString(in.Content.Simple.Headers[0].Name))
}

func TestSESSendErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"rejected", &smithy.GenericAPIError{Code: "MessageRejected"}, true},
		{"unverified domain", &smithy.GenericAPIError{Code: "MailFromDomainNotVerifiedException"}, true},
		{"throttled", &smithy.GenericAPIError{Code: "TooManyRequestsException"}, false},
		{"network", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SESProvider{client: &fakeSES{err: tt.err}}
			_, err := p.Send(context.Background(), &OutboundMessage{From: "f@x", To: []string{"t@x"}})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, appErrors.IsPermanent(err))
		})
	}
}
