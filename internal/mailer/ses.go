package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
)

const sesName = "ses"

// sesAPI is the subset of the SES v2 client used for sending.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends through Amazon SES and receives SES receipt
// notifications delivered by SNS.
type SESProvider struct {
	client           sesAPI
	configurationSet string
}

func NewSESProvider(ctx context.Context, cfg config.SESConfig) (*SESProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SESProvider{
		client:           sesv2.NewFromConfig(awsCfg),
		configurationSet: cfg.ConfigurationSet,
	}, nil
}

func (p *SESProvider) Name() string { return sesName }

type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	Message   string `json:"Message"`
}

type sesNotification struct {
	NotificationType string `json:"notificationType"`
	Mail             struct {
		Source        string   `json:"source"`
		MessageID     string   `json:"messageId"`
		Destination   []string `json:"destination"`
		CommonHeaders struct {
			Subject string `json:"subject"`
		} `json:"commonHeaders"`
	} `json:"mail"`
	Receipt struct {
		Recipients []string `json:"recipients"`
		Action     struct {
			Type     string `json:"type"`
			Encoding string `json:"encoding"`
		} `json:"action"`
	} `json:"receipt"`
	Content string `json:"content"`
}

func (p *SESProvider) Receive(ctx context.Context, payload []byte) (*InboundMessage, error) {
	var env snsEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, appErrors.NewMalformedPayload(sesName, err)
	}
	if env.Type != "Notification" {
		return nil, appErrors.NewMalformedPayload(sesName, fmt.Errorf("unexpected SNS message type %q", env.Type))
	}

	var n sesNotification
	if err := json.Unmarshal([]byte(env.Message), &n); err != nil {
		return nil, appErrors.NewMalformedPayload(sesName, fmt.Errorf("invalid SES notification: %w", err))
	}
	if n.NotificationType != "Received" {
		return nil, appErrors.NewMalformedPayload(sesName, fmt.Errorf("unexpected notification type %q", n.NotificationType))
	}
	if n.Content == "" {
		return nil, appErrors.NewMalformedPayload(sesName, errors.New("notification carries no message content"))
	}

	raw := []byte(n.Content)
	if strings.EqualFold(n.Receipt.Action.Encoding, "BASE64") {
		decoded, err := base64.StdEncoding.DecodeString(n.Content)
		if err != nil {
			return nil, appErrors.NewMalformedPayload(sesName, fmt.Errorf("invalid base64 content: %w", err))
		}
		raw = decoded
	}

	msg, err := parseRawMessage(raw)
	if err != nil {
		return nil, appErrors.NewMalformedPayload(sesName, err)
	}

	// The envelope wins over the headers.
	if n.Mail.Source != "" {
		msg.From = n.Mail.Source
	}
	switch {
	case len(n.Receipt.Recipients) > 0:
		msg.To = n.Receipt.Recipients[0]
	case len(n.Mail.Destination) > 0:
		msg.To = n.Mail.Destination[0]
	}
	if msg.Subject == "" {
		msg.Subject = n.Mail.CommonHeaders.Subject
	}
	if n.Mail.MessageID != "" {
		msg.MessageID = n.Mail.MessageID
	}

	if msg.From == "" || msg.To == "" {
		return nil, appErrors.NewMalformedPayload(sesName, errors.New("empty sender or recipient"))
	}
	return msg, nil
}

func (p *SESProvider) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
				Headers: []types.MessageHeader{
					{Name: aws.String("Auto-Submitted"), Value: aws.String("auto-replied")},
				},
			},
		},
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return "", classifySESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

// classifySESError marks rejections that a retry cannot fix as permanent.
func classifySESError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("ses send failed: %w", err)
	}

	switch strings.TrimSuffix(apiErr.ErrorCode(), "Exception") {
	case "MessageRejected", "MailFromDomainNotVerified", "AccountSuspended",
		"SendingPaused", "BadRequest", "NotFound":
		return appErrors.Permanent(fmt.Errorf("ses rejected message: %w", err))
	default:
		return fmt.Errorf("ses send failed: %w", err)
	}
}

var _ Provider = (*SESProvider)(nil)
