package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"tickler/internal/types"
)

// SESAPI is the subset of the SES v2 client used here, extracted so tests can
// inject a fake.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClientConfig configures an SESClient.
type SESClientConfig struct {
	// ConfigSetName names the SES configuration set for delivery tracking.
	// Empty means no configuration set.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient delivers reminders through AWS SES v2. IAM handles auth and the
// AWS SDK carries its own retry middleware, so unlike SendGrid this provider
// does not sit behind BaseClient.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESClient creates an SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESClientWithAPI creates an SESClient around an injected SESAPI.
func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{
		api:           api,
		configSetName: cfg.ConfigSetName,
		logger:        logger,
	}
}

// Send delivers one email via SES SendEmail with simple content and returns
// the provider message ID. The reference ID rides along as a message tag so
// SES delivery events can be correlated back to the originating reminder.
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	emailInput := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(formatFromAddress(input.From)),
		Destination: &sestypes.Destination{
			ToAddresses: []string{input.To},
		},
		Content: &sestypes.EmailContent{
			Simple: buildSESMessage(input),
		},
	}

	if s.configSetName != "" {
		emailInput.ConfigurationSetName = aws.String(s.configSetName)
	}
	if input.ReferenceID != "" {
		emailInput.EmailTags = []sestypes.MessageTag{{
			Name:  aws.String("ReferenceID"),
			Value: aws.String(input.ReferenceID),
		}}
	}

	result, err := s.api.SendEmail(ctx, emailInput)
	if err != nil {
		return "", mapSESError(err)
	}

	if result.MessageId == nil {
		return "", nil
	}
	return *result.MessageId, nil
}

// formatFromAddress renders "Name <addr>" or the bare address when the
// sender has no display name.
func formatFromAddress(from types.EmailAddress) string {
	if from.Name == "" {
		return from.Address
	}
	return fmt.Sprintf("%s <%s>", from.Name, from.Address)
}

func buildSESMessage(input types.SendInput) *sestypes.Message {
	msg := &sestypes.Message{
		Subject: &sestypes.Content{
			Data:    aws.String(input.Subject),
			Charset: aws.String("UTF-8"),
		},
		Body: &sestypes.Body{},
	}
	if input.BodyHTML != "" {
		msg.Body.Html = &sestypes.Content{
			Data:    aws.String(input.BodyHTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if input.BodyText != "" {
		msg.Body.Text = &sestypes.Content{
			Data:    aws.String(input.BodyText),
			Charset: aws.String("UTF-8"),
		}
	}
	return msg
}

// mapSESError translates SES failures into domain AppErrors: a rejected
// message is a permanent recipient-level failure, throttling is retryable,
// everything else is a provider outage.
func mapSESError(err error) error {
	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("SES rejected message: %v", err),
			err,
		)
	}

	var tooManyReqs *sestypes.TooManyRequestsException
	if errors.As(err, &tooManyReqs) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("SES rate limit exceeded: %v", err),
			err,
		)
	}

	var sendingPaused *sestypes.SendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SES account sending paused: %v", err),
			err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SES error: %v", err),
		err,
	)
}

var _ EmailProvider = (*SESClient)(nil)
