package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
)

// SES sends mail through Amazon SES using the default AWS credential chain.
type SES struct {
	svc  *ses.SES
	from string
}

// NewSES creates an SES mailer.
func NewSES(region, from string) (*SES, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %v", err)
	}
	return &SES{svc: ses.New(sess), from: from}, nil
}

// Send delivers email via SES.
func (s *SES) Send(ctx context.Context, email Email) error {
	body := &ses.Body{
		Text: &ses.Content{
			Charset: aws.String("UTF-8"),
			Data:    aws.String(email.TextBody),
		},
	}
	if email.HTMLBody != "" {
		body.Html = &ses.Content{
			Charset: aws.String("UTF-8"),
			Data:    aws.String(email.HTMLBody),
		}
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(email.To)},
		},
		Message: &ses.Message{
			Body: body,
			Subject: &ses.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(email.Subject),
			},
		},
		Source: aws.String(s.from),
	}

	if _, err := s.svc.SendEmailWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}
	return nil
}
