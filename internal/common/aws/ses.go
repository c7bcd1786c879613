// internal/common/aws/ses.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type SESClient struct {
	client *ses.Client
}

func NewSESClient(ctx context.Context, region string) (*SESClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SESClient{client: ses.NewFromConfig(cfg)}, nil
}

func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	return s.client.SendEmail(ctx, input)
}

// SendRawEmail sends a prebuilt MIME message, used for submissions that carry
// document attachments.
func (s *SESClient) SendRawEmail(ctx context.Context, input *ses.SendRawEmailInput) (*ses.SendRawEmailOutput, error) {
	return s.client.SendRawEmail(ctx, input)
}

// GetSendQuota returns the sending limits, used as a connectivity probe.
func (s *SESClient) GetSendQuota(ctx context.Context) (*ses.GetSendQuotaOutput, error) {
	return s.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
}
