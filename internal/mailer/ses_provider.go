package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the subset of ses.Client this package calls, narrowed to an
// interface so tests can substitute a fake client — the same shape the
// pack's own SES wrapper (Abraxas-365-manifesto/pkg/notifx/notifxses) uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESProvider implements EmailProvider using AWS SES, an alternative to
// SMTPProvider for deployments that would rather not run their own MTA.
type SESProvider struct {
	client sesAPI
	from   string
}

func NewSESProvider(client *ses.Client, fromAddress string) *SESProvider {
	return &SESProvider{client: client, from: fromAddress}
}

func (p *SESProvider) Send(ctx context.Context, payload EmailPayload) (string, error) {
	toAddr, err := sanitizeEmailAddress(payload.To)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address")
	}

	subject := emailSubject(payload.Template)
	body := emailBody(payload)

	out, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(p.from),
		Destination: &types.Destination{ToAddresses: []string{toAddr}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
