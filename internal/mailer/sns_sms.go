package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsAPI narrows sns.Client to the one operation this package calls,
// grounded on the pack's own SNS notifier (mateoblack-sentinel/notification
// SNSNotifier), which defines the same kind of interface for testability.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSMSSender implements SMSSender using AWS SNS's direct-to-phone-number
// publish mode (no topic subscription required for transactional SMS).
type SNSSMSSender struct {
	client   snsAPI
	senderID string
}

func NewSNSSMSSender(client *sns.Client, senderID string) *SNSSMSSender {
	return &SNSSMSSender{client: client, senderID: senderID}
}

func (s *SNSSMSSender) Send(ctx context.Context, toE164, body string) (string, error) {
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(toE164),
		Message:     aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sns publish failed: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
