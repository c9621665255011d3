package sns

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/gke-notify/internal/config"
	"github.com/gke-notify/internal/domain"
)

// maxSubjectLen is the SNS limit for email subjects.
const maxSubjectLen = 100

// Publisher mirrors notification summaries to an SNS topic, so email or SMS
// subscribers get them without a chat workspace.
type Publisher interface {
	Publish(ctx context.Context, ev domain.NotificationEvent, msg domain.FormattedMessage) error
}

// API is the subset of the SNS client used here.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type publisher struct {
	client   API
	topicARN string
}

// NewPublisher builds a Publisher for cfg.SNSTopicARN. When cfg.AWSEndpointURL
// is set (LocalStack), all traffic goes to that endpoint.
func NewPublisher(ctx context.Context, cfg *config.Config) (Publisher, error) {
	if cfg.SNSTopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SNSRegion),
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	clientOpts := []func(*sns.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return NewPublisherWithClient(sns.NewFromConfig(awsCfg, clientOpts...), cfg.SNSTopicARN), nil
}

// NewPublisherWithClient wraps an existing client.
func NewPublisherWithClient(client API, topicARN string) Publisher {
	return &publisher{client: client, topicARN: topicARN}
}

func (p *publisher) Publish(ctx context.Context, ev domain.NotificationEvent, msg domain.FormattedMessage) error {
	h := ev.Header()
	subject := Subject(h)

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(msg.Text),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(h.Type)},
			"resource":   {DataType: aws.String("String"), StringValue: aws.String(h.Resource.Label())},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to SNS: %w", err)
	}
	return nil
}

// Subject builds an SNS subject from the event header. SNS accepts printable
// ASCII only, on one line, starting with a letter, number or punctuation.
func Subject(h *domain.EventHeader) string {
	raw := fmt.Sprintf("%s: %s", h.Type, h.Resource.Label())

	var b strings.Builder
	space := false
	for _, r := range raw {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			space = b.Len() > 0
			continue
		case r < 0x21 || r > 0x7e:
			r = '?'
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	subject := b.String()
	if len(subject) > maxSubjectLen {
		subject = strings.TrimRight(subject[:maxSubjectLen], " ")
	}
	if subject == "" {
		return "GKE notification"
	}
	return subject
}
