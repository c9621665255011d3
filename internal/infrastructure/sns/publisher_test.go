package sns

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gke-notify/internal/config"
	"github.com/gke-notify/internal/domain"
)

type mockSNS struct{ mock.Mock }

func (m *mockSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	if out, _ := args.Get(0).(*sns.PublishOutput); out != nil {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func testEvent(name string) domain.NotificationEvent {
	return &domain.UpgradeEvent{EventHeader: domain.EventHeader{
		Type:     domain.TypeUpgrade,
		Resource: domain.Resource{Type: "cluster", Name: name},
	}}
}

func TestPublish_SendsTextLine(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:aws:sns:us-east-1:123:gke" &&
			aws.ToString(in.Message) == "line" &&
			aws.ToString(in.Subject) == "UpgradeEvent: cluster/prod" &&
			aws.ToString(in.MessageAttributes["event_type"].StringValue) == domain.TypeUpgrade
	})).Return(&sns.PublishOutput{MessageId: aws.String("m-1")}, nil)

	p := NewPublisherWithClient(client, "arn:aws:sns:us-east-1:123:gke")
	require.NoError(t, p.Publish(context.Background(), testEvent("prod"), domain.FormattedMessage{Text: "line"}))
	client.AssertExpectations(t)
}

func TestPublish_TruncatesSubject(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return len(aws.ToString(in.Subject)) == maxSubjectLen
	})).Return(&sns.PublishOutput{}, nil)

	p := NewPublisherWithClient(client, "arn")
	require.NoError(t, p.Publish(context.Background(), testEvent(strings.Repeat("x", 200)), domain.FormattedMessage{Text: "line"}))
	client.AssertExpectations(t)
}

func TestPublish_WrapsError(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	err := NewPublisherWithClient(client, "arn").Publish(context.Background(), testEvent("prod"), domain.FormattedMessage{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewPublisher_RequiresTopic(t *testing.T) {
	_, err := NewPublisher(context.Background(), &config.Config{})
	assert.Error(t, err)
}

func TestSubject_Sanitized(t *testing.T) {
	tests := []struct {
		name string
		h    domain.EventHeader
		want string
	}{
		{"plain", domain.EventHeader{Type: "UpgradeEvent", Resource: domain.Resource{Type: "cluster", Name: "prod"}}, "UpgradeEvent: cluster/prod"},
		{"non-ascii replaced", domain.EventHeader{Type: "Événement", Resource: domain.Resource{Name: "prod"}}, "?v?nement: prod"},
		{"newlines collapsed", domain.EventHeader{Type: "  Upgrade\n\tEvent"}, "Upgrade Event: -"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(&tt.h))
		})
	}
}

func TestSubject_TruncationKeepsASCII(t *testing.T) {
	h := domain.EventHeader{Type: domain.TypeUpgrade, Resource: domain.Resource{Type: "cluster", Name: strings.Repeat("é", 120)}}
	got := Subject(&h)
	assert.LessOrEqual(t, len(got), maxSubjectLen)
	for _, r := range got {
		assert.True(t, r >= 0x20 && r <= 0x7e, "unexpected rune %q", r)
	}
}
