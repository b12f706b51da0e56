package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

// SNSNotifier publishes alert events to an SNS topic. It is the
// engine's external notification channel; delivery failures are the
// caller's to log, never to roll back.
type SNSNotifier struct {
	svc      *sns.Client
	topicArn string
}

// NewSNSNotifier creates an SNS-backed notifier.
func NewSNSNotifier(ctx context.Context, region, topicArn string) (*SNSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &SNSNotifier{
		svc:      sns.NewFromConfig(cfg),
		topicArn: topicArn,
	}, nil
}

// snsMessage is the envelope the downstream email notifier consumes.
type snsMessage struct {
	Subject string            `json:"subject"`
	Body    string            `json:"bodyText"`
	Payload domain.AlertEvent `json:"payload"`
}

// PublishAlert sends one alert event to the topic.
func (n *SNSNotifier) PublishAlert(ctx context.Context, ev domain.AlertEvent) error {
	msg := snsMessage{
		Subject: subjectFor(ev),
		Body:    bodyFor(ev),
		Payload: ev,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}
	_, err = n.svc.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(msg.Subject),
		Message:  aws.String(string(raw)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

func subjectFor(ev domain.AlertEvent) string {
	verb := "Alert Raised"
	if ev.Status == domain.AlertEventCleared {
		verb = "Alert Cleared"
	}
	return fmt.Sprintf("Greenhouse %s: %s (%s)", verb, ev.DeviceID, ev.Channel)
}

func bodyFor(ev domain.AlertEvent) string {
	return fmt.Sprintf(
		"Device: %s\nChannel: %s\nStatus: %s\n\n%s\n\nEvaluated at: %s\n",
		ev.DeviceID,
		ev.Channel,
		ev.Status,
		ev.Message,
		ev.Timestamp.Format("2006-01-02 15:04:05 MST"),
	)
}
