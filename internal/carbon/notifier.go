package carbon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EstimateCompletedEvent is published after an estimate has been stored
type EstimateCompletedEvent struct {
	EventType      string    `json:"event_type"`
	FarmID         uuid.UUID `json:"farm_id"`
	CompanyID      uuid.UUID `json:"company_id"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	TotalCO2Tonnes float64   `json:"total_co2_tonnes"`
	MeanConfidence float64   `json:"mean_confidence_score"`
	LandUseClass   string    `json:"land_use_class"`
	StoredPoints   int       `json:"stored_points"`
	Trigger        string    `json:"trigger"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Notifier announces completed estimates to downstream consumers
type Notifier interface {
	EstimateCompleted(ctx context.Context, event EstimateCompletedEvent) error
}

// SNSPublisher is the subset of the SNS client used by SNSNotifier
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes events to an SNS topic
type SNSNotifier struct {
	client   SNSPublisher
	topicARN string
	logger   *zap.Logger
}

// NewSNSNotifier creates a notifier for topicARN
func NewSNSNotifier(client SNSPublisher, topicARN string, logger *zap.Logger) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN, logger: logger}
}

// EstimateCompleted publishes the event as JSON with an event_type attribute
func (n *SNSNotifier) EstimateCompleted(ctx context.Context, event EstimateCompletedEvent) error {
	if event.EventType == "" {
		event.EventType = "carbon.estimate.completed"
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal estimate event: %w", err)
	}

	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("Carbon estimate completed"),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(event.EventType)},
			"farm_id":    {DataType: aws.String("String"), StringValue: aws.String(event.FarmID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish estimate event: %w", err)
	}

	n.logger.Debug("Published estimate event",
		zap.String("farm_id", event.FarmID.String()),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// NopNotifier discards events. Used when no topic is configured.
type NopNotifier struct{}

func (NopNotifier) EstimateCompleted(context.Context, EstimateCompletedEvent) error { return nil }
