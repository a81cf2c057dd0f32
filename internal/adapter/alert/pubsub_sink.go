package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

const defaultPublishTimeout = 15 * time.Second

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubSink publishes alerts as JSON messages to a Pub/Sub topic.
type PubSubSink struct {
	pub     publisher
	timeout time.Duration
	closer  func() error
}

// NewPubSubSink connects to projectID and publishes to topic (ID or full resource name).
func NewPubSubSink(ctx context.Context, projectID, topic string) (*PubSubSink, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("gcp project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	p := client.Publisher(topicResourceName(projectID, topic))
	return &PubSubSink{
		pub:     &gcpPublisher{Publisher: p},
		timeout: defaultPublishTimeout,
		closer: func() error {
			p.Stop()
			return client.Close()
		},
	}, nil
}

func topicResourceName(projectID, topic string) string {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "projects/") && strings.Contains(t, "/topics/") {
		return t
	}
	return fmt.Sprintf("projects/%s/topics/%s", strings.TrimSpace(projectID), t)
}

func (s *PubSubSink) Emit(ctx context.Context, alert domain.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"status":         string(alert.Status),
			"product_id":     alert.ProductID,
			"store_location": alert.StoreLocation,
			"transaction_id": alert.TriggeringTransactionID,
			"emitted_at":     alert.EmittedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result := s.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return domain.NewTransportError("publish alert", err)
	}
	return nil
}

func (s *PubSubSink) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}
