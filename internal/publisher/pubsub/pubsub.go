// Package pubsub publishes sync events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Publisher sends JSON-encoded events to topics in one project.
type Publisher struct {
	client *gpubsub.Client
	logger *zap.Logger
}

// New builds a Publisher for the given project.
func New(ctx context.Context, projectID string, logger *zap.Logger) (*Publisher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("pubsub: project id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := gpubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{client: client, logger: logger.Named("pubsub")}, nil
}

// Publish implements listing.Publisher. It blocks until the server
// acknowledges the message and returns the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	t := p.client.Topic(topic)
	defer t.Stop()

	result := t.Publish(ctx, &gpubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Info("event published",
		zap.String("topic", topic),
		zap.String("message_id", id),
	)
	return id, nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
