// Package pubsub implements a notifier backed by Google Cloud Pub/Sub. A
// downstream consumer turns messages into emails and in-app alerts.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/sedamusic/claim-verifier/internal/claims"
)

// Config captures the parameters required to publish notifications.
type Config struct {
	ProjectID string
	TopicID   string
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Publisher publishes claim notifications to a Pub/Sub topic.
type Publisher struct {
	topic topicPublisher
}

// New connects a Pub/Sub client and returns a Publisher for the configured
// topic.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub project id is required")
	}
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub topic id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{topic: client.Topic(cfg.TopicID)}, nil
}

// NewWithTopic constructs a Publisher from an existing topic (primarily for testing).
func NewWithTopic(topic topicPublisher) *Publisher {
	return &Publisher{topic: topic}
}

type message struct {
	UserID  string                  `json:"user_id"`
	Kind    claims.NotificationKind `json:"kind"`
	Payload map[string]any          `json:"payload,omitempty"`
}

// Notify publishes one notification and waits for the server ack.
func (p *Publisher) Notify(ctx context.Context, userID string, kind claims.NotificationKind, payload map[string]any) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(message{UserID: userID, Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":    string(kind),
			"user_id": userID,
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
