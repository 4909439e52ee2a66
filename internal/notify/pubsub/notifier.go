// Package pubsub implements the notification sink on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Notifier publishes fire-and-forget events to a Pub/Sub topic.
type Notifier struct {
	client       *pubsub.Client
	defaultTopic string
}

// New creates a Notifier. defaultTopic is used when Emit receives an empty
// topic name.
func New(ctx context.Context, projectID, defaultTopic string) (*Notifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Notifier{client: client, defaultTopic: defaultTopic}, nil
}

// Emit marshals the event envelope and publishes it. The publish result is
// not awaited; the Pub/Sub client retries in the background.
func (n *Notifier) Emit(ctx context.Context, topic, event string, payload any) error {
	if topic == "" {
		topic = n.defaultTopic
	}
	if topic == "" {
		return fmt.Errorf("no topic configured")
	}
	data, err := json.Marshal(map[string]any{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event, err)
	}
	n.client.Topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	return nil
}

// Close stops background publishers and closes the client.
func (n *Notifier) Close() error {
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
