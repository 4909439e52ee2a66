// Package bus consumes request envelopes from Pub/Sub and returns dispatch
// results on the response topic.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/dispatcher"
	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// Subscriber pulls request envelopes and feeds them to the dispatcher.
type Subscriber struct {
	client        *pubsub.Client
	subscription  string
	responseTopic string
	dispatcher    *dispatcher.Dispatcher
	logger        *zap.Logger
}

// New creates a Subscriber bound to one subscription.
func New(ctx context.Context, projectID, subscription, responseTopic string, d *dispatcher.Dispatcher, logger *zap.Logger) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Subscriber{
		client:        client,
		subscription:  subscription,
		responseTopic: responseTopic,
		dispatcher:    d,
		logger:        logger,
	}, nil
}

// Run blocks receiving messages until ctx ends. Malformed envelopes are
// acked and dropped; the dispatcher never lets an internal error escape as
// an unhandled failure.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.Subscription(s.subscription)
	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var req onch.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.logger.Warn("malformed request envelope", zap.Error(err))
			msg.Ack()
			return
		}
		resp := s.dispatcher.Dispatch(ctx, req)
		msg.Ack()
		s.publishResponse(ctx, req, resp)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

func (s *Subscriber) publishResponse(ctx context.Context, req onch.Request, resp onch.Response) {
	if s.responseTopic == "" {
		return
	}
	data, err := json.Marshal(map[string]any{
		"pattern":  req.Pattern,
		"jobId":    req.Payload.JobID,
		"response": resp,
	})
	if err != nil {
		s.logger.Error("marshal response envelope", zap.Error(err))
		return
	}
	s.client.Topic(s.responseTopic).Publish(ctx, &pubsub.Message{Data: data})
}

// Close closes the underlying client.
func (s *Subscriber) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
