package conversation

import (
	"context"
	"fmt"

	"github.com/zapdeskhq/zapbot-platform/pkg/logging"
)

// Publisher enqueues inbound message jobs for asynchronous processing.
// The webhook handler stays fast and delivery retries live in the queue.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound publishes an inbound message job. jobID may be empty,
// in which case one is generated.
func (p *Publisher) EnqueueInbound(ctx context.Context, jobID string, msg InboundMessage, opts ...PublishOption) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload := queuePayload{
		ID:          jobID,
		Kind:        jobTypeInbound,
		Inbound:     msg,
		TrackStatus: true,
	}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("inbound job enqueued",
		"job_id", payload.ID,
		"instance", msg.InstanceName,
	)
	return payload.ID, nil
}
