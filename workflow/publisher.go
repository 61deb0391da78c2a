package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/feedback_backend/config"
)

// TaskPublisher hands one outbox task to the broker and returns the broker's message id.
type TaskPublisher interface {
	Publish(ctx context.Context, msg config.TaskMessage) (string, error)
}

// PublisherFunc adapts a function to TaskPublisher.
type PublisherFunc func(ctx context.Context, msg config.TaskMessage) (string, error)

func (f PublisherFunc) Publish(ctx context.Context, msg config.TaskMessage) (string, error) {
	return f(ctx, msg)
}

// NewPublisher returns the publisher for a queue backend. The direct backend has no broker.
func NewPublisher(backend string) (TaskPublisher, error) {
	switch backend {
	case config.QueueBackendPubSub:
		return PublisherFunc(config.PublishTaskWithResult), nil
	case config.QueueBackendNats:
		return PublisherFunc(config.PublishTaskNats), nil
	}
	return nil, fmt.Errorf("queue backend %q has no publisher", backend)
}
