package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Delivery is a broker message that can be settled.
type Delivery interface {
	Ack()
	Nack()
}

// DecodeTaskMessage parses a broker payload. Anything that fails here is poison.
func DecodeTaskMessage(data []byte) (config.TaskMessage, error) {
	var m config.TaskMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	if !config.IsKnownChannel(m.Channel) {
		return m, fmt.Errorf("%w: unknown channel %q", ErrPoisonMessage, m.Channel)
	}
	return m, nil
}

// PushEnvelope is the body Pub/Sub push subscriptions POST to the HTTP endpoint.
type PushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodePushEnvelope unwraps a push body into the task it carries.
func DecodePushEnvelope(body []byte) (config.TaskMessage, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return config.TaskMessage{}, fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	return DecodeTaskMessage(env.Message.Data)
}

// HandleDelivery processes one message and settles it: ack on success or poison, nack otherwise.
func (p *Processor) HandleDelivery(ctx context.Context, data []byte, d Delivery) {
	m, err := DecodeTaskMessage(data)
	if err != nil {
		config.LogError(p.Logger, "consumer.go", "HandleDelivery", "Decoding task message", string(data), err)
		d.Ack()
		return
	}
	if err := p.ProcessTask(ctx, m); err != nil {
		d.Nack()
		return
	}
	d.Ack()
}

// RunPubSubConsumer pulls one channel's subscription until ctx ends.
func RunPubSubConsumer(ctx context.Context, p *Processor, channel string, maxOutstanding int) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, config.TopicName(channel))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, config.SubscriptionName(channel), topic)
	if err != nil {
		return err
	}
	if maxOutstanding <= 0 {
		maxOutstanding = 10
	}
	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding

	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":        "PubSubConsumer",
			"channel":      channel,
			"subscription": config.SubscriptionName(channel),
		}).Info("pubsub consumer started")
	}
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		p.HandleDelivery(ctx, msg.Data, msg)
	})
}

type natsDelivery struct {
	msg    *nats.Msg
	logger *logrus.Logger
}

func (d natsDelivery) Ack() {
	if err := d.msg.Ack(); err != nil {
		config.LogError(d.logger, "consumer.go", "natsDelivery.Ack", "Acknowledging message", d.msg.Subject, err)
	}
}

func (d natsDelivery) Nack() {
	if err := d.msg.Nak(); err != nil {
		config.LogError(d.logger, "consumer.go", "natsDelivery.Nack", "Negative-acknowledging message", d.msg.Subject, err)
	}
}

// RunNatsConsumer fetches batches from one channel's durable pull consumer until ctx ends.
func RunNatsConsumer(ctx context.Context, p *Processor, channel string, batch int) error {
	js, err := config.GetJetStream()
	if err != nil {
		return err
	}
	if err := config.EnsureNatsConsumer(js, channel); err != nil {
		return err
	}
	sub, err := js.PullSubscribe(
		config.NatsSubject(channel),
		config.NatsConsumerName(channel),
		nats.ManualAck(),
		nats.Bind(config.NatsStreamName, config.NatsConsumerName(channel)),
	)
	if err != nil {
		return fmt.Errorf("pull subscribe %s: %w", channel, err)
	}
	defer sub.Unsubscribe()
	if batch <= 0 {
		batch = 10
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		msgs, fetchErr := sub.Fetch(batch, nats.Context(fetchCtx))
		cancel()
		if fetchErr != nil {
			if errors.Is(fetchErr, context.DeadlineExceeded) || errors.Is(fetchErr, nats.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			if p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{
					"field":   "NatsConsumer",
					"channel": channel,
				}).Error("fetch failed: " + fetchErr.Error())
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range msgs {
			wg.Add(1)
			go func(msg *nats.Msg) {
				defer wg.Done()
				p.HandleDelivery(ctx, msg.Data, natsDelivery{msg: msg, logger: p.Logger})
			}(msg)
		}
		wg.Wait()
	}
}
