package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	NatsStreamName    = "FEEDBACK_TASKS"
	NatsSubjectPrefix = "feedback.tasks."
)

var (
	natsConn *nats.Conn
	natsJS   nats.JetStreamContext
	natsMu   sync.Mutex
)

func NatsSubject(channel string) string {
	return NatsSubjectPrefix + channel
}

// NatsConsumerName is the durable pull consumer for a channel.
func NatsConsumerName(channel string) string {
	return "worker-" + channel
}

// GetJetStream connects lazily (NATS_URL, default nats://127.0.0.1:4222) and ensures the task stream exists.
func GetJetStream() (nats.JetStreamContext, error) {
	natsMu.Lock()
	defer natsMu.Unlock()
	if natsJS != nil {
		return natsJS, nil
	}

	url := strings.TrimSpace(os.Getenv("NATS_URL"))
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("feedback-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js); err != nil {
		nc.Close()
		return nil, err
	}
	natsConn = nc
	natsJS = js
	log.Printf("nats jetstream ready (url=%s stream=%s)", url, NatsStreamName)
	return natsJS, nil
}

func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(NatsStreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      NatsStreamName,
		Subjects:  []string{NatsSubjectPrefix + ">"},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream: %w", err)
	}
	return nil
}

// EnsureNatsConsumer creates the durable pull consumer for a channel if it does not exist yet.
func EnsureNatsConsumer(js nats.JetStreamContext, channel string) error {
	name := NatsConsumerName(channel)
	_, err := js.AddConsumer(NatsStreamName, &nats.ConsumerConfig{
		Durable:       name,
		FilterSubject: NatsSubject(channel),
		DeliverPolicy: nats.DeliverAllPolicy,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    -1,
		MaxAckPending: 100,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("add consumer %s: %w", name, err)
	}
	return nil
}

// PublishTaskNats publishes a task to JetStream and returns the stream sequence as the message id.
func PublishTaskNats(ctx context.Context, msg TaskMessage) (string, error) {
	if !IsKnownChannel(msg.Channel) {
		return "", fmt.Errorf("unknown channel %q", msg.Channel)
	}
	js, err := GetJetStream()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	ack, err := js.Publish(NatsSubject(msg.Channel), data, nats.Context(ctx))
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(ack.Sequence, 10), nil
}

func CloseNats() {
	natsMu.Lock()
	defer natsMu.Unlock()
	if natsConn != nil {
		natsConn.Close()
	}
	natsConn = nil
	natsJS = nil
}
