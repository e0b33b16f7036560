package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// KafkaNotifier publishes notifications to a topic keyed by user id, for the
// notification service to render and deliver.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger *logrus.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.WithFields(logrus.Fields{"topic": topic, "count": len(messages)}).Warn("notification delivery failed: " + err.Error())
			}
		},
	}
	return &KafkaNotifier{writer: w, logger: logger}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	carrier := headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msg := kafka.Message{
		Key:     []byte(n.UserID.String()),
		Value:   payload,
		Headers: carrier.headers(),
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// headerCarrier adapts kafka headers to the otel propagation carrier.
type headerCarrier map[string]string

func (c headerCarrier) Get(key string) string { return c[key] }
func (c headerCarrier) Set(key, value string) { c[key] = value }
func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func (c headerCarrier) headers() []kafka.Header {
	out := make([]kafka.Header, 0, len(c))
	for k, v := range c {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
