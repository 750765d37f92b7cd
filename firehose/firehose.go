// Package firehose mirrors stored messages to a kafka topic for downstream
// consumers (analytics, archival). It sits off the delivery path: the
// message is durable before Publish runs, and a mirror failure is logged by
// the caller and otherwise ignored.
package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/mqy/minichat/store"
)

const kafkaWriteTimeout = 10 * time.Second

type IKafkaWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

type Firehose struct {
	writer IKafkaWriter
}

func New(brokers []string, topic string) *Firehose {
	return &Firehose{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Topic:    topic,
			Balancer: &kafka.Hash{},
			Dialer: &kafka.Dialer{
				Timeout:   kafkaWriteTimeout,
				DualStack: true,
			},
		}),
	}
}

// Publish writes the stored message as JSON. The key is the conversation id
// so a conversation's mirror stays on one partition, in store order.
func (f *Firehose) Publish(ctx context.Context, msg *store.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error marshal message %d: %v", msg.ID, err)
	}

	return f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ConversationID),
		Value: value,
	})
}

func (f *Firehose) Close() error {
	return f.writer.Close()
}
