package events

import (
	"context"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type kafkaPublisher struct {
	w *kafka.Writer
}

func NewKafka(brokers []string, topic string) Publisher {
	if topic == "" {
		topic = "poker.table-events"
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &kafkaPublisher{w: w}
}

// Publish keys messages by table id so one table's events stay ordered
// within a partition.
func (p *kafkaPublisher) Publish(ctx context.Context, evt Event) error {
	b, err := evt.encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(evt.TableID), Value: b})
}

func (p *kafkaPublisher) Close() error {
	return p.w.Close()
}
