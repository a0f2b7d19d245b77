// Package events publishes persisted-message events to kafka for downstream
// consumers (cross-instance delivery, analytics). Publishing is best-effort:
// the pipeline logs failures and moves on.
package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type MessagePersisted struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	GroupID   string    `json:"group_id,omitempty"`
	Sender    string    `json:"sender"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type Journal struct {
	writer *kafkago.Writer
}

func NewJournal(brokers []string, topic string) *Journal {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &Journal{writer: w}
}

func (j *Journal) MessagePersisted(ctx context.Context, ev MessagePersisted) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(ev.Room),
		Value: b,
		Time:  time.Now(),
	}
	return j.writer.WriteMessages(ctx, msg)
}

func (j *Journal) Close() error {
	return j.writer.Close()
}
