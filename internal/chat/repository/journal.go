package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/pkg/database"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
)

// EventJournal copies fan-out events to downstream consumers
// It is not used for delivery to connected clients.
type EventJournal interface {
	Append(ctx context.Context, entry domain.JournalEntry) error
	Close() error
}

// NoopJournal journal disabled
type NoopJournal struct{}

// Append implements EventJournal
func (NoopJournal) Append(context.Context, domain.JournalEntry) error { return nil }

// Close implements EventJournal
func (NoopJournal) Close() error { return nil }

// KafkaJournal one kafka message per entry keyed by chat id, so a chat keeps partition order
type KafkaJournal struct {
	writer *kafka.Writer
}

// NewKafkaJournal create KafkaJournal
func NewKafkaJournal(writer *kafka.Writer) *KafkaJournal {
	return &KafkaJournal{writer: writer}
}

// Append implements EventJournal
func (j *KafkaJournal) Append(ctx context.Context, entry domain.JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.ChatID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(entry.Event)},
		},
	})
}

// Close implements EventJournal
func (j *KafkaJournal) Close() error {
	return j.writer.Close()
}

// RabbitJournal publish entries to a topic exchange, routing key is the event name
type RabbitJournal struct {
	repo     database.RabbitRepo
	exchange string
}

// NewRabbitJournal create RabbitJournal and declare its exchange
func NewRabbitJournal(repo database.RabbitRepo, exchange string) (*RabbitJournal, error) {
	if err := repo.DeclareTopicExchange(exchange); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &RabbitJournal{repo: repo, exchange: exchange}, nil
}

// Append implements EventJournal
func (j *RabbitJournal) Append(_ context.Context, entry domain.JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.repo.Publish(j.exchange, string(entry.Event), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    entry.OccurredAt,
		Body:         data,
	})
}

// Close implements EventJournal
func (j *RabbitJournal) Close() error {
	return j.repo.Close()
}

// RedisJournal definition redis pub/sub journal
type RedisJournal struct {
	client  *redis.Client
	channel string
}

// NewRedisJournal create RedisJournal
func NewRedisJournal(client *redis.Client, channel string) *RedisJournal {
	return &RedisJournal{
		client:  client,
		channel: channel,
	}
}

// Publish 將 message 序列化後，發布到指定 channel
func (r *RedisJournal) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Append implements EventJournal
func (r *RedisJournal) Append(ctx context.Context, entry domain.JournalEntry) error {
	return r.Publish(ctx, r.channel, entry)
}

// Close the client is shared with the presence cache and closed by main
func (r *RedisJournal) Close() error {
	return nil
}
