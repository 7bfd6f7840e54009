package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer streams ticket lifecycle events, keyed by ticket id so per-ticket
// ordering survives partitioning.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
	log    *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: cfg.Topics, log: log}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) PublishTicketPaid(ticket models.Ticket) error {
	return p.publish(p.Topics.TicketPaid, ticket.TicketID, ticket)
}

func (p *Producer) PublishTicketFailed(ticket models.Ticket) error {
	return p.publish(p.Topics.TicketFailed, ticket.TicketID, ticket)
}

func (p *Producer) PublishTicketExpired(ticket models.Ticket) error {
	return p.publish(p.Topics.TicketExpired, ticket.TicketID, ticket)
}

func (p *Producer) PublishReviewCase(reviewCase models.ReviewCase) error {
	return p.publish(p.Topics.TicketReview, reviewCase.TicketID, reviewCase)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher satisfies the engine's publisher when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishTicketPaid(models.Ticket) error     { return nil }
func (NoopPublisher) PublishTicketFailed(models.Ticket) error   { return nil }
func (NoopPublisher) PublishTicketExpired(models.Ticket) error  { return nil }
func (NoopPublisher) PublishReviewCase(models.ReviewCase) error { return nil }
