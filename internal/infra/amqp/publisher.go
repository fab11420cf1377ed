package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"lesson-quiz-service/internal/domain"

	"github.com/rabbitmq/amqp091-go"
)

const RoutingKeyCompleted = "quiz.completed"

// CompletedEvent is published once per finished attempt.
type CompletedEvent struct {
	EventType   string    `json:"eventType"`
	LessonID    string    `json:"lessonId"`
	AttemptID   string    `json:"attemptId"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Unanswered  int       `json:"unanswered"`
	CompletedAt time.Time `json:"completedAt"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends quiz events to a durable topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	now      func() time.Time
}

func NewPublisher(uri, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, now: time.Now}, nil
}

// PublishCompletion announces a finished attempt on quiz.completed.
func (p *Publisher) PublishCompletion(ctx context.Context, c domain.Completion) error {
	event := CompletedEvent{
		EventType:   RoutingKeyCompleted,
		LessonID:    c.LessonID,
		AttemptID:   c.AttemptID,
		Score:       c.Score,
		Total:       len(c.Ledger),
		CompletedAt: p.now().UTC(),
	}
	for _, rec := range c.Ledger {
		if !rec.Answered() {
			event.Unanswered++
		}
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.channel.PublishWithContext(pubCtx, p.exchange, RoutingKeyCompleted, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    c.AttemptID,
		Timestamp:    event.CompletedAt,
		Body:         body,
	})
	if err != nil {
		return domain.NewTransportError("publish completion", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("close rabbitmq channel: %v", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
