package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"retailpos/backend/internal/domain"
)

type envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// RabbitPublisher writes events as JSON to durable queues on the default
// exchange.
type RabbitPublisher struct {
	conn          *amqp.Connection
	mu            sync.Mutex
	ch            *amqp.Channel
	salesQueue    string
	lowStockQueue string
}

func NewRabbitPublisher(url string, salesQueue string, lowStockQueue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	for _, queue := range []string{salesQueue, lowStockQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}
	return &RabbitPublisher{conn: conn, ch: ch, salesQueue: salesQueue, lowStockQueue: lowStockQueue}, nil
}

func (p *RabbitPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *RabbitPublisher) PublishSaleSettled(ctx context.Context, event domain.SaleSettledEvent) error {
	return p.publishJSON(ctx, p.salesQueue, TypeSaleSettled, event)
}

func (p *RabbitPublisher) PublishLowStock(ctx context.Context, event domain.LowStockEvent) error {
	return p.publishJSON(ctx, p.lowStockQueue, TypeLowStock, event)
}

func (p *RabbitPublisher) publishJSON(ctx context.Context, queue string, eventType string, payload any) error {
	body, err := json.Marshal(envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	log.Debug().Str("queue", queue).Str("type", eventType).Msg("publish event")
	return p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         eventType,
		Body:         body,
	})
}
