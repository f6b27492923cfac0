package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	pkgkafka "github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/kafka"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/logger"
)

// Kafka topics for order domain events.
var (
	TopicOrderCreated       = pkgkafka.Topic("order", "created")
	TopicOrderStatusChanged = pkgkafka.Topic("order", "status_changed")
	TopicOrderCanceled      = pkgkafka.Topic("order", "canceled")
	TopicInventoryReleased  = pkgkafka.Topic("inventory", "released")
)

const (
	AggregateTypeOrder = "order"
	SourceOrderService = "order-service"
)

// OrderCreatedData is the order.created payload.
type OrderCreatedData struct {
	ID     string     `json:"id"`
	UserID string     `json:"user_id"`
	Family string     `json:"family"`
	Status string     `json:"status"`
	Total  string     `json:"total"`
	Lines  []LineData `json:"lines"`
}

// LineData is one order line in event payloads.
type LineData struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price,omitempty"`
}

// OrderStatusChangedData is the order.status_changed payload.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	Family    string `json:"family"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Trigger   string `json:"trigger"`
}

// OrderCanceledData is the order.canceled payload.
type OrderCanceledData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
	Trigger string `json:"trigger"`
}

// InventoryReleasedData is the inventory.released payload.
type InventoryReleasedData struct {
	OrderID string     `json:"order_id"`
	Lines   []LineData `json:"lines"`
}

// publisher is satisfied by *pkgkafka.Producer.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes order domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates an event producer on top of a Kafka publisher.
func NewProducer(kafka publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	ev, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeOrder, SourceOrderService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	if err := p.kafka.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("order_id", aggregateID),
	)
	return nil
}

// PublishOrderCreated publishes an order.created snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	lines := make([]LineData, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = LineData{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: l.UnitPrice.StringFixed(2)}
	}
	return p.publish(ctx, TopicOrderCreated, order.ID, OrderCreatedData{
		ID:     order.ID,
		UserID: order.UserID,
		Family: string(order.Family),
		Status: string(order.Status),
		Total:  order.Total.StringFixed(2),
		Lines:  lines,
	})
}

// PublishStatusChanged publishes order.status_changed, plus order.canceled
// and inventory.released when the change entered cancelled.
func (p *Producer) PublishStatusChanged(ctx context.Context, change domain.StatusChange) error {
	err := p.publish(ctx, TopicOrderStatusChanged, change.OrderID, OrderStatusChangedData{
		OrderID:   change.OrderID,
		Family:    string(change.Family),
		OldStatus: string(change.From),
		NewStatus: string(change.To),
		Trigger:   string(change.Trigger),
	})
	if err != nil {
		return err
	}

	if change.To != domain.StatusCancelled {
		return nil
	}
	err = p.publish(ctx, TopicOrderCanceled, change.OrderID, OrderCanceledData{
		OrderID: change.OrderID,
		Reason:  change.Reason,
		Trigger: string(change.Trigger),
	})
	if err != nil {
		return err
	}

	if len(change.Released) == 0 {
		return nil
	}
	lines := make([]LineData, len(change.Released))
	for i, l := range change.Released {
		lines[i] = LineData{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	return p.publish(ctx, TopicInventoryReleased, change.OrderID, InventoryReleasedData{
		OrderID: change.OrderID,
		Lines:   lines,
	})
}
