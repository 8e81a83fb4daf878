package events

import (
	"context"
	"sync"

	"retailpos/backend/internal/domain"
)

const (
	TypeSaleSettled = "sale.settled"
	TypeLowStock    = "stock.low"
)

// Publisher delivers domain events after the state change they describe has
// been committed. Delivery is best-effort; callers log failures and move on.
type Publisher interface {
	PublishSaleSettled(ctx context.Context, event domain.SaleSettledEvent) error
	PublishLowStock(ctx context.Context, event domain.LowStockEvent) error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishSaleSettled(_ context.Context, _ domain.SaleSettledEvent) error {
	return nil
}

func (NoopPublisher) PublishLowStock(_ context.Context, _ domain.LowStockEvent) error {
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu       sync.Mutex
	sales    []domain.SaleSettledEvent
	lowStock []domain.LowStockEvent
}

func (r *Recorder) PublishSaleSettled(_ context.Context, event domain.SaleSettledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales = append(r.sales, event)
	return nil
}

func (r *Recorder) PublishLowStock(_ context.Context, event domain.LowStockEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lowStock = append(r.lowStock, event)
	return nil
}

func (r *Recorder) Sales() []domain.SaleSettledEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SaleSettledEvent(nil), r.sales...)
}

func (r *Recorder) LowStock() []domain.LowStockEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LowStockEvent(nil), r.lowStock...)
}
