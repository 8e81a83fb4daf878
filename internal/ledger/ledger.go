// Package ledger keeps per-branch stock counts and their adjustment history.
// Every quantity change is applied by the store as one conditional update
// together with its log entry, so on-hand stock never goes negative.
package ledger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const DefaultMinimum = 10

type Ledger struct {
	repo           store.Repository
	defaultMinimum int
	now            func() time.Time
}

func New(repo store.Repository, defaultMinimum int) *Ledger {
	if defaultMinimum < 0 {
		defaultMinimum = DefaultMinimum
	}
	return &Ledger{
		repo:           repo,
		defaultMinimum: defaultMinimum,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) DefaultMinimum() int {
	return l.defaultMinimum
}

func (l *Ledger) GetStock(ctx context.Context, branchID string, productID string) (*domain.StockRecord, error) {
	return l.repo.GetStock(ctx, branchID, productID)
}

func (l *Ledger) ListStock(ctx context.Context, filter store.StockFilter) ([]domain.StockRecord, error) {
	return l.repo.ListStock(ctx, filter)
}

// Register creates the stock record for a branch/product pair. A record with
// no explicit expiry tracks its earliest batch expiry.
func (l *Ledger) Register(ctx context.Context, record domain.StockRecord) (*domain.StockRecord, error) {
	record.BranchID = strings.TrimSpace(record.BranchID)
	if record.BranchID == "" || record.ProductID == "" {
		return nil, store.Validation("branch and product are required")
	}
	if record.QuantityOnHand < 0 || record.QuantityMinimum < 0 || record.QuantityReserved < 0 || record.QuantityMaximum < 0 {
		return nil, store.Validation("quantities must not be negative")
	}
	for _, batch := range record.Batches {
		if batch.Quantity < 0 {
			return nil, store.Validation("batch %s has negative quantity", batch.BatchID)
		}
	}

	if record.ExpiresAt == nil {
		record.ExpiresAt = earliestExpiry(record.Batches)
	}
	record.AdjustmentLog = nil
	record.LastUpdated = l.now()

	return l.repo.CreateStock(ctx, record)
}

func (l *Ledger) Adjust(ctx context.Context, branchID string, productID string, delta int, reason string, kind string, actor string) (*domain.StockRecord, error) {
	if delta == 0 {
		return nil, store.Validation("delta must not be zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, store.Validation("reason is required")
	}
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if !store.IsValidKind(kind) {
		return nil, store.Validation("unknown adjustment kind %q", kind)
	}

	record, err := l.repo.ApplyMovement(ctx, domain.StockMovement{
		BranchID:  branchID,
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		Kind:      kind,
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("branch_id", branchID).
		Str("product_id", productID).
		Int("delta", delta).
		Int("quantity_on_hand", record.QuantityOnHand).
		Str("kind", kind).
		Msg("stock adjusted")
	return record, nil
}

// Transfer moves quantity between branches as one unit: either both records
// change or neither does. The destination record is created with the default
// minimum when the branch has never stocked the product.
func (l *Ledger) Transfer(ctx context.Context, productID string, fromBranchID string, toBranchID string, quantity int, reason string, actor string) (*domain.TransferResult, error) {
	if quantity <= 0 {
		return nil, store.Validation("quantity must be positive")
	}
	if productID == "" || fromBranchID == "" || toBranchID == "" {
		return nil, store.Validation("product and both branches are required")
	}
	if fromBranchID == toBranchID {
		return nil, store.Validation("source and destination branch must differ")
	}
	if strings.TrimSpace(reason) == "" {
		reason = "transfer " + fromBranchID + " to " + toBranchID
	}

	result, err := l.repo.Transfer(ctx, domain.TransferRequest{
		ProductID:      productID,
		FromBranchID:   fromBranchID,
		ToBranchID:     toBranchID,
		Quantity:       quantity,
		Reason:         reason,
		Actor:          actor,
		DefaultMinimum: l.defaultMinimum,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("product_id", productID).
		Str("from", fromBranchID).
		Str("to", toBranchID).
		Int("quantity", quantity).
		Msg("stock transferred")
	return result, nil
}

// ListExpiringBefore returns records whose expiry falls within the next
// horizonDays, soonest first.
func (l *Ledger) ListExpiringBefore(ctx context.Context, horizonDays int) ([]domain.ExpiringStock, error) {
	if horizonDays < 0 {
		return nil, store.Validation("horizon must not be negative")
	}

	now := l.now()
	records, err := l.repo.ListStockWithExpiry(ctx, now, now.AddDate(0, 0, horizonDays))
	if err != nil {
		return nil, err
	}

	result := make([]domain.ExpiringStock, 0, len(records))
	for _, record := range records {
		result = append(result, domain.ExpiringStock{
			Record:        record,
			DaysRemaining: daysBetween(now, *record.ExpiresAt),
		})
	}
	slices.SortStableFunc(result, func(a, b domain.ExpiringStock) int {
		if a.DaysRemaining != b.DaysRemaining {
			return a.DaysRemaining - b.DaysRemaining
		}
		return a.Record.ExpiresAt.Compare(*b.Record.ExpiresAt)
	})
	return result, nil
}

func daysBetween(from time.Time, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func earliestExpiry(batches []domain.StockBatch) *time.Time {
	var earliest *time.Time
	for _, batch := range batches {
		if batch.Expiry == nil {
			continue
		}
		if earliest == nil || batch.Expiry.Before(*earliest) {
			expiry := batch.Expiry.UTC()
			earliest = &expiry
		}
	}
	return earliest
}
