package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid transaction state")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
)

// InsufficientStockError carries the quantity that was actually available.
type InsufficientStockError struct {
	BranchID  string
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available", e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

func Insufficient(branchID string, productID string, requested int, available int) error {
	if available < 0 {
		available = 0
	}
	return &InsufficientStockError{
		BranchID:  branchID,
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type StockFilter struct {
	BranchID  string
	ProductID string
}

type ProductFilter struct {
	Category string
}

// CartFilter narrows ListCarts by equality on each non-empty field. Results
// are newest first; Limit <= 0 means no limit.
type CartFilter struct {
	BranchID   string
	CustomerID string
	State      string
	Limit      int
}

type Repository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByCode(ctx context.Context, code string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)

	GetStock(ctx context.Context, branchID string, productID string) (*domain.StockRecord, error)
	ListStock(ctx context.Context, filter StockFilter) ([]domain.StockRecord, error)
	CreateStock(ctx context.Context, record domain.StockRecord) (*domain.StockRecord, error)
	ApplyMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockRecord, error)
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	ListStockWithExpiry(ctx context.Context, from time.Time, to time.Time) ([]domain.StockRecord, error)

	CreateCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	GetCart(ctx context.Context, transactionID string) (*domain.Cart, error)
	ListCarts(ctx context.Context, filter CartFilter) ([]domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart, expectedVersion int64) (*domain.Cart, error)
	SettleCart(ctx context.Context, settlement domain.Settlement) (*domain.Cart, []domain.StockRecord, error)

	Close() error
}

var validKinds = map[string]bool{
	domain.AdjustmentLoss:       true,
	domain.AdjustmentSpoilage:   true,
	domain.AdjustmentCorrection: true,
	domain.AdjustmentReturn:     true,
	domain.AdjustmentTransfer:   true,
	domain.AdjustmentSale:       true,
}

func IsValidKind(kind string) bool {
	return validKinds[kind]
}

// ValidateMovement rejects movements no backend should attempt.
func ValidateMovement(mv domain.StockMovement) error {
	if mv.BranchID == "" || mv.ProductID == "" {
		return Validation("branch and product are required")
	}
	if mv.Delta == 0 {
		return Validation("delta must not be zero")
	}
	if !IsValidKind(mv.Kind) {
		return Validation("unknown adjustment kind %q", mv.Kind)
	}
	return nil
}

// NewEntry builds the log entry for a movement applied on top of before.
func NewEntry(before int, mv domain.StockMovement, at time.Time) domain.AdjustmentEntry {
	actor := mv.Actor
	if actor == "" {
		actor = domain.SystemActor
	}
	return domain.AdjustmentEntry{
		At:             at,
		QuantityBefore: before,
		Delta:          mv.Delta,
		QuantityAfter:  before + mv.Delta,
		Reason:         mv.Reason,
		Kind:           mv.Kind,
		Actor:          actor,
		Reference:      mv.Reference,
	}
}

// CheckSettleable verifies the stored cart can still move to SETTLED.
func CheckSettleable(current domain.Cart, expectedVersion int64) error {
	if current.State != domain.CartStateOpen {
		return fmt.Errorf("%w: transaction is %s", ErrInvalidState, current.State)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: transaction %s was modified concurrently", ErrConflict, current.TransactionID)
	}
	return nil
}

// MergeMovements folds movements touching the same record into one so the
// availability check sees the full requested quantity.
func MergeMovements(movements []domain.StockMovement) []domain.StockMovement {
	merged := make([]domain.StockMovement, 0, len(movements))
	index := make(map[string]int, len(movements))
	for _, mv := range movements {
		key := mv.BranchID + "\x00" + mv.ProductID
		if i, ok := index[key]; ok {
			merged[i].Delta += mv.Delta
			continue
		}
		index[key] = len(merged)
		merged = append(merged, mv)
	}
	return merged
}
