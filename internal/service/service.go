package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"retailpos/backend/internal/cart"
	"retailpos/backend/internal/catalog"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/events"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/lock"
	"retailpos/backend/internal/promotion"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var (
	ErrProductNotFound    = catalog.ErrProductNotFound
	ErrProductUnavailable = fmt.Errorf("product unavailable at branch: %w", store.ErrNotFound)
	ErrAlreadySettled     = fmt.Errorf("transaction already settled: %w", store.ErrInvalidState)
	ErrInvalidPromotion   = promotion.ErrUnknown
)

const (
	StockStatusLow    = "low"
	StockStatusNormal = "normal"
)

const publishTimeout = 3 * time.Second

type Service struct {
	repo            store.Repository
	catalog         *catalog.Catalog
	ledger          *ledger.Ledger
	publisher       events.Publisher
	locks           *lock.Keyed
	defaultBranchID string
	now             func() time.Time
}

func New(repo store.Repository, cat *catalog.Catalog, led *ledger.Ledger, publisher events.Publisher, defaultBranchID string) *Service {
	if defaultBranchID == "" {
		defaultBranchID = "S01"
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &Service{
		repo:            repo,
		catalog:         cat,
		ledger:          led,
		publisher:       publisher,
		locks:           lock.NewKeyed(),
		defaultBranchID: defaultBranchID,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) OpenTransaction(ctx context.Context, req domain.OpenTransactionRequest) (domain.Cart, error) {
	branchID := defaultString(strings.TrimSpace(req.BranchID), s.defaultBranchID)
	customerID := strings.TrimSpace(req.CustomerID)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		opened := cart.New(xid.TransactionID(), customerID, branchID, s.now())
		created, err := s.repo.CreateCart(ctx, opened)
		if errors.Is(err, store.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return domain.Cart{}, err
		}

		log.Info().
			Str("transaction_id", created.TransactionID).
			Str("branch_id", created.BranchID).
			Msg("transaction opened")
		return *created, nil
	}
	return domain.Cart{}, lastErr
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (domain.Cart, error) {
	current, err := s.repo.GetCart(ctx, transactionID)
	if err != nil {
		return domain.Cart{}, err
	}
	return *current, nil
}

// ListTransactions returns carts newest first, filtered by branch, customer
// and state when given.
func (s *Service) ListTransactions(ctx context.Context, req domain.TransactionListRequest) ([]domain.Cart, error) {
	state := strings.ToUpper(strings.TrimSpace(req.State))
	switch state {
	case "", domain.CartStateOpen, domain.CartStateSettled, domain.CartStateCancelled:
	default:
		return nil, store.Validation("unknown transaction state %q", req.State)
	}

	return s.repo.ListCarts(ctx, store.CartFilter{
		BranchID:   strings.TrimSpace(req.BranchID),
		CustomerID: strings.TrimSpace(req.CustomerID),
		State:      state,
		Limit:      req.Limit,
	})
}

// AddItem checks the requested quantity, plus whatever of the same product is
// already on the cart, against the branch's on-hand stock at this moment.
// Nothing is reserved; Finalize re-checks under the store's atomic update.
func (s *Service) AddItem(ctx context.Context, transactionID string, req domain.AddItemRequest) (domain.Cart, error) {
	if req.Quantity <= 0 {
		return domain.Cart{}, store.Validation("quantity must be positive")
	}

	unlock := s.locks.Lock(transactionID)
	defer unlock()

	current, err := s.openCart(ctx, transactionID)
	if err != nil {
		return domain.Cart{}, err
	}

	product, err := s.catalog.Resolve(ctx, req.ProductCode)
	if err != nil {
		return domain.Cart{}, err
	}

	record, err := s.ledger.GetStock(ctx, current.BranchID, product.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Cart{}, fmt.Errorf("%w: %s at %s", ErrProductUnavailable, product.Code, current.BranchID)
	}
	if err != nil {
		return domain.Cart{}, err
	}

	inCart := cart.QuantityOf(*current, product.ProductID)
	if inCart+req.Quantity > record.QuantityOnHand {
		return domain.Cart{}, store.Insufficient(current.BranchID, product.ProductID, req.Quantity, record.QuantityOnHand-inCart)
	}

	saved, err := s.repo.SaveCart(ctx, cart.AddLine(*current, *product, req.Quantity), current.Version)
	if err != nil {
		return domain.Cart{}, err
	}
	return *saved, nil
}

func (s *Service) ApplyPromotion(ctx context.Context, transactionID string, req domain.ApplyPromotionRequest) (domain.Cart, error) {
	unlock := s.locks.Lock(transactionID)
	defer unlock()

	current, err := s.openCart(ctx, transactionID)
	if err != nil {
		return domain.Cart{}, err
	}

	applied, err := promotion.Apply(req.PromotionCode, current.Subtotal)
	if err != nil {
		return domain.Cart{}, err
	}

	saved, err := s.repo.SaveCart(ctx, cart.AddPromotion(*current, applied), current.Version)
	if err != nil {
		return domain.Cart{}, err
	}

	log.Info().
		Str("transaction_id", transactionID).
		Str("promotion", applied.PromotionCode).
		Int64("discount", applied.DiscountAmount).
		Msg("promotion applied")
	return *saved, nil
}

// Finalize settles the cart. Stock for every product is decremented together
// with the OPEN to SETTLED transition; if any product is short nothing
// changes and the cart stays OPEN.
func (s *Service) Finalize(ctx context.Context, transactionID string, req domain.FinalizeRequest) (domain.Receipt, error) {
	unlock := s.locks.Lock(transactionID)
	defer unlock()

	// State first: a retried finalize on a settled cart reports AlreadySettled
	// whatever its body holds.
	current, err := s.openCart(ctx, transactionID)
	if err != nil {
		return domain.Receipt{}, err
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !isSupportedPaymentMethod(method) {
		return domain.Receipt{}, store.Validation("unsupported payment method %q", req.PaymentMethod)
	}
	if req.AmountTendered != nil && *req.AmountTendered < 0 {
		return domain.Receipt{}, store.Validation("amount tendered must not be negative")
	}
	if len(current.LineItems) == 0 {
		return domain.Receipt{}, store.Validation("transaction %s has no items", transactionID)
	}

	settledAt := s.now()
	settled := *current
	settled.State = domain.CartStateSettled
	settled.SettledAt = &settledAt
	settled.PaymentMethod = method
	settled.AmountTendered = req.AmountTendered
	settled.Change = 0
	if method == "cash" && req.AmountTendered != nil {
		if *req.AmountTendered < settled.Total {
			return domain.Receipt{}, store.Validation("amount tendered %d is below total %d", *req.AmountTendered, settled.Total)
		}
		settled.Change = *req.AmountTendered - settled.Total
	}
	if err := cart.CheckInvariants(settled); err != nil {
		return domain.Receipt{}, fmt.Errorf("transaction %s totals are inconsistent: %w", transactionID, err)
	}

	saved, records, err := s.repo.SettleCart(ctx, domain.Settlement{
		Cart:            settled,
		ExpectedVersion: current.Version,
		Movements:       cart.SaleMovements(settled),
	})
	if err != nil {
		var insufficient *store.InsufficientStockError
		if errors.As(err, &insufficient) {
			log.Warn().
				Str("transaction_id", transactionID).
				Str("product_id", insufficient.ProductID).
				Int("requested", insufficient.Requested).
				Int("available", insufficient.Available).
				Msg("finalize rejected")
		}
		return domain.Receipt{}, err
	}

	log.Info().
		Str("transaction_id", saved.TransactionID).
		Str("branch_id", saved.BranchID).
		Int64("total", saved.Total).
		Str("payment_method", saved.PaymentMethod).
		Msg("transaction settled")

	s.publishSettlement(ctx, *saved, records)
	return cart.ToReceipt(*saved), nil
}

func (s *Service) CancelTransaction(ctx context.Context, transactionID string, req domain.CancelRequest) (domain.Cart, error) {
	unlock := s.locks.Lock(transactionID)
	defer unlock()

	current, err := s.openCart(ctx, transactionID)
	if err != nil {
		return domain.Cart{}, err
	}

	cancelledAt := s.now()
	cancelled := *current
	cancelled.State = domain.CartStateCancelled
	cancelled.CancelledAt = &cancelledAt
	cancelled.CancelReason = strings.TrimSpace(req.Reason)

	saved, err := s.repo.SaveCart(ctx, cancelled, current.Version)
	if err != nil {
		return domain.Cart{}, err
	}

	log.Info().Str("transaction_id", transactionID).Str("reason", saved.CancelReason).Msg("transaction cancelled")
	return *saved, nil
}

func (s *Service) openCart(ctx context.Context, transactionID string) (*domain.Cart, error) {
	current, err := s.repo.GetCart(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	switch current.State {
	case domain.CartStateOpen:
		return current, nil
	case domain.CartStateSettled:
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, transactionID)
	default:
		return nil, fmt.Errorf("%w: transaction %s is %s", store.ErrInvalidState, transactionID, current.State)
	}
}

func (s *Service) publishSettlement(ctx context.Context, settled domain.Cart, records []domain.StockRecord) {
	ctx, cancel := detached(ctx)
	defer cancel()

	event := domain.SaleSettledEvent{
		TransactionID: settled.TransactionID,
		BranchID:      settled.BranchID,
		CustomerID:    settled.CustomerID,
		Lines:         settled.LineItems,
		Total:         settled.Total,
		PaymentMethod: settled.PaymentMethod,
	}
	if settled.SettledAt != nil {
		event.SettledAt = *settled.SettledAt
	}
	if err := s.publisher.PublishSaleSettled(ctx, event); err != nil {
		log.Warn().Err(err).Str("transaction_id", settled.TransactionID).Msg("failed to publish sale event")
	}
	s.publishLowStock(ctx, records...)
}

func (s *Service) publishLowStock(ctx context.Context, records ...domain.StockRecord) {
	for _, record := range records {
		if !record.IsLow() {
			continue
		}
		err := s.publisher.PublishLowStock(ctx, domain.LowStockEvent{
			BranchID:        record.BranchID,
			ProductID:       record.ProductID,
			QuantityOnHand:  record.QuantityOnHand,
			QuantityMinimum: record.QuantityMinimum,
			At:              record.LastUpdated,
		})
		if err != nil {
			log.Warn().Err(err).
				Str("branch_id", record.BranchID).
				Str("product_id", record.ProductID).
				Msg("failed to publish low stock event")
		}
	}
}

// detached outlives the request so events for a committed change still go out
// when the client disconnects.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "transfer", "ewallet":
		return true
	default:
		return false
	}
}
