package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	productsByID    map[string]domain.Product
	productIDByCode map[string]string
	stock           map[string]map[string]domain.StockRecord
	carts           map[string]domain.Cart
}

func New() *Store {
	return &Store{
		productsByID:    make(map[string]domain.Product),
		productIDByCode: make(map[string]string),
		stock:           make(map[string]map[string]domain.StockRecord),
		carts:           make(map[string]domain.Cart),
	}
}

// NewSeeded returns a store holding the demo catalog and branch stock used in
// development mode and in tests.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	days := func(n int) *time.Time {
		t := now.AddDate(0, 0, n)
		return &t
	}

	products := []domain.Product{
		{ProductID: "P10001", Code: "LECHE001", Name: "Leche Entera 1L", Category: "Lacteos", UnitPrice: 4000, IsPerishable: true},
		{ProductID: "P10002", Code: "PAN001", Name: "Pan Integral", Category: "Panaderia", UnitPrice: 3500, IsPerishable: true},
		{ProductID: "P10003", Code: "ARROZ001", Name: "Arroz Blanco 1kg", Category: "Granos", UnitPrice: 2800},
		{ProductID: "P10004", Code: "ACEITE001", Name: "Aceite de Girasol 1L", Category: "Aceites", UnitPrice: 5200},
		{ProductID: "P10005", Code: "YOGURT001", Name: "Yogurt Natural 200ml", Category: "Lacteos", UnitPrice: 2100, IsPerishable: true},
	}
	for _, p := range products {
		p.Currency = "COP"
		p.Active = true
		s.productsByID[p.ProductID] = p
		s.productIDByCode[p.Code] = p.ProductID
	}

	records := []domain.StockRecord{
		{BranchID: "S01", ProductID: "P10001", QuantityOnHand: 120, QuantityMinimum: 20, QuantityMaximum: 200, ExpiresAt: days(5)},
		{BranchID: "S01", ProductID: "P10002", QuantityOnHand: 45, QuantityMinimum: 10, QuantityMaximum: 100, ExpiresAt: days(2)},
		{BranchID: "S01", ProductID: "P10003", QuantityOnHand: 280, QuantityMinimum: 50, QuantityMaximum: 500, ExpiresAt: days(365)},
		{BranchID: "S01", ProductID: "P10004", QuantityOnHand: 75, QuantityMinimum: 15, QuantityMaximum: 150, ExpiresAt: days(180)},
		{BranchID: "S02", ProductID: "P10001", QuantityOnHand: 80, QuantityMinimum: 20, QuantityMaximum: 200, ExpiresAt: days(7)},
		{BranchID: "S02", ProductID: "P10005", QuantityOnHand: 35, QuantityMinimum: 10, QuantityMaximum: 80, ExpiresAt: days(3)},
		{BranchID: "S03", ProductID: "P10003", QuantityOnHand: 150, QuantityMinimum: 50, QuantityMaximum: 300, ExpiresAt: days(365)},
	}
	for _, r := range records {
		r.LastUpdated = now
		s.putStock(r)
	}

	return s
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productIDByCode[product.Code]; exists {
		return nil, fmt.Errorf("%w: product code %s already exists", store.ErrConflict, product.Code)
	}
	if _, exists := s.productsByID[product.ProductID]; exists {
		return nil, fmt.Errorf("%w: product id %s already exists", store.ErrConflict, product.ProductID)
	}

	s.productsByID[product.ProductID] = cloneProduct(product)
	s.productIDByCode[product.Code] = product.ProductID
	created := cloneProduct(product)
	return &created, nil
}

// UpdateProduct replaces the stored product with the same id. The code index
// is left alone; codes never change.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.productsByID[product.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.Code = current.Code
	s.productsByID[product.ProductID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productIDByCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := cloneProduct(s.productsByID[id])
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.productsByID[id]; ok {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) GetStock(_ context.Context, branchID string, productID string) (*domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.lookupStock(branchID, productID)
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneStock(record)
	return &dup, nil
}

func (s *Store) ListStock(_ context.Context, filter store.StockFilter) ([]domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockRecord, 0)
	for branchID, byProduct := range s.stock {
		if filter.BranchID != "" && branchID != filter.BranchID {
			continue
		}
		for productID, record := range byProduct {
			if filter.ProductID != "" && productID != filter.ProductID {
				continue
			}
			result = append(result, cloneStock(record))
		}
	}
	slices.SortFunc(result, compareStock)
	return result, nil
}

func (s *Store) CreateStock(_ context.Context, record domain.StockRecord) (*domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[record.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.lookupStock(record.BranchID, record.ProductID); exists {
		return nil, fmt.Errorf("%w: stock record for %s at %s already exists", store.ErrConflict, record.ProductID, record.BranchID)
	}
	if record.LastUpdated.IsZero() {
		record.LastUpdated = time.Now().UTC()
	}
	s.putStock(record)
	created := cloneStock(record)
	return &created, nil
}

func (s *Store) ApplyMovement(_ context.Context, mv domain.StockMovement) (*domain.StockRecord, error) {
	if err := store.ValidateMovement(mv); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.lookupStock(mv.BranchID, mv.ProductID)
	if !ok {
		return nil, store.ErrNotFound
	}
	if record.QuantityOnHand+mv.Delta < 0 {
		return nil, store.Insufficient(mv.BranchID, mv.ProductID, -mv.Delta, record.QuantityOnHand)
	}

	record = applyMovement(record, mv, time.Now().UTC())
	s.putStock(record)
	updated := cloneStock(record)
	return &updated, nil
}

func (s *Store) Transfer(_ context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.lookupStock(req.FromBranchID, req.ProductID)
	if !ok {
		return nil, store.ErrNotFound
	}
	if source.QuantityOnHand < req.Quantity {
		return nil, store.Insufficient(req.FromBranchID, req.ProductID, req.Quantity, source.QuantityOnHand)
	}

	now := time.Now().UTC()
	destination, ok := s.lookupStock(req.ToBranchID, req.ProductID)
	if !ok {
		destination = domain.StockRecord{
			BranchID:        req.ToBranchID,
			ProductID:       req.ProductID,
			QuantityMinimum: req.DefaultMinimum,
			LastUpdated:     now,
		}
	}

	debit, credit := transferMovements(req)
	source = applyMovement(source, debit, now)
	destination = applyMovement(destination, credit, now)
	s.putStock(source)
	s.putStock(destination)

	return &domain.TransferResult{
		Source:      cloneStock(source),
		Destination: cloneStock(destination),
	}, nil
}

func (s *Store) ListStockWithExpiry(_ context.Context, from time.Time, to time.Time) ([]domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockRecord, 0)
	for _, byProduct := range s.stock {
		for _, record := range byProduct {
			if record.ExpiresAt == nil {
				continue
			}
			if record.ExpiresAt.Before(from) || record.ExpiresAt.After(to) {
				continue
			}
			result = append(result, cloneStock(record))
		}
	}
	slices.SortFunc(result, func(a, b domain.StockRecord) int {
		return a.ExpiresAt.Compare(*b.ExpiresAt)
	})
	return result, nil
}

func (s *Store) CreateCart(_ context.Context, cart domain.Cart) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.carts[cart.TransactionID]; exists {
		return nil, fmt.Errorf("%w: transaction %s already exists", store.ErrConflict, cart.TransactionID)
	}
	s.carts[cart.TransactionID] = cloneCart(cart)
	created := cloneCart(cart)
	return &created, nil
}

func (s *Store) GetCart(_ context.Context, transactionID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneCart(cart)
	return &dup, nil
}

func (s *Store) ListCarts(_ context.Context, filter store.CartFilter) ([]domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Cart, 0)
	for _, c := range s.carts {
		if filter.BranchID != "" && c.BranchID != filter.BranchID {
			continue
		}
		if filter.CustomerID != "" && c.CustomerID != filter.CustomerID {
			continue
		}
		if filter.State != "" && c.State != filter.State {
			continue
		}
		result = append(result, cloneCart(c))
	}
	slices.SortFunc(result, func(a, b domain.Cart) int {
		if c := b.OpenedAt.Compare(a.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(a.TransactionID, b.TransactionID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) SaveCart(_ context.Context, cart domain.Cart, expectedVersion int64) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.carts[cart.TransactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := store.CheckSettleable(current, expectedVersion); err != nil {
		return nil, err
	}

	cart.Version = expectedVersion + 1
	s.carts[cart.TransactionID] = cloneCart(cart)
	saved := cloneCart(cart)
	return &saved, nil
}

func (s *Store) SettleCart(_ context.Context, settlement domain.Settlement) (*domain.Cart, []domain.StockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.carts[settlement.Cart.TransactionID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if err := store.CheckSettleable(current, settlement.ExpectedVersion); err != nil {
		return nil, nil, err
	}

	movements := store.MergeMovements(settlement.Movements)
	for _, mv := range movements {
		if err := store.ValidateMovement(mv); err != nil {
			return nil, nil, err
		}
		record, ok := s.lookupStock(mv.BranchID, mv.ProductID)
		if !ok {
			return nil, nil, store.Insufficient(mv.BranchID, mv.ProductID, -mv.Delta, 0)
		}
		if record.QuantityOnHand+mv.Delta < 0 {
			return nil, nil, store.Insufficient(mv.BranchID, mv.ProductID, -mv.Delta, record.QuantityOnHand)
		}
	}

	now := time.Now().UTC()
	touched := make([]domain.StockRecord, 0, len(movements))
	for _, mv := range movements {
		record, _ := s.lookupStock(mv.BranchID, mv.ProductID)
		record = applyMovement(record, mv, now)
		s.putStock(record)
		touched = append(touched, cloneStock(record))
	}

	cart := settlement.Cart
	cart.Version = settlement.ExpectedVersion + 1
	s.carts[cart.TransactionID] = cloneCart(cart)
	settled := cloneCart(cart)
	return &settled, touched, nil
}

func (s *Store) lookupStock(branchID string, productID string) (domain.StockRecord, bool) {
	byProduct, ok := s.stock[branchID]
	if !ok {
		return domain.StockRecord{}, false
	}
	record, ok := byProduct[productID]
	return record, ok
}

func (s *Store) putStock(record domain.StockRecord) {
	byProduct, ok := s.stock[record.BranchID]
	if !ok {
		byProduct = make(map[string]domain.StockRecord)
		s.stock[record.BranchID] = byProduct
	}
	byProduct[record.ProductID] = record
}

func transferMovements(req domain.TransferRequest) (domain.StockMovement, domain.StockMovement) {
	debit := domain.StockMovement{
		BranchID:  req.FromBranchID,
		ProductID: req.ProductID,
		Delta:     -req.Quantity,
		Reason:    req.Reason,
		Kind:      domain.AdjustmentTransfer,
		Actor:     req.Actor,
		Reference: "to:" + req.ToBranchID,
	}
	credit := debit
	credit.BranchID = req.ToBranchID
	credit.Delta = req.Quantity
	credit.Reference = "from:" + req.FromBranchID
	return debit, credit
}

func applyMovement(record domain.StockRecord, mv domain.StockMovement, at time.Time) domain.StockRecord {
	entry := store.NewEntry(record.QuantityOnHand, mv, at)
	record = cloneStock(record)
	record.QuantityOnHand = entry.QuantityAfter
	record.AdjustmentLog = append(record.AdjustmentLog, entry)
	record.LastUpdated = at
	return record
}

func compareStock(a domain.StockRecord, b domain.StockRecord) int {
	if a.BranchID == b.BranchID {
		return strings.Compare(a.ProductID, b.ProductID)
	}
	return strings.Compare(a.BranchID, b.BranchID)
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Batches = slices.Clone(src.Batches)
	return dup
}

func cloneStock(src domain.StockRecord) domain.StockRecord {
	dup := src
	dup.Batches = slices.Clone(src.Batches)
	dup.AdjustmentLog = slices.Clone(src.AdjustmentLog)
	if src.ExpiresAt != nil {
		expiry := src.ExpiresAt.UTC()
		dup.ExpiresAt = &expiry
	}
	return dup
}

func cloneCart(src domain.Cart) domain.Cart {
	dup := src
	dup.LineItems = slices.Clone(src.LineItems)
	dup.AppliedPromotions = slices.Clone(src.AppliedPromotions)
	if src.AmountTendered != nil {
		tendered := *src.AmountTendered
		dup.AmountTendered = &tendered
	}
	return dup
}
