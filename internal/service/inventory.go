package service

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	return s.catalog.ListProducts(ctx, category)
}

func (s *Service) GetProduct(ctx context.Context, code string) (domain.Product, error) {
	product, err := s.catalog.GetProduct(ctx, code)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	created, err := s.catalog.CreateProduct(ctx, req)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, code string, req domain.ProductUpdateRequest) (domain.Product, error) {
	updated, err := s.catalog.UpdateProduct(ctx, code, req)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, code string) (domain.Product, error) {
	deactivated, err := s.catalog.DeactivateProduct(ctx, code)
	if err != nil {
		return domain.Product{}, err
	}
	return *deactivated, nil
}

func (s *Service) RegisterStock(ctx context.Context, req domain.StockRegisterRequest) (domain.StockRecord, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductCode)
	if err != nil {
		return domain.StockRecord{}, err
	}

	minimum := s.ledger.DefaultMinimum()
	if req.QuantityMinimum != nil {
		minimum = *req.QuantityMinimum
	}

	created, err := s.ledger.Register(ctx, domain.StockRecord{
		BranchID:         defaultString(strings.TrimSpace(req.BranchID), s.defaultBranchID),
		ProductID:        product.ProductID,
		QuantityOnHand:   req.QuantityOnHand,
		QuantityMinimum:  minimum,
		QuantityReserved: req.QuantityReserved,
		QuantityMaximum:  req.QuantityMaximum,
		ExpiresAt:        req.ExpiresAt,
		Batches:          req.Batches,
	})
	if err != nil {
		return domain.StockRecord{}, err
	}

	log.Info().
		Str("branch_id", created.BranchID).
		Str("code", product.Code).
		Int("quantity_on_hand", created.QuantityOnHand).
		Msg("stock registered")
	return *created, nil
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockRecord, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductCode)
	if err != nil {
		return domain.StockRecord{}, err
	}
	branchID := strings.TrimSpace(req.BranchID)
	if branchID == "" {
		return domain.StockRecord{}, store.Validation("branch_id is required")
	}

	record, err := s.ledger.Adjust(ctx, branchID, product.ProductID, req.Delta, req.Reason, req.Kind, strings.TrimSpace(req.Actor))
	if err != nil {
		return domain.StockRecord{}, err
	}
	if req.Delta < 0 {
		publishCtx, cancel := detached(ctx)
		defer cancel()
		s.publishLowStock(publishCtx, *record)
	}
	return *record, nil
}

func (s *Service) TransferStock(ctx context.Context, req domain.StockTransferRequest) (domain.TransferResult, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductCode)
	if err != nil {
		return domain.TransferResult{}, err
	}

	result, err := s.ledger.Transfer(
		ctx,
		product.ProductID,
		strings.TrimSpace(req.FromBranchID),
		strings.TrimSpace(req.ToBranchID),
		req.Quantity,
		req.Reason,
		strings.TrimSpace(req.Actor),
	)
	if err != nil {
		return domain.TransferResult{}, err
	}

	publishCtx, cancel := detached(ctx)
	defer cancel()
	s.publishLowStock(publishCtx, result.Source)
	return *result, nil
}

func (s *Service) ListStock(ctx context.Context, branchID string, productCode string) ([]domain.StockRecord, error) {
	filter := store.StockFilter{BranchID: strings.TrimSpace(branchID)}
	if strings.TrimSpace(productCode) != "" {
		product, err := s.catalog.GetProduct(ctx, productCode)
		if err != nil {
			return nil, err
		}
		filter.ProductID = product.ProductID
	}
	return s.ledger.ListStock(ctx, filter)
}

// Availability reports the product's stock at every branch that carries it.
func (s *Service) Availability(ctx context.Context, code string) (domain.AvailabilityResponse, error) {
	product, err := s.catalog.GetProduct(ctx, code)
	if err != nil {
		return domain.AvailabilityResponse{}, err
	}

	records, err := s.ledger.ListStock(ctx, store.StockFilter{ProductID: product.ProductID})
	if err != nil {
		return domain.AvailabilityResponse{}, err
	}

	resp := domain.AvailabilityResponse{
		ProductCode: product.Code,
		Name:        product.Name,
		Branches:    make([]domain.BranchAvailability, 0, len(records)),
	}
	for _, record := range records {
		status := StockStatusNormal
		if record.IsLow() {
			status = StockStatusLow
		}
		resp.Branches = append(resp.Branches, domain.BranchAvailability{
			BranchID:        record.BranchID,
			QuantityOnHand:  record.QuantityOnHand,
			QuantityMinimum: record.QuantityMinimum,
			Status:          status,
		})
		resp.TotalStock += record.QuantityOnHand
	}
	resp.Available = resp.TotalStock > 0
	return resp, nil
}

func (s *Service) ExpiringProducts(ctx context.Context, days int) ([]domain.ExpiringProduct, error) {
	expiring, err := s.ledger.ListExpiringBefore(ctx, days)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(expiring))
	for _, item := range expiring {
		if !slices.Contains(ids, item.Record.ProductID) {
			ids = append(ids, item.Record.ProductID)
		}
	}
	products, err := s.catalog.ProductsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ExpiringProduct, 0, len(expiring))
	for _, item := range expiring {
		product := products[item.Record.ProductID]
		result = append(result, domain.ExpiringProduct{
			ProductID:      item.Record.ProductID,
			ProductCode:    product.Code,
			Name:           product.Name,
			BranchID:       item.Record.BranchID,
			ExpiresAt:      *item.Record.ExpiresAt,
			DaysRemaining:  item.DaysRemaining,
			QuantityOnHand: item.Record.QuantityOnHand,
		})
	}
	return result, nil
}
