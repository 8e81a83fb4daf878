package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var ErrProductNotFound = fmt.Errorf("product %w", store.ErrNotFound)

// lookupTimeout bounds a shared store read; it no longer follows any single
// caller's context.
const lookupTimeout = 5 * time.Second

type Catalog struct {
	repo  store.Repository
	cache cache.ProductCache
	ttl   time.Duration
	group singleflight.Group
}

func New(repo store.Repository, productCache cache.ProductCache, ttl time.Duration) *Catalog {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	return &Catalog{repo: repo, cache: productCache, ttl: ttl}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve maps a product code to its id and current price. Concurrent misses
// for the same code share a single store read.
func (c *Catalog) Resolve(ctx context.Context, code string) (*domain.ResolvedProduct, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, store.Validation("product code is required")
	}

	if cached, ok, err := c.cache.Get(ctx, code); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("product cache read failed")
	} else if ok {
		return cached, nil
	}

	value, err, _ := c.group.Do(code, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		product, err := c.repo.GetProductByCode(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, code)
		}
		if err != nil {
			return nil, err
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, code)
		}

		resolved := &domain.ResolvedProduct{
			ProductID: product.ProductID,
			Code:      product.Code,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
		}
		if err := c.cache.Set(ctx, code, resolved, c.ttl); err != nil {
			log.Warn().Err(err).Str("code", code).Msg("product cache write failed")
		}
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}

	resolved := *value.(*domain.ResolvedProduct)
	return &resolved, nil
}

func (c *Catalog) GetProduct(ctx context.Context, code string) (*domain.Product, error) {
	code = NormalizeCode(code)
	product, err := c.repo.GetProductByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, code)
	}
	return product, err
}

// ListProducts returns the catalog, optionally narrowed to one category.
func (c *Catalog) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	return c.repo.ListProducts(ctx, store.ProductFilter{Category: strings.TrimSpace(category)})
}

// ProductsByID loads products keyed by their internal id.
func (c *Catalog) ProductsByID(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	return c.repo.GetProductsByIDs(ctx, ids)
}

func (c *Catalog) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	req.Code = NormalizeCode(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	if req.Code == "" || req.Name == "" {
		return nil, store.Validation("code and name are required")
	}
	if req.UnitPrice < 0 {
		return nil, store.Validation("unit price must not be negative")
	}
	for _, batch := range req.Batches {
		if batch.Quantity < 0 {
			return nil, store.Validation("batch %s has negative quantity", batch.BatchID)
		}
	}
	if req.Currency == "" {
		req.Currency = "COP"
	}

	product := domain.Product{
		ProductID:    xid.New("P"),
		Code:         req.Code,
		Name:         req.Name,
		Category:     req.Category,
		UnitPrice:    req.UnitPrice,
		Currency:     req.Currency,
		IsPerishable: req.IsPerishable,
		Active:       true,
		Batches:      req.Batches,
	}
	if product.Batches == nil {
		product.Batches = []domain.Batch{}
	}

	created, err := c.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, created.Code)

	log.Info().Str("code", created.Code).Str("product_id", created.ProductID).Msg("product created")
	return created, nil
}

// UpdateProduct applies the set fields of req to the product with the given
// code. Open carts keep the price they captured when each line was added.
func (c *Catalog) UpdateProduct(ctx context.Context, code string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if req == (domain.ProductUpdateRequest{}) {
		return nil, store.Validation("no fields to update")
	}

	current, err := c.GetProduct(ctx, code)
	if err != nil {
		return nil, err
	}

	product := *current
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
		if product.Name == "" {
			return nil, store.Validation("name must not be empty")
		}
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return nil, store.Validation("unit price must not be negative")
		}
		product.UnitPrice = *req.UnitPrice
	}
	if req.Currency != nil {
		product.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
		if product.Currency == "" {
			product.Currency = "COP"
		}
	}
	if req.IsPerishable != nil {
		product.IsPerishable = *req.IsPerishable
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	updated, err := c.repo.UpdateProduct(ctx, product)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, product.Code)
	}
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, updated.Code)

	log.Info().
		Str("code", updated.Code).
		Int64("unit_price", updated.UnitPrice).
		Bool("active", updated.Active).
		Msg("product updated")
	return updated, nil
}

// DeactivateProduct withdraws a product from sale. The record stays because
// stock history and settled sales still refer to it.
func (c *Catalog) DeactivateProduct(ctx context.Context, code string) (*domain.Product, error) {
	inactive := false
	return c.UpdateProduct(ctx, code, domain.ProductUpdateRequest{Active: &inactive})
}

func (c *Catalog) invalidate(ctx context.Context, code string) {
	if err := c.cache.Delete(ctx, code); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("product cache invalidation failed")
	}
}
