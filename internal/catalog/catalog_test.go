package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

type countingRepo struct {
	*memory.Store
	lookups atomic.Int32
	gate    chan struct{}
}

func (r *countingRepo) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	r.lookups.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Store.GetProductByCode(ctx, code)
}

func TestResolveNormalizesAndCaches(t *testing.T) {
	repo := &countingRepo{Store: memory.NewSeeded()}
	c := New(repo, cache.NewLRUProductCache(16, time.Minute), time.Minute)
	ctx := context.Background()

	resolved, err := c.Resolve(ctx, "  leche001 ")
	require.NoError(t, err)
	assert.Equal(t, "P10001", resolved.ProductID)
	assert.Equal(t, int64(4000), resolved.UnitPrice)

	_, err = c.Resolve(ctx, "LECHE001")
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.lookups.Load())
}

func TestResolveUnknownCode(t *testing.T) {
	c := New(memory.NewSeeded(), nil, time.Minute)

	_, err := c.Resolve(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.Resolve(context.Background(), " ")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestResolveCollapsesConcurrentMisses(t *testing.T) {
	repo := &countingRepo{Store: memory.NewSeeded(), gate: make(chan struct{})}
	c := New(repo, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Resolve(context.Background(), "PAN001")
			assert.NoError(t, err)
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.lookups.Load())
}

func TestCreateProductInvalidatesCache(t *testing.T) {
	productCache := cache.NewLRUProductCache(16, time.Minute)
	c := New(memory.New(), productCache, time.Minute)
	ctx := context.Background()

	require.NoError(t, productCache.Set(ctx, "MANGO001", &domain.ResolvedProduct{Code: "MANGO001", UnitPrice: 1}, 0))

	created, err := c.CreateProduct(ctx, domain.ProductCreateRequest{Code: "mango001", Name: "Mango", Category: "Frutas", UnitPrice: 1800})
	require.NoError(t, err)
	assert.Equal(t, "MANGO001", created.Code)
	assert.Equal(t, "COP", created.Currency)

	resolved, err := c.Resolve(ctx, "MANGO001")
	require.NoError(t, err)
	assert.Equal(t, int64(1800), resolved.UnitPrice)

	_, err = c.CreateProduct(ctx, domain.ProductCreateRequest{Code: "MANGO001", Name: "Mango"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestResolveHidesInactiveProducts(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	_, err := repo.CreateProduct(ctx, domain.Product{ProductID: "P90001", Code: "RETIRED", Name: "Retired", UnitPrice: 100, Currency: "COP"})
	require.NoError(t, err)

	c := New(repo, nil, time.Minute)
	_, err = c.Resolve(ctx, "retired")
	assert.ErrorIs(t, err, ErrProductNotFound)

	product, err := c.GetProduct(ctx, "retired")
	require.NoError(t, err)
	assert.False(t, product.Active)
}

func TestResolveSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	repo := &countingRepo{Store: memory.NewSeeded(), gate: make(chan struct{})}
	c := New(repo, nil, time.Minute)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = c.Resolve(firstCtx, "ARROZ001")
	}()
	time.Sleep(100 * time.Millisecond)

	var waiterErr error
	var waiterPrice int64
	go func() {
		defer wg.Done()
		resolved, err := c.Resolve(context.Background(), "ARROZ001")
		waiterErr = err
		if err == nil {
			waiterPrice = resolved.UnitPrice
		}
	}()
	time.Sleep(100 * time.Millisecond)

	cancelFirst()
	close(repo.gate)
	wg.Wait()

	require.NoError(t, waiterErr)
	assert.Equal(t, int64(2800), waiterPrice)
	assert.Equal(t, int32(1), repo.lookups.Load())
}

func TestUpdateProductRefreshesCachedPrice(t *testing.T) {
	repo := &countingRepo{Store: memory.NewSeeded()}
	c := New(repo, cache.NewLRUProductCache(16, time.Minute), time.Minute)
	ctx := context.Background()

	before, err := c.Resolve(ctx, "LECHE001")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), before.UnitPrice)

	price := int64(4500)
	name := "Leche Entera 1L Bolsa"
	updated, err := c.UpdateProduct(ctx, "leche001", domain.ProductUpdateRequest{UnitPrice: &price, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "LECHE001", updated.Code)
	assert.Equal(t, "Lacteos", updated.Category)

	after, err := c.Resolve(ctx, "LECHE001")
	require.NoError(t, err)
	assert.Equal(t, int64(4500), after.UnitPrice)
	assert.Equal(t, name, after.Name)
	assert.Equal(t, int32(2), repo.lookups.Load())
}

func TestUpdateProductValidation(t *testing.T) {
	c := New(memory.NewSeeded(), nil, time.Minute)
	ctx := context.Background()

	_, err := c.UpdateProduct(ctx, "LECHE001", domain.ProductUpdateRequest{})
	assert.ErrorIs(t, err, store.ErrValidation)

	negative := int64(-1)
	_, err = c.UpdateProduct(ctx, "LECHE001", domain.ProductUpdateRequest{UnitPrice: &negative})
	assert.ErrorIs(t, err, store.ErrValidation)

	blank := "  "
	_, err = c.UpdateProduct(ctx, "LECHE001", domain.ProductUpdateRequest{Name: &blank})
	assert.ErrorIs(t, err, store.ErrValidation)

	price := int64(10)
	_, err = c.UpdateProduct(ctx, "NOPE", domain.ProductUpdateRequest{UnitPrice: &price})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestDeactivateProductStopsResolving(t *testing.T) {
	c := New(memory.NewSeeded(), cache.NewLRUProductCache(16, time.Minute), time.Minute)
	ctx := context.Background()

	_, err := c.Resolve(ctx, "YOGURT001")
	require.NoError(t, err)

	deactivated, err := c.DeactivateProduct(ctx, "YOGURT001")
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	_, err = c.Resolve(ctx, "YOGURT001")
	assert.ErrorIs(t, err, ErrProductNotFound)

	dairy, err := c.ListProducts(ctx, "Lacteos")
	require.NoError(t, err)
	require.Len(t, dairy, 2)
}
