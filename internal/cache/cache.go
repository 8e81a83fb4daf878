package cache

import (
	"context"
	"errors"
	"time"

	"retailpos/backend/internal/domain"
)

type ProductCache interface {
	Get(ctx context.Context, key string) (*domain.ResolvedProduct, bool, error)
	Set(ctx context.Context, key string, value *domain.ResolvedProduct, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*domain.ResolvedProduct, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ *domain.ResolvedProduct, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Delete(_ context.Context, _ string) error {
	return nil
}

// Layered reads through its caches in order and back-fills the faster layers
// on a hit further down. Writes and deletes go to every layer.
type Layered []ProductCache

func (l Layered) Get(ctx context.Context, key string) (*domain.ResolvedProduct, bool, error) {
	var errs []error
	for i, c := range l {
		value, ok, err := c.Get(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		for _, faster := range l[:i] {
			if err := faster.Set(ctx, key, value, 0); err != nil {
				errs = append(errs, err)
			}
		}
		return value, true, errors.Join(errs...)
	}
	return nil, false, errors.Join(errs...)
}

func (l Layered) Set(ctx context.Context, key string, value *domain.ResolvedProduct, ttl time.Duration) error {
	var errs []error
	for _, c := range l {
		if err := c.Set(ctx, key, value, ttl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l Layered) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, c := range l {
		if err := c.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
