package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

func newLedgerWithProduct(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	repo := memory.New()
	_, err := repo.CreateProduct(context.Background(), domain.Product{ProductID: "P1", Code: "X", Name: "Widget", UnitPrice: 100, Active: true})
	require.NoError(t, err)
	return New(repo, DefaultMinimum), repo
}

func TestTransferShortSourceMutatesNothing(t *testing.T) {
	l, _ := newLedgerWithProduct(t)
	ctx := context.Background()

	_, err := l.Register(ctx, domain.StockRecord{BranchID: "S001", ProductID: "P1", QuantityOnHand: 5})
	require.NoError(t, err)
	_, err = l.Register(ctx, domain.StockRecord{BranchID: "S002", ProductID: "P1", QuantityOnHand: 7})
	require.NoError(t, err)

	_, err = l.Transfer(ctx, "P1", "S001", "S002", 10, "rebalance", "ana")
	var insufficient *store.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Available)

	source, err := l.GetStock(ctx, "S001", "P1")
	require.NoError(t, err)
	destination, err := l.GetStock(ctx, "S002", "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, source.QuantityOnHand)
	assert.Equal(t, 7, destination.QuantityOnHand)
	assert.Empty(t, source.AdjustmentLog)
	assert.Empty(t, destination.AdjustmentLog)
}

func TestTransferCreatesDestinationWithDefaultMinimum(t *testing.T) {
	l, _ := newLedgerWithProduct(t)
	ctx := context.Background()

	_, err := l.Register(ctx, domain.StockRecord{BranchID: "S001", ProductID: "P1", QuantityOnHand: 20})
	require.NoError(t, err)

	result, err := l.Transfer(ctx, "P1", "S001", "S009", 8, "", "ana")
	require.NoError(t, err)
	assert.Equal(t, 12, result.Source.QuantityOnHand)
	assert.Equal(t, 8, result.Destination.QuantityOnHand)
	assert.Equal(t, DefaultMinimum, result.Destination.QuantityMinimum)
	require.Len(t, result.Destination.AdjustmentLog, 1)
	assert.Equal(t, domain.AdjustmentTransfer, result.Destination.AdjustmentLog[0].Kind)
	assert.Equal(t, "ana", result.Destination.AdjustmentLog[0].Actor)
}

func TestTransferValidation(t *testing.T) {
	l, _ := newLedgerWithProduct(t)
	ctx := context.Background()

	_, err := l.Transfer(ctx, "P1", "S001", "S001", 1, "x", "")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = l.Transfer(ctx, "P1", "S001", "S002", 0, "x", "")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = l.Transfer(ctx, "P1", "S404", "S002", 1, "x", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdjustValidation(t *testing.T) {
	l, _ := newLedgerWithProduct(t)
	ctx := context.Background()
	_, err := l.Register(ctx, domain.StockRecord{BranchID: "S001", ProductID: "P1", QuantityOnHand: 3})
	require.NoError(t, err)

	_, err = l.Adjust(ctx, "S001", "P1", 0, "noop", domain.AdjustmentCorrection, "")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = l.Adjust(ctx, "S001", "P1", 1, " ", domain.AdjustmentCorrection, "")
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = l.Adjust(ctx, "S001", "P1", 1, "found", "THEFT", "")
	assert.ErrorIs(t, err, store.ErrValidation)

	record, err := l.Adjust(ctx, "S001", "P1", 2, "customer return", "return", "")
	require.NoError(t, err)
	assert.Equal(t, 5, record.QuantityOnHand)
	assert.Equal(t, domain.AdjustmentReturn, record.AdjustmentLog[0].Kind)
}

func TestRegisterRejectsDuplicatesAndNegatives(t *testing.T) {
	l, _ := newLedgerWithProduct(t)
	ctx := context.Background()

	_, err := l.Register(ctx, domain.StockRecord{BranchID: "S001", ProductID: "P1", QuantityOnHand: -1})
	assert.ErrorIs(t, err, store.ErrValidation)

	expiry := time.Now().UTC().AddDate(0, 0, 4)
	later := expiry.AddDate(0, 0, 10)
	record, err := l.Register(ctx, domain.StockRecord{
		BranchID:       "S001",
		ProductID:      "P1",
		QuantityOnHand: 3,
		Batches: []domain.StockBatch{
			{BatchID: "B2", Quantity: 1, Expiry: &later},
			{BatchID: "B1", Quantity: 2, Expiry: &expiry},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, record.ExpiresAt)
	assert.True(t, record.ExpiresAt.Equal(expiry))

	_, err = l.Register(ctx, domain.StockRecord{BranchID: "S001", ProductID: "P1"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestRandomSequencesNeverDriveStockNegative(t *testing.T) {
	l, _ := newLedgerWithProduct(t)
	ctx := context.Background()
	branches := []string{"S001", "S002", "S003"}
	for _, branch := range branches {
		_, err := l.Register(ctx, domain.StockRecord{BranchID: branch, ProductID: "P1", QuantityOnHand: 10})
		require.NoError(t, err)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		if rng.Intn(2) == 0 {
			branch := branches[rng.Intn(len(branches))]
			before, err := l.GetStock(ctx, branch, "P1")
			require.NoError(t, err)

			delta := rng.Intn(21) - 12
			if delta == 0 {
				delta = 1
			}
			_, err = l.Adjust(ctx, branch, "P1", delta, "random", domain.AdjustmentCorrection, "")
			if err != nil {
				require.True(t, errors.Is(err, store.ErrInsufficientStock), "unexpected error %v", err)
				after, getErr := l.GetStock(ctx, branch, "P1")
				require.NoError(t, getErr)
				require.Equal(t, before.QuantityOnHand, after.QuantityOnHand)
				require.Len(t, after.AdjustmentLog, len(before.AdjustmentLog))
			}
		} else {
			from := branches[rng.Intn(len(branches))]
			to := branches[(rng.Intn(len(branches)-1)+1+indexOf(branches, from))%len(branches)]
			_, err := l.Transfer(ctx, "P1", from, to, rng.Intn(15)+1, "random", "")
			if err != nil {
				require.ErrorIs(t, err, store.ErrInsufficientStock)
			}
		}

		records, err := l.ListStock(ctx, store.StockFilter{ProductID: "P1"})
		require.NoError(t, err)
		for _, record := range records {
			require.GreaterOrEqual(t, record.QuantityOnHand, 0)
			if n := len(record.AdjustmentLog); n > 0 {
				require.Equal(t, record.QuantityOnHand, record.AdjustmentLog[n-1].QuantityAfter)
			}
		}
	}
}

func TestListExpiringBeforeOrdersBySoonest(t *testing.T) {
	repo := memory.NewSeeded()
	l := New(repo, DefaultMinimum)

	expiring, err := l.ListExpiringBefore(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, expiring, 4)
	assert.Equal(t, "P10002", expiring[0].Record.ProductID)
	for i := 1; i < len(expiring); i++ {
		assert.LessOrEqual(t, expiring[i-1].DaysRemaining, expiring[i].DaysRemaining)
	}

	_, err = l.ListExpiringBefore(context.Background(), -1)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
