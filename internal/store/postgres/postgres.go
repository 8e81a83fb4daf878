package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `product_id, code, name, category, unit_price, currency, is_perishable, active, batches`

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR category = $1)
		ORDER BY category, name
	`, filter.Category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	batches, err := json.Marshal(nonNil(product.Batches))
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (product_id, code, name, category, unit_price, currency, is_perishable, active, batches, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ProductID, product.Code, product.Name, product.Category, product.UnitPrice, product.Currency, product.IsPerishable, product.Active, batches)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product code %s already exists", store.ErrConflict, product.Code)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	batches, err := json.Marshal(nonNil(product.Batches))
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit_price = $4, currency = $5, is_perishable = $6, active = $7, batches = $8
		WHERE product_id = $1
		RETURNING `+productColumns+`
	`, product.ProductID, product.Name, product.Category, product.UnitPrice, product.Currency, product.IsPerishable, product.Active, batches)
	updated, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return updated, err
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE code = $1
	`, code)
	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return product, err
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE product_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[product.ProductID] = *product
	}
	return result, rows.Err()
}

const stockColumns = `branch_id, product_id, quantity_on_hand, quantity_minimum, quantity_reserved, quantity_maximum, expires_at, batches, last_updated`

func (s *Store) GetStock(ctx context.Context, branchID string, productID string) (*domain.StockRecord, error) {
	record, err := getStock(ctx, s.db, branchID, productID)
	if err != nil {
		return nil, err
	}
	if err := s.attachLogs(ctx, s.db, []*domain.StockRecord{record}); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) ListStock(ctx context.Context, filter store.StockFilter) ([]domain.StockRecord, error) {
	return s.queryStock(ctx, `
		SELECT `+stockColumns+`
		FROM stock_records
		WHERE ($1 = '' OR branch_id = $1) AND ($2 = '' OR product_id = $2)
		ORDER BY branch_id, product_id
	`, filter.BranchID, filter.ProductID)
}

func (s *Store) ListStockWithExpiry(ctx context.Context, from time.Time, to time.Time) ([]domain.StockRecord, error) {
	return s.queryStock(ctx, `
		SELECT `+stockColumns+`
		FROM stock_records
		WHERE expires_at IS NOT NULL AND expires_at BETWEEN $1 AND $2
		ORDER BY expires_at
	`, from, to)
}

func (s *Store) CreateStock(ctx context.Context, record domain.StockRecord) (*domain.StockRecord, error) {
	batches, err := json.Marshal(nonNil(record.Batches))
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stock_records (`+stockColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, record.BranchID, record.ProductID, record.QuantityOnHand, record.QuantityMinimum, record.QuantityReserved,
		record.QuantityMaximum, nullTime(record.ExpiresAt), batches, record.LastUpdated)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: stock record for %s at %s already exists", store.ErrConflict, record.ProductID, record.BranchID)
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := record
	created.AdjustmentLog = []domain.AdjustmentEntry{}
	return &created, nil
}

func (s *Store) ApplyMovement(ctx context.Context, mv domain.StockMovement) (*domain.StockRecord, error) {
	if err := store.ValidateMovement(mv); err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := applyMovement(ctx, pgTx, mv, time.Now().UTC()); err != nil {
		return nil, err
	}
	record, err := getStock(ctx, pgTx, mv.BranchID, mv.ProductID)
	if err != nil {
		return nil, err
	}
	if err := s.attachLogs(ctx, pgTx, []*domain.StockRecord{record}); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classifyTxError(err)
	}
	return record, nil
}

func (s *Store) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_records (branch_id, product_id, quantity_on_hand, quantity_minimum, last_updated)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (branch_id, product_id) DO NOTHING
	`, req.ToBranchID, req.ProductID, req.DefaultMinimum, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, classifyTxError(err)
	}

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

	if err := applyMovement(ctx, pgTx, debit, now); err != nil {
		return nil, err
	}
	if err := applyMovement(ctx, pgTx, credit, now); err != nil {
		return nil, err
	}

	source, err := getStock(ctx, pgTx, req.FromBranchID, req.ProductID)
	if err != nil {
		return nil, err
	}
	destination, err := getStock(ctx, pgTx, req.ToBranchID, req.ProductID)
	if err != nil {
		return nil, err
	}
	if err := s.attachLogs(ctx, pgTx, []*domain.StockRecord{source, destination}); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classifyTxError(err)
	}
	return &domain.TransferResult{Source: *source, Destination: *destination}, nil
}

const cartColumns = `transaction_id, customer_id, branch_id, line_items, applied_promotions, subtotal, discount_total, total,
	state, opened_at, settled_at, cancelled_at, cancel_reason, payment_method, amount_tendered, change_due, version`

func (s *Store) CreateCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error) {
	args, err := cartArgs(cart)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (`+cartColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: transaction %s already exists", store.ErrConflict, cart.TransactionID)
		}
		return nil, err
	}

	created := cart
	return &created, nil
}

func (s *Store) GetCart(ctx context.Context, transactionID string) (*domain.Cart, error) {
	return getCart(ctx, s.db, transactionID, false)
}

func (s *Store) ListCarts(ctx context.Context, filter store.CartFilter) ([]domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts`
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 4)
	for _, cond := range []struct {
		column string
		value  string
	}{
		{"branch_id", filter.BranchID},
		{"customer_id", filter.CustomerID},
		{"state", filter.State},
	} {
		if cond.value == "" {
			continue
		}
		args = append(args, cond.value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", cond.column, len(args)))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY opened_at DESC, transaction_id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	carts := make([]domain.Cart, 0, 32)
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			return nil, err
		}
		carts = append(carts, *cart)
	}
	return carts, rows.Err()
}

func (s *Store) SaveCart(ctx context.Context, cart domain.Cart, expectedVersion int64) (*domain.Cart, error) {
	cart.Version = expectedVersion + 1
	if err := updateCart(ctx, s.db, cart, expectedVersion); err != nil {
		return nil, err
	}
	saved := cart
	return &saved, nil
}

func (s *Store) SettleCart(ctx context.Context, settlement domain.Settlement) (*domain.Cart, []domain.StockRecord, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	current, err := getCart(ctx, pgTx, settlement.Cart.TransactionID, true)
	if err != nil {
		return nil, nil, err
	}
	if err := store.CheckSettleable(*current, settlement.ExpectedVersion); err != nil {
		return nil, nil, err
	}

	movements := store.MergeMovements(settlement.Movements)
	slices.SortFunc(movements, func(a, b domain.StockMovement) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})

	now := time.Now().UTC()
	touched := make([]domain.StockRecord, 0, len(movements))
	for _, mv := range movements {
		if err := store.ValidateMovement(mv); err != nil {
			return nil, nil, err
		}
		if err := applyMovement(ctx, pgTx, mv, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, store.Insufficient(mv.BranchID, mv.ProductID, -mv.Delta, 0)
			}
			return nil, nil, err
		}
		record, err := getStock(ctx, pgTx, mv.BranchID, mv.ProductID)
		if err != nil {
			return nil, nil, err
		}
		touched = append(touched, *record)
	}

	cart := settlement.Cart
	cart.Version = settlement.ExpectedVersion + 1
	if err := updateCart(ctx, pgTx, cart, settlement.ExpectedVersion); err != nil {
		return nil, nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, classifyTxError(err)
	}
	return &cart, touched, nil
}

// applyMovement changes the quantity only when the result stays non-negative
// and writes the matching log row in the same transaction.
func applyMovement(ctx context.Context, q querier, mv domain.StockMovement, at time.Time) error {
	var after int
	err := q.QueryRowContext(ctx, `
		UPDATE stock_records
		SET quantity_on_hand = quantity_on_hand + $3, last_updated = $4
		WHERE branch_id = $1 AND product_id = $2 AND quantity_on_hand + $3 >= 0
		RETURNING quantity_on_hand
	`, mv.BranchID, mv.ProductID, mv.Delta, at).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		var available int
		err := q.QueryRowContext(ctx, `
			SELECT quantity_on_hand FROM stock_records WHERE branch_id = $1 AND product_id = $2
		`, mv.BranchID, mv.ProductID).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return classifyTxError(err)
		}
		return store.Insufficient(mv.BranchID, mv.ProductID, -mv.Delta, available)
	}
	if err != nil {
		return classifyTxError(err)
	}

	entry := store.NewEntry(after-mv.Delta, mv, at)
	_, err = q.ExecContext(ctx, `
		INSERT INTO stock_adjustments (branch_id, product_id, at, quantity_before, delta, quantity_after, reason, kind, actor, reference)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, mv.BranchID, mv.ProductID, entry.At, entry.QuantityBefore, entry.Delta, entry.QuantityAfter,
		entry.Reason, entry.Kind, entry.Actor, nullIfEmpty(entry.Reference))
	return classifyTxError(err)
}

func getStock(ctx context.Context, q querier, branchID string, productID string) (*domain.StockRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+stockColumns+`
		FROM stock_records
		WHERE branch_id = $1 AND product_id = $2
	`, branchID, productID)
	record, err := scanStock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return record, err
}

func (s *Store) queryStock(ctx context.Context, query string, args ...any) ([]domain.StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.StockRecord, 0, 32)
	for rows.Next() {
		record, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachLogs(ctx, s.db, records); err != nil {
		return nil, err
	}

	result := make([]domain.StockRecord, 0, len(records))
	for _, record := range records {
		result = append(result, *record)
	}
	return result, nil
}

func (s *Store) attachLogs(ctx context.Context, q querier, records []*domain.StockRecord) error {
	if len(records) == 0 {
		return nil
	}

	branches := make([]string, 0, len(records))
	products := make([]string, 0, len(records))
	byKey := make(map[string]*domain.StockRecord, len(records))
	for _, record := range records {
		record.AdjustmentLog = []domain.AdjustmentEntry{}
		branches = append(branches, record.BranchID)
		products = append(products, record.ProductID)
		byKey[record.BranchID+"\x00"+record.ProductID] = record
	}

	rows, err := q.QueryContext(ctx, `
		SELECT branch_id, product_id, at, quantity_before, delta, quantity_after, reason, kind, actor, reference
		FROM stock_adjustments
		WHERE branch_id = ANY($1) AND product_id = ANY($2)
		ORDER BY id
	`, branches, products)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var branchID, productID string
		var entry domain.AdjustmentEntry
		var reference sql.NullString
		if err := rows.Scan(&branchID, &productID, &entry.At, &entry.QuantityBefore, &entry.Delta, &entry.QuantityAfter,
			&entry.Reason, &entry.Kind, &entry.Actor, &reference); err != nil {
			return err
		}
		record, ok := byKey[branchID+"\x00"+productID]
		if !ok {
			continue
		}
		entry.At = entry.At.UTC()
		entry.Reference = reference.String
		record.AdjustmentLog = append(record.AdjustmentLog, entry)
	}
	return rows.Err()
}

func getCart(ctx context.Context, q querier, transactionID string, forUpdate bool) (*domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE transaction_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	cart, err := scanCart(q.QueryRowContext(ctx, query, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return cart, err
}

func scanCart(row scanner) (*domain.Cart, error) {
	var (
		cart           domain.Cart
		customerID     sql.NullString
		lines          []byte
		promos         []byte
		settledAt      sql.NullTime
		cancelledAt    sql.NullTime
		cancelReason   sql.NullString
		paymentMethod  sql.NullString
		amountTendered sql.NullInt64
	)
	if err := row.Scan(
		&cart.TransactionID, &customerID, &cart.BranchID, &lines, &promos,
		&cart.Subtotal, &cart.DiscountTotal, &cart.Total, &cart.State, &cart.OpenedAt,
		&settledAt, &cancelledAt, &cancelReason, &paymentMethod, &amountTendered, &cart.Change, &cart.Version,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(lines, &cart.LineItems); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(promos, &cart.AppliedPromotions); err != nil {
		return nil, err
	}
	cart.CustomerID = customerID.String
	cart.OpenedAt = cart.OpenedAt.UTC()
	cart.SettledAt = timePtr(settledAt)
	cart.CancelledAt = timePtr(cancelledAt)
	cart.CancelReason = cancelReason.String
	cart.PaymentMethod = paymentMethod.String
	if amountTendered.Valid {
		tendered := amountTendered.Int64
		cart.AmountTendered = &tendered
	}
	return &cart, nil
}

func updateCart(ctx context.Context, q querier, cart domain.Cart, expectedVersion int64) error {
	args, err := cartArgs(cart)
	if err != nil {
		return err
	}
	args = append(args, expectedVersion)

	res, err := q.ExecContext(ctx, `
		UPDATE carts
		SET customer_id = $2, branch_id = $3, line_items = $4, applied_promotions = $5,
			subtotal = $6, discount_total = $7, total = $8, state = $9, opened_at = $10,
			settled_at = $11, cancelled_at = $12, cancel_reason = $13, payment_method = $14,
			amount_tendered = $15, change_due = $16, version = $17
		WHERE transaction_id = $1 AND version = $18 AND state = 'OPEN'
	`, args...)
	if err != nil {
		return classifyTxError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	current, err := getCart(ctx, q, cart.TransactionID, false)
	if err != nil {
		return err
	}
	if err := store.CheckSettleable(*current, expectedVersion); err != nil {
		return err
	}
	return fmt.Errorf("%w: transaction %s was not updated", store.ErrConflict, cart.TransactionID)
}

func cartArgs(cart domain.Cart) ([]any, error) {
	lines, err := json.Marshal(nonNil(cart.LineItems))
	if err != nil {
		return nil, err
	}
	promos, err := json.Marshal(nonNil(cart.AppliedPromotions))
	if err != nil {
		return nil, err
	}

	var tendered any
	if cart.AmountTendered != nil {
		tendered = *cart.AmountTendered
	}
	return []any{
		cart.TransactionID, nullIfEmpty(cart.CustomerID), cart.BranchID, lines, promos,
		cart.Subtotal, cart.DiscountTotal, cart.Total, cart.State, cart.OpenedAt,
		nullTime(cart.SettledAt), nullTime(cart.CancelledAt), nullIfEmpty(cart.CancelReason),
		nullIfEmpty(cart.PaymentMethod), tendered, cart.Change, cart.Version,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*domain.Product, error) {
	var product domain.Product
	var batches []byte
	if err := row.Scan(&product.ProductID, &product.Code, &product.Name, &product.Category, &product.UnitPrice,
		&product.Currency, &product.IsPerishable, &product.Active, &batches); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(batches, &product.Batches); err != nil {
		return nil, err
	}
	return &product, nil
}

func scanStock(row scanner) (*domain.StockRecord, error) {
	var record domain.StockRecord
	var expiresAt sql.NullTime
	var batches []byte
	if err := row.Scan(&record.BranchID, &record.ProductID, &record.QuantityOnHand, &record.QuantityMinimum,
		&record.QuantityReserved, &record.QuantityMaximum, &expiresAt, &batches, &record.LastUpdated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(batches, &record.Batches); err != nil {
		return nil, err
	}
	record.ExpiresAt = timePtr(expiresAt)
	record.LastUpdated = record.LastUpdated.UTC()
	record.AdjustmentLog = []domain.AdjustmentEntry{}
	return &record, nil
}

// classifyTxError turns serialization failures into ErrConflict so callers
// can retry the whole command.
func classifyTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
