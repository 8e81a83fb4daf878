// Package mongostore stores products, stock records and carts as documents. The
// adjustment log is embedded in its stock record, so a quantity change and
// its log entry are always written by the same single-document update.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const (
	productsCollection = "products"
	stockCollection    = "stock_records"
	cartsCollection    = "carts"

	opTimeout = 10 * time.Second
)

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	products *mongo.Collection
	stock    *mongo.Collection
	carts    *mongo.Collection
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		db:       db,
		products: db.Collection(productsCollection),
		stock:    db.Collection(stockCollection),
		carts:    db.Collection(cartsCollection),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := s.stock.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "branch_id", Value: 1}, {Key: "product_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "product_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := s.carts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "branch_id", Value: 1}, {Key: "opened_at", Value: -1}}},
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "opened_at", Value: -1}}},
	})
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	opts := options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "name", Value: 1}})
	cur, err := s.products.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, 64)
	if err := cur.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.Batches == nil {
		product.Batches = []domain.Batch{}
	}
	if _, err := s.products.InsertOne(ctx, product); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: product code %s already exists", store.ErrConflict, product.Code)
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.Batches == nil {
		product.Batches = []domain.Batch{}
	}
	update := bson.M{"$set": bson.M{
		"name":          product.Name,
		"category":      product.Category,
		"unit_price":    product.UnitPrice,
		"currency":      product.Currency,
		"is_perishable": product.IsPerishable,
		"active":        product.Active,
		"batches":       product.Batches,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated domain.Product
	if err := s.products.FindOneAndUpdate(ctx, bson.M{"_id": product.ProductID}, update, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var product domain.Product
	if err := s.products.FindOne(ctx, bson.M{"code": code}).Decode(&product); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var products []domain.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ProductID] = p
	}
	return result, nil
}

func (s *Store) GetStock(ctx context.Context, branchID string, productID string) (*domain.StockRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.findStock(ctx, branchID, productID)
}

func (s *Store) ListStock(ctx context.Context, filter store.StockFilter) ([]domain.StockRecord, error) {
	query := bson.M{}
	if filter.BranchID != "" {
		query["branch_id"] = filter.BranchID
	}
	if filter.ProductID != "" {
		query["product_id"] = filter.ProductID
	}
	return s.findStockMany(ctx, query, bson.D{{Key: "branch_id", Value: 1}, {Key: "product_id", Value: 1}})
}

func (s *Store) ListStockWithExpiry(ctx context.Context, from time.Time, to time.Time) ([]domain.StockRecord, error) {
	query := bson.M{"expires_at": bson.M{"$gte": from, "$lte": to}}
	return s.findStockMany(ctx, query, bson.D{{Key: "expires_at", Value: 1}})
}

func (s *Store) CreateStock(ctx context.Context, record domain.StockRecord) (*domain.StockRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.products.FindOne(ctx, bson.M{"_id": record.ProductID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if record.Batches == nil {
		record.Batches = []domain.StockBatch{}
	}
	record.AdjustmentLog = []domain.AdjustmentEntry{}
	if _, err := s.stock.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: stock record for %s at %s already exists", store.ErrConflict, record.ProductID, record.BranchID)
		}
		return nil, err
	}
	created := record
	return &created, nil
}

func (s *Store) ApplyMovement(ctx context.Context, mv domain.StockMovement) (*domain.StockRecord, error) {
	if err := store.ValidateMovement(mv); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.applyMovement(ctx, mv, time.Now().UTC())
}

// Transfer runs debit, credit and the lazy creation of the destination in one
// multi-document transaction. It needs a replica set or sharded cluster.
func (s *Store) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer sess.EndSession(ctx)

	result, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		now := time.Now().UTC()
		if err := s.products.FindOne(sc, bson.M{"_id": req.ProductID}).Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}

		_, err := s.stock.UpdateOne(sc,
			bson.M{"branch_id": req.ToBranchID, "product_id": req.ProductID},
			bson.M{"$setOnInsert": bson.M{
				"quantity_on_hand":  0,
				"quantity_minimum":  req.DefaultMinimum,
				"quantity_reserved": 0,
				"batches":           bson.A{},
				"adjustment_log":    bson.A{},
				"last_updated":      now,
			}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, err
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

		source, err := s.applyMovement(sc, debit, now)
		if err != nil {
			return nil, err
		}
		destination, err := s.applyMovement(sc, credit, now)
		if err != nil {
			return nil, err
		}
		return &domain.TransferResult{Source: *source, Destination: *destination}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.TransferResult), nil
}

func (s *Store) CreateCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.carts.InsertOne(ctx, normalizeCart(cart)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: transaction %s already exists", store.ErrConflict, cart.TransactionID)
		}
		return nil, err
	}
	created := cart
	return &created, nil
}

func (s *Store) GetCart(ctx context.Context, transactionID string) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.findCart(ctx, transactionID)
}

func (s *Store) ListCarts(ctx context.Context, filter store.CartFilter) ([]domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := bson.M{}
	if filter.BranchID != "" {
		query["branch_id"] = filter.BranchID
	}
	if filter.CustomerID != "" {
		query["customer_id"] = filter.CustomerID
	}
	if filter.State != "" {
		query["state"] = filter.State
	}
	opts := options.Find().SetSort(bson.D{{Key: "opened_at", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.carts.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	carts := make([]domain.Cart, 0, 32)
	if err := cur.All(ctx, &carts); err != nil {
		return nil, err
	}
	return carts, nil
}

func (s *Store) SaveCart(ctx context.Context, cart domain.Cart, expectedVersion int64) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cart.Version = expectedVersion + 1
	if err := s.replaceCart(ctx, cart, expectedVersion); err != nil {
		return nil, err
	}
	saved := cart
	return &saved, nil
}

func (s *Store) SettleCart(ctx context.Context, settlement domain.Settlement) (*domain.Cart, []domain.StockRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sess, err := s.client.StartSession()
	if err != nil {
		return nil, nil, err
	}
	defer sess.EndSession(ctx)

	type settled struct {
		cart    domain.Cart
		touched []domain.StockRecord
	}

	result, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		current, err := s.findCart(sc, settlement.Cart.TransactionID)
		if err != nil {
			return nil, err
		}
		if err := store.CheckSettleable(*current, settlement.ExpectedVersion); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		movements := store.MergeMovements(settlement.Movements)
		touched := make([]domain.StockRecord, 0, len(movements))
		for _, mv := range movements {
			if err := store.ValidateMovement(mv); err != nil {
				return nil, err
			}
			record, err := s.applyMovement(sc, mv, now)
			if errors.Is(err, store.ErrNotFound) {
				return nil, store.Insufficient(mv.BranchID, mv.ProductID, -mv.Delta, 0)
			}
			if err != nil {
				return nil, err
			}
			touched = append(touched, *record)
		}

		cart := settlement.Cart
		cart.Version = settlement.ExpectedVersion + 1
		if err := s.replaceCart(sc, cart, settlement.ExpectedVersion); err != nil {
			return nil, err
		}
		return settled{cart: cart, touched: touched}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	out := result.(settled)
	return &out.cart, out.touched, nil
}

// applyMovement is one conditional pipeline update: the quantity moves and
// the log entry is appended only when the result stays non-negative.
func (s *Store) applyMovement(ctx context.Context, mv domain.StockMovement, at time.Time) (*domain.StockRecord, error) {
	entry := store.NewEntry(0, mv, at)
	filter := bson.M{
		"branch_id":        mv.BranchID,
		"product_id":       mv.ProductID,
		"quantity_on_hand": bson.M{"$gte": -mv.Delta},
	}
	newQuantity := bson.D{{Key: "$add", Value: bson.A{"$quantity_on_hand", mv.Delta}}}
	logEntry := bson.D{
		{Key: "at", Value: at},
		{Key: "quantity_before", Value: "$quantity_on_hand"},
		{Key: "delta", Value: mv.Delta},
		{Key: "quantity_after", Value: newQuantity},
		{Key: "reason", Value: literal(entry.Reason)},
		{Key: "kind", Value: literal(entry.Kind)},
		{Key: "actor", Value: literal(entry.Actor)},
		{Key: "reference", Value: literal(entry.Reference)},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "quantity_on_hand", Value: newQuantity},
			{Key: "last_updated", Value: at},
			{Key: "adjustment_log", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$adjustment_log", bson.A{}}}},
				bson.A{logEntry},
			}}}},
		}}},
	}

	var record domain.StockRecord
	err := s.stock.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, findErr := s.findStock(ctx, mv.BranchID, mv.ProductID)
		if findErr != nil {
			return nil, findErr
		}
		return nil, store.Insufficient(mv.BranchID, mv.ProductID, -mv.Delta, current.QuantityOnHand)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) findStock(ctx context.Context, branchID string, productID string) (*domain.StockRecord, error) {
	var record domain.StockRecord
	err := s.stock.FindOne(ctx, bson.M{"branch_id": branchID, "product_id": productID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) findStockMany(ctx context.Context, query bson.M, sort bson.D) ([]domain.StockRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.stock.Find(ctx, query, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	records := make([]domain.StockRecord, 0, 32)
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) findCart(ctx context.Context, transactionID string) (*domain.Cart, error) {
	var cart domain.Cart
	err := s.carts.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *Store) replaceCart(ctx context.Context, cart domain.Cart, expectedVersion int64) error {
	res, err := s.carts.ReplaceOne(ctx,
		bson.M{"_id": cart.TransactionID, "version": expectedVersion, "state": domain.CartStateOpen},
		normalizeCart(cart),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	current, err := s.findCart(ctx, cart.TransactionID)
	if err != nil {
		return err
	}
	if err := store.CheckSettleable(*current, expectedVersion); err != nil {
		return err
	}
	return fmt.Errorf("%w: transaction %s was not updated", store.ErrConflict, cart.TransactionID)
}

func normalizeCart(cart domain.Cart) domain.Cart {
	if cart.LineItems == nil {
		cart.LineItems = []domain.CartLine{}
	}
	if cart.AppliedPromotions == nil {
		cart.AppliedPromotions = []domain.PromotionApplication{}
	}
	return cart
}

// literal keeps user text such as "$5 off" from being read as a field path
// inside an update pipeline.
func literal(value string) bson.D {
	return bson.D{{Key: "$literal", Value: value}}
}
