package domain

import "time"

const (
	CartStateOpen      = "OPEN"
	CartStateSettled   = "SETTLED"
	CartStateCancelled = "CANCELLED"
)

const (
	AdjustmentLoss       = "LOSS"
	AdjustmentSpoilage   = "SPOILAGE"
	AdjustmentCorrection = "CORRECTION"
	AdjustmentReturn     = "RETURN"
	AdjustmentTransfer   = "TRANSFER"
	AdjustmentSale       = "SALE"
)

const (
	PromotionPercentage  = "PERCENTAGE"
	PromotionFixedAmount = "FIXED_AMOUNT"
)

const SystemActor = "system"

type Batch struct {
	BatchID  string     `json:"batch_id" bson:"batch_id"`
	Expiry   *time.Time `json:"expiry,omitempty" bson:"expiry,omitempty"`
	Quantity int        `json:"quantity" bson:"quantity"`
}

type Product struct {
	ProductID    string  `json:"product_id" bson:"_id"`
	Code         string  `json:"code" bson:"code"`
	Name         string  `json:"name" bson:"name"`
	Category     string  `json:"category" bson:"category"`
	UnitPrice    int64   `json:"unit_price" bson:"unit_price"`
	Currency     string  `json:"currency" bson:"currency"`
	IsPerishable bool    `json:"is_perishable" bson:"is_perishable"`
	Active       bool    `json:"active" bson:"active"`
	Batches      []Batch `json:"batches" bson:"batches"`
}

type ProductCreateRequest struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	UnitPrice    int64   `json:"unit_price"`
	Currency     string  `json:"currency"`
	IsPerishable bool    `json:"is_perishable"`
	Batches      []Batch `json:"batches"`
}

// ProductUpdateRequest changes only the fields that are set. The code is the
// product's identity and cannot be changed.
type ProductUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	Category     *string `json:"category,omitempty"`
	UnitPrice    *int64  `json:"unit_price,omitempty"`
	Currency     *string `json:"currency,omitempty"`
	IsPerishable *bool   `json:"is_perishable,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

// ResolvedProduct is the price snapshot handed to a cart by the catalog.
type ResolvedProduct struct {
	ProductID string `json:"product_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
}

type StockBatch struct {
	BatchID       string     `json:"batch_id" bson:"batch_id"`
	Quantity      int        `json:"quantity" bson:"quantity"`
	Expiry        *time.Time `json:"expiry,omitempty" bson:"expiry,omitempty"`
	PurchasePrice int64      `json:"purchase_price,omitempty" bson:"purchase_price,omitempty"`
}

type AdjustmentEntry struct {
	At             time.Time `json:"at" bson:"at"`
	QuantityBefore int       `json:"quantity_before" bson:"quantity_before"`
	Delta          int       `json:"delta" bson:"delta"`
	QuantityAfter  int       `json:"quantity_after" bson:"quantity_after"`
	Reason         string    `json:"reason" bson:"reason"`
	Kind           string    `json:"kind" bson:"kind"`
	Actor          string    `json:"actor" bson:"actor"`
	Reference      string    `json:"reference,omitempty" bson:"reference,omitempty"`
}

type StockRecord struct {
	BranchID         string            `json:"branch_id" bson:"branch_id"`
	ProductID        string            `json:"product_id" bson:"product_id"`
	QuantityOnHand   int               `json:"quantity_on_hand" bson:"quantity_on_hand"`
	QuantityMinimum  int               `json:"quantity_minimum" bson:"quantity_minimum"`
	QuantityReserved int               `json:"quantity_reserved" bson:"quantity_reserved"`
	QuantityMaximum  int               `json:"quantity_maximum,omitempty" bson:"quantity_maximum,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Batches          []StockBatch      `json:"batches" bson:"batches"`
	AdjustmentLog    []AdjustmentEntry `json:"adjustment_log" bson:"adjustment_log"`
	LastUpdated      time.Time         `json:"last_updated" bson:"last_updated"`
}

// IsLow reports whether on-hand stock has reached the configured minimum.
func (r StockRecord) IsLow() bool {
	return r.QuantityOnHand <= r.QuantityMinimum
}

type ExpiringStock struct {
	Record        StockRecord `json:"record"`
	DaysRemaining int         `json:"days_remaining"`
}

// StockMovement is one conditional quantity change applied by the store
// together with its log entry.
type StockMovement struct {
	BranchID  string
	ProductID string
	Delta     int
	Reason    string
	Kind      string
	Actor     string
	Reference string
}

type TransferRequest struct {
	ProductID      string
	FromBranchID   string
	ToBranchID     string
	Quantity       int
	Reason         string
	Actor          string
	DefaultMinimum int
}

type TransferResult struct {
	Source      StockRecord `json:"source"`
	Destination StockRecord `json:"destination"`
}

type CartLine struct {
	ProductCode        string `json:"product_code" bson:"product_code"`
	ProductID          string `json:"product_id" bson:"product_id"`
	ProductName        string `json:"product_name" bson:"product_name"`
	Quantity           int    `json:"quantity" bson:"quantity"`
	UnitPriceAtAddTime int64  `json:"unit_price_at_add_time" bson:"unit_price_at_add_time"`
	LineSubtotal       int64  `json:"line_subtotal" bson:"line_subtotal"`
}

type PromotionApplication struct {
	PromotionCode  string `json:"promotion_code" bson:"promotion_code"`
	Kind           string `json:"kind" bson:"kind"`
	DiscountAmount int64  `json:"discount_amount" bson:"discount_amount"`
	Description    string `json:"description" bson:"description"`
}

type Cart struct {
	TransactionID     string                 `json:"transaction_id" bson:"_id"`
	CustomerID        string                 `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	BranchID          string                 `json:"branch_id" bson:"branch_id"`
	LineItems         []CartLine             `json:"line_items" bson:"line_items"`
	AppliedPromotions []PromotionApplication `json:"applied_promotions" bson:"applied_promotions"`
	Subtotal          int64                  `json:"subtotal" bson:"subtotal"`
	DiscountTotal     int64                  `json:"discount_total" bson:"discount_total"`
	Total             int64                  `json:"total" bson:"total"`
	State             string                 `json:"state" bson:"state"`
	OpenedAt          time.Time              `json:"opened_at" bson:"opened_at"`
	SettledAt         *time.Time             `json:"settled_at,omitempty" bson:"settled_at,omitempty"`
	CancelledAt       *time.Time             `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelReason      string                 `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	PaymentMethod     string                 `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	AmountTendered    *int64                 `json:"amount_tendered,omitempty" bson:"amount_tendered,omitempty"`
	Change            int64                  `json:"change" bson:"change"`
	Version           int64                  `json:"version" bson:"version"`
}

type Receipt struct {
	TransactionID     string                 `json:"transaction_id"`
	CustomerID        string                 `json:"customer_id,omitempty"`
	BranchID          string                 `json:"branch_id"`
	LineItems         []CartLine             `json:"line_items"`
	AppliedPromotions []PromotionApplication `json:"applied_promotions"`
	Subtotal          int64                  `json:"subtotal"`
	DiscountTotal     int64                  `json:"discount_total"`
	Total             int64                  `json:"total"`
	PaymentMethod     string                 `json:"payment_method"`
	AmountTendered    *int64                 `json:"amount_tendered,omitempty"`
	Change            int64                  `json:"change"`
	ItemCount         int                    `json:"item_count"`
	SettledAt         time.Time              `json:"settled_at"`
}

// Settlement is the unit committed by finalize: every stock movement plus the
// OPEN to SETTLED transition of the cart at ExpectedVersion.
type Settlement struct {
	Cart            Cart
	ExpectedVersion int64
	Movements       []StockMovement
}

type OpenTransactionRequest struct {
	CustomerID string `json:"customer_id"`
	BranchID   string `json:"branch_id"`
}

type AddItemRequest struct {
	ProductCode string `json:"product_code"`
	Quantity    int    `json:"quantity"`
}

type ApplyPromotionRequest struct {
	PromotionCode string `json:"promotion_code"`
}

type FinalizeRequest struct {
	PaymentMethod  string `json:"payment_method"`
	AmountTendered *int64 `json:"amount_tendered,omitempty"`
}

type TransactionListRequest struct {
	BranchID   string
	CustomerID string
	State      string
	Limit      int
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type StockAdjustRequest struct {
	ProductCode string `json:"product_code"`
	BranchID    string `json:"branch_id"`
	Delta       int    `json:"delta"`
	Reason      string `json:"reason"`
	Kind        string `json:"kind"`
	Actor       string `json:"actor"`
}

type StockTransferRequest struct {
	ProductCode  string `json:"product_code"`
	FromBranchID string `json:"from_branch_id"`
	ToBranchID   string `json:"to_branch_id"`
	Quantity     int    `json:"quantity"`
	Reason       string `json:"reason"`
	Actor        string `json:"actor"`
}

type StockRegisterRequest struct {
	ProductCode      string       `json:"product_code"`
	BranchID         string       `json:"branch_id"`
	QuantityOnHand   int          `json:"quantity_on_hand"`
	QuantityMinimum  *int         `json:"quantity_minimum,omitempty"`
	QuantityReserved int          `json:"quantity_reserved"`
	QuantityMaximum  int          `json:"quantity_maximum"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	Batches          []StockBatch `json:"batches"`
}

type BranchAvailability struct {
	BranchID        string `json:"branch_id"`
	QuantityOnHand  int    `json:"quantity_on_hand"`
	QuantityMinimum int    `json:"quantity_minimum"`
	Status          string `json:"status"`
}

type AvailabilityResponse struct {
	ProductCode string               `json:"product_code"`
	Name        string               `json:"name"`
	TotalStock  int                  `json:"total_stock"`
	Branches    []BranchAvailability `json:"branches"`
	Available   bool                 `json:"available"`
}

type ExpiringProduct struct {
	ProductID      string    `json:"product_id"`
	ProductCode    string    `json:"product_code"`
	Name           string    `json:"name"`
	BranchID       string    `json:"branch_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	DaysRemaining  int       `json:"days_remaining"`
	QuantityOnHand int       `json:"quantity_on_hand"`
}

type SaleSettledEvent struct {
	TransactionID string     `json:"transaction_id"`
	BranchID      string     `json:"branch_id"`
	CustomerID    string     `json:"customer_id,omitempty"`
	Lines         []CartLine `json:"lines"`
	Total         int64      `json:"total"`
	PaymentMethod string     `json:"payment_method"`
	SettledAt     time.Time  `json:"settled_at"`
}

type LowStockEvent struct {
	BranchID        string    `json:"branch_id"`
	ProductID       string    `json:"product_id"`
	QuantityOnHand  int       `json:"quantity_on_hand"`
	QuantityMinimum int       `json:"quantity_minimum"`
	At              time.Time `json:"at"`
}
