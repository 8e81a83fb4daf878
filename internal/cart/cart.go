// Package cart holds the arithmetic of an in-progress sale. Nothing here
// touches storage; callers persist the returned value.
package cart

import (
	"fmt"
	"time"

	"retailpos/backend/internal/domain"
)

func New(transactionID string, customerID string, branchID string, openedAt time.Time) domain.Cart {
	return domain.Cart{
		TransactionID:     transactionID,
		CustomerID:        customerID,
		BranchID:          branchID,
		LineItems:         []domain.CartLine{},
		AppliedPromotions: []domain.PromotionApplication{},
		State:             domain.CartStateOpen,
		OpenedAt:          openedAt,
	}
}

func AddLine(c domain.Cart, product domain.ResolvedProduct, quantity int) domain.Cart {
	line := domain.CartLine{
		ProductCode:        product.Code,
		ProductID:          product.ProductID,
		ProductName:        product.Name,
		Quantity:           quantity,
		UnitPriceAtAddTime: product.UnitPrice,
		LineSubtotal:       int64(quantity) * product.UnitPrice,
	}
	c.LineItems = append(append([]domain.CartLine(nil), c.LineItems...), line)
	return Recompute(c)
}

func AddPromotion(c domain.Cart, applied domain.PromotionApplication) domain.Cart {
	c.AppliedPromotions = append(append([]domain.PromotionApplication(nil), c.AppliedPromotions...), applied)
	return Recompute(c)
}

// Recompute derives subtotal, discount total and total from the lines and
// promotions already on the cart.
func Recompute(c domain.Cart) domain.Cart {
	var subtotal int64
	for _, line := range c.LineItems {
		subtotal += line.LineSubtotal
	}
	var discount int64
	for _, promo := range c.AppliedPromotions {
		discount += promo.DiscountAmount
	}

	c.Subtotal = subtotal
	c.DiscountTotal = discount
	c.Total = subtotal - discount
	if c.Total < 0 {
		c.Total = 0
	}
	return c
}

// QuantityOf sums the units of productID already on the cart.
func QuantityOf(c domain.Cart, productID string) int {
	total := 0
	for _, line := range c.LineItems {
		if line.ProductID == productID {
			total += line.Quantity
		}
	}
	return total
}

func ItemCount(c domain.Cart) int {
	total := 0
	for _, line := range c.LineItems {
		total += line.Quantity
	}
	return total
}

// SaleMovements turns the cart lines into one SALE decrement per product.
func SaleMovements(c domain.Cart) []domain.StockMovement {
	movements := make([]domain.StockMovement, 0, len(c.LineItems))
	index := make(map[string]int, len(c.LineItems))
	for _, line := range c.LineItems {
		if i, ok := index[line.ProductID]; ok {
			movements[i].Delta -= line.Quantity
			continue
		}
		index[line.ProductID] = len(movements)
		movements = append(movements, domain.StockMovement{
			BranchID:  c.BranchID,
			ProductID: line.ProductID,
			Delta:     -line.Quantity,
			Reason:    "sale " + c.TransactionID,
			Kind:      domain.AdjustmentSale,
			Actor:     domain.SystemActor,
			Reference: c.TransactionID,
		})
	}
	return movements
}

func CheckInvariants(c domain.Cart) error {
	var subtotal int64
	for i, line := range c.LineItems {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d has non-positive quantity %d", i, line.Quantity)
		}
		if line.LineSubtotal != int64(line.Quantity)*line.UnitPriceAtAddTime {
			return fmt.Errorf("line %d subtotal %d does not match quantity x price", i, line.LineSubtotal)
		}
		subtotal += line.LineSubtotal
	}
	if subtotal != c.Subtotal {
		return fmt.Errorf("subtotal %d does not match lines %d", c.Subtotal, subtotal)
	}

	var discount int64
	for _, promo := range c.AppliedPromotions {
		discount += promo.DiscountAmount
	}
	if discount != c.DiscountTotal {
		return fmt.Errorf("discount total %d does not match promotions %d", c.DiscountTotal, discount)
	}

	want := max(0, c.Subtotal-c.DiscountTotal)
	if c.Total != want {
		return fmt.Errorf("total %d, want %d", c.Total, want)
	}
	return nil
}

func ToReceipt(c domain.Cart) domain.Receipt {
	receipt := domain.Receipt{
		TransactionID:     c.TransactionID,
		CustomerID:        c.CustomerID,
		BranchID:          c.BranchID,
		LineItems:         c.LineItems,
		AppliedPromotions: c.AppliedPromotions,
		Subtotal:          c.Subtotal,
		DiscountTotal:     c.DiscountTotal,
		Total:             c.Total,
		PaymentMethod:     c.PaymentMethod,
		AmountTendered:    c.AmountTendered,
		Change:            c.Change,
		ItemCount:         ItemCount(c),
	}
	if c.SettledAt != nil {
		receipt.SettledAt = *c.SettledAt
	}
	return receipt
}
