package promotion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
)

var ErrUnknown = errors.New("invalid promotion")

type Rule struct {
	Code        string
	Kind        string
	Rate        decimal.Decimal
	FixedAmount int64
	Description string
}

var table = map[string]Rule{
	"DESC10": {Code: "DESC10", Kind: domain.PromotionPercentage, Rate: decimal.RequireFromString("0.10"), Description: "10% discount"},
	"DESC20": {Code: "DESC20", Kind: domain.PromotionPercentage, Rate: decimal.RequireFromString("0.20"), Description: "20% discount"},
	"FIJO50": {Code: "FIJO50", Kind: domain.PromotionFixedAmount, FixedAmount: 50, Description: "fixed discount of 50"},
}

func Lookup(code string) (Rule, error) {
	rule, ok := table[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknown, code)
	}
	return rule, nil
}

// Discount computes the amount the rule takes off subtotal. It never exceeds
// subtotal and is never negative.
func (r Rule) Discount(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}

	var amount int64
	switch r.Kind {
	case domain.PromotionPercentage:
		amount = decimal.NewFromInt(subtotal).Mul(r.Rate).Round(0).IntPart()
	case domain.PromotionFixedAmount:
		amount = r.FixedAmount
	}

	if amount > subtotal {
		return subtotal
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Apply resolves code and prices it against subtotal.
func Apply(code string, subtotal int64) (domain.PromotionApplication, error) {
	rule, err := Lookup(code)
	if err != nil {
		return domain.PromotionApplication{}, err
	}
	return domain.PromotionApplication{
		PromotionCode:  rule.Code,
		Kind:           rule.Kind,
		DiscountAmount: rule.Discount(subtotal),
		Description:    rule.Description,
	}, nil
}
