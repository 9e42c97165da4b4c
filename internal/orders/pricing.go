package orders

import (
	"github.com/shopspring/decimal"
)

// Pricing holds the business constants applied at checkout.
type Pricing struct {
	TaxRate         decimal.Decimal
	DefaultShipping decimal.Decimal
}

func NewPricing(taxRate, defaultShipping float64) Pricing {
	return Pricing{
		TaxRate:         decimal.NewFromFloat(taxRate),
		DefaultShipping: decimal.NewFromFloat(defaultShipping),
	}
}

type Totals struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	TotalAmount  decimal.Decimal
}

// Compute prices the lines. A nil shipping uses the default; a nil discount is zero.
func (p Pricing) Compute(lines []OrderItem, shipping, discount *decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	t := Totals{
		Subtotal:     subtotal,
		Tax:          subtotal.Mul(p.TaxRate).Round(2),
		ShippingCost: p.DefaultShipping,
		Discount:     decimal.Zero,
	}
	if shipping != nil {
		t.ShippingCost = *shipping
	}
	if discount != nil {
		t.Discount = *discount
	}
	t.TotalAmount = t.Subtotal.Add(t.Tax).Add(t.ShippingCost).Sub(t.Discount)
	return t
}
