package service

import (
	"github.com/shopspring/decimal"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
)

const moneyPlaces = 2

// ComputeTotals derives sale totals from resolved items. Discount is clamped
// to [0, subtotal], a negative tax rate counts as zero, and tax is rounded
// half away from zero to two places. Client previews call this too.
func ComputeTotals(items []domain.SaleItem, discount decimal.Decimal, taxRate decimal.Decimal) domain.Totals {
	subTotal := decimal.Zero
	for _, item := range items {
		subTotal = subTotal.Add(item.LineTotal)
	}

	discount = clamp(discount, decimal.Zero, subTotal)
	if taxRate.IsNegative() {
		taxRate = decimal.Zero
	}

	taxable := subTotal.Sub(discount)
	taxAmount := taxable.Mul(taxRate).Round(moneyPlaces)

	return domain.Totals{
		SubTotal:   subTotal,
		Discount:   discount,
		TaxRate:    taxRate,
		TaxAmount:  taxAmount,
		GrandTotal: taxable.Add(taxAmount),
	}
}

func lineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
