package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const moneyScale = 2

// Money renders an amount with at least two decimal places, so 31.5 goes
// out as "31.50". Amounts carrying more places keep them.
func Money(d decimal.Decimal) string {
	if d.Exponent() < -moneyScale {
		return d.String()
	}
	return d.StringFixed(moneyScale)
}

type productJSON Product

func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		productJSON
		Price string `json:"price"`
	}{productJSON(p), Money(p.Price)})
}

type saleItemJSON SaleItem

func (i SaleItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		saleItemJSON
		UnitPrice string `json:"unitPrice"`
		LineTotal string `json:"lineTotal"`
	}{saleItemJSON(i), Money(i.UnitPrice), Money(i.LineTotal)})
}

type saleJSON Sale

func (s Sale) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		saleJSON
		SubTotal   string `json:"subTotal"`
		TaxAmount  string `json:"taxAmount"`
		Discount   string `json:"discount"`
		GrandTotal string `json:"grandTotal"`
	}{saleJSON(s), Money(s.SubTotal), Money(s.TaxAmount), Money(s.Discount), Money(s.GrandTotal)})
}

type previewJSON CheckoutPreview

func (p CheckoutPreview) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		previewJSON
		SubTotal   string `json:"subTotal"`
		TaxAmount  string `json:"taxAmount"`
		Discount   string `json:"discount"`
		GrandTotal string `json:"grandTotal"`
	}{previewJSON(p), Money(p.SubTotal), Money(p.TaxAmount), Money(p.Discount), Money(p.GrandTotal)})
}

type revenueJSON RevenueReport

func (r RevenueReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		revenueJSON
		Revenue string `json:"revenue"`
	}{revenueJSON(r), Money(r.Revenue)})
}
