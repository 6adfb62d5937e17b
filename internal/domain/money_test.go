package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMoneyKeepsTwoPlaces(t *testing.T) {
	cases := map[string]string{
		"31.5":    "31.50",
		"0":       "0.00",
		"2.35":    "2.35",
		"1.23456": "1.23456",
	}
	for in, want := range cases {
		if got := Money(decimal.RequireFromString(in)); got != want {
			t.Fatalf("Money(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestSaleJSONUsesFixedScale(t *testing.T) {
	sale := Sale{
		ID:        "s1",
		ReceiptNo: "R-20260308-180203-1234",
		Items: []SaleItem{{
			ProductID: "p1",
			Name:      "Basmati Rice 5kg",
			UnitPrice: decimal.RequireFromString("10"),
			Qty:       3,
			LineTotal: decimal.RequireFromString("30"),
		}},
		SubTotal:   decimal.RequireFromString("30"),
		TaxRate:    decimal.RequireFromString("0.05"),
		TaxAmount:  decimal.RequireFromString("1.5"),
		GrandTotal: decimal.RequireFromString("31.5"),
		CreatedAt:  time.Date(2026, time.March, 8, 18, 2, 3, 0, time.UTC),
	}

	raw, err := json.Marshal(sale)
	if err != nil {
		t.Fatalf("marshal sale: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		`"grandTotal":"31.50"`, `"subTotal":"30.00"`, `"taxAmount":"1.50"`,
		`"discount":"0.00"`, `"unitPrice":"10.00"`, `"taxRate":"0.05"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	if strings.Count(body, `"grandTotal"`) != 1 {
		t.Fatalf("expected a single grandTotal key, got %s", body)
	}

	var back Sale
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal sale: %v", err)
	}
	if !back.GrandTotal.Equal(sale.GrandTotal) || back.Items[0].Qty != 3 || back.ReceiptNo != sale.ReceiptNo {
		t.Fatalf("sale did not survive a round trip: %+v", back)
	}
}

func TestPreviewJSONKeepsItems(t *testing.T) {
	preview := CheckoutPreview{
		Items:  []SaleItem{{Name: "Tea", UnitPrice: decimal.RequireFromString("4.5"), Qty: 2, LineTotal: decimal.RequireFromString("9")}},
		Totals: Totals{SubTotal: decimal.RequireFromString("9"), GrandTotal: decimal.RequireFromString("9.45")},
	}
	raw, err := json.Marshal(preview)
	if err != nil {
		t.Fatalf("marshal preview: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, `"items":[{`) || !strings.Contains(body, `"lineTotal":"9.00"`) || !strings.Contains(body, `"subTotal":"9.00"`) {
		t.Fatalf("unexpected preview body %s", body)
	}
}
