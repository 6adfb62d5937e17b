package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleCashier = "Cashier"
)

const (
	PaymentCash = "CASH"
	PaymentCard = "CARD"
)

const (
	DefaultCategory     = "General"
	DefaultReorderLevel = 10
	DefaultCashierName  = "Cashier"
)

type Product struct {
	ID           string          `json:"id"`
	Barcode      string          `json:"barcode"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	ReorderLevel int             `json:"reorderLevel"`
	Active       bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type ProductCreateRequest struct {
	Barcode      string          `json:"barcode" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Category     string          `json:"category" validate:"max=100"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock" validate:"gte=0"`
	ReorderLevel *int            `json:"reorderLevel" validate:"omitempty,gte=0"`
	Active       *bool           `json:"isActive"`
}

// ProductUpdateRequest replaces every editable field, stock included.
type ProductUpdateRequest struct {
	Barcode      string          `json:"barcode" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Category     string          `json:"category" validate:"max=100"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock" validate:"gte=0"`
	ReorderLevel *int            `json:"reorderLevel" validate:"omitempty,gte=0"`
	Active       *bool           `json:"isActive"`
}

// SaleItem is a snapshot of the product at sale time.
type SaleItem struct {
	ProductID string          `json:"productId"`
	Barcode   string          `json:"barcode"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Qty       int             `json:"qty"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Sale struct {
	ID            string          `json:"id"`
	ReceiptNo     string          `json:"receiptNo"`
	CashierName   string          `json:"cashierName"`
	PaymentMethod string          `json:"paymentMethod"`
	Items         []SaleItem      `json:"items"`
	SubTotal      decimal.Decimal `json:"subTotal"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Discount      decimal.Decimal `json:"discount"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type CartLine struct {
	Barcode string `json:"barcode"`
	Qty     int    `json:"qty"`
}

type CheckoutRequest struct {
	CashierName    string           `json:"cashierName,omitempty"`
	PaymentMethod  string           `json:"paymentMethod,omitempty"`
	Discount       decimal.Decimal  `json:"discount"`
	TaxRate        *decimal.Decimal `json:"taxRate,omitempty"`
	Items          []CartLine       `json:"items"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty"`
}

type Totals struct {
	SubTotal   decimal.Decimal `json:"subTotal"`
	Discount   decimal.Decimal `json:"discount"`
	TaxRate    decimal.Decimal `json:"taxRate"`
	TaxAmount  decimal.Decimal `json:"taxAmount"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

type CheckoutPreview struct {
	Items []SaleItem `json:"items"`
	Totals
}

type RevenueReport struct {
	Date      string          `json:"date"`
	SaleCount int             `json:"saleCount"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SaleSummaryRow is the flat shape used for CSV exports.
type SaleSummaryRow struct {
	ReceiptNo     string `csv:"receipt_no"`
	CreatedAt     string `csv:"created_at"`
	CashierName   string `csv:"cashier_name"`
	PaymentMethod string `csv:"payment_method"`
	ItemCount     int    `csv:"item_count"`
	SubTotal      string `csv:"sub_total"`
	Discount      string `csv:"discount"`
	TaxAmount     string `csv:"tax_amount"`
	GrandTotal    string `csv:"grand_total"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleCashier:
		return true
	default:
		return false
	}
}
