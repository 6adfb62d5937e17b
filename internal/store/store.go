package store

import (
	"context"
	"errors"
	"time"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrDuplicateBarcode  = errors.New("barcode already exists")
	ErrDuplicateReceipt  = errors.New("receipt number already exists")
	ErrDuplicateUser     = errors.New("username already exists")
)

// DefaultSearchLimit caps SearchProducts when the caller passes no limit.
const DefaultSearchLimit = 50

type ProductStore interface {
	FindActiveByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	// DecrementStock applies stock -= qty only while stock >= qty. It reports
	// 0 affected with a nil error when the product no longer exists and wraps
	// ErrInsufficientStock when the guard rejects the write.
	DecrementStock(ctx context.Context, productID string, qty int, at time.Time) (int64, error)
	IncrementStock(ctx context.Context, productID string, qty int, at time.Time) (int64, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// DeleteProduct removes a product. Sales keep their item snapshots.
	DeleteProduct(ctx context.Context, id string) error
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
}

// SaleStore is append-only. Ranges are half-open [start, end).
type SaleStore interface {
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByReceiptNo(ctx context.Context, receiptNo string) (*domain.Sale, error)
	FindRecentSales(ctx context.Context, limit int) ([]domain.Sale, error)
	FindSalesByDateRange(ctx context.Context, start time.Time, end time.Time) ([]domain.Sale, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	ProductStore
	SaleStore
	UserStore
}

// Transactor is implemented by repositories that can run several writes
// atomically. The Repository handed to fn is bound to the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}
