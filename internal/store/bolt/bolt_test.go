package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
)

var _ store.Repository = (*Store)(nil)
var _ store.Transactor = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pos.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProduct(t *testing.T, s *Store, barcode string, stock int) *domain.Product {
	t.Helper()
	created, err := s.CreateProduct(context.Background(), domain.Product{
		Barcode:      barcode,
		Name:         "Item " + barcode,
		Category:     domain.DefaultCategory,
		Price:        decimal.RequireFromString("10.00"),
		Stock:        stock,
		ReorderLevel: domain.DefaultReorderLevel,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return created
}

func TestWithinTxRollsBackStockOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	product := seedProduct(t, s, "123", 5)

	boom := errors.New("insert failed")
	err := s.WithinTx(ctx, func(tx store.Repository) error {
		if _, err := tx.DecrementStock(ctx, product.ID, 4, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 5 {
		t.Fatalf("expected stock 5 after rollback, got %d", got.Stock)
	}
}

func TestDecrementStockGuard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	product := seedProduct(t, s, "123", 3)

	if _, err := s.DecrementStock(ctx, product.ID, 4, time.Now()); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	affected, err := s.DecrementStock(ctx, "missing", 1, time.Now())
	if err != nil || affected != 0 {
		t.Fatalf("expected 0 affected for missing product, got %d (%v)", affected, err)
	}
}

func TestSalesIndexesAndRanges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	stamps := []time.Time{
		day.Add(-time.Second),
		day,
		day.Add(12 * time.Hour),
		day.Add(24 * time.Hour),
	}
	for i, at := range stamps {
		_, err := s.InsertSale(ctx, domain.Sale{
			ReceiptNo:  "R-" + string(rune('A'+i)),
			Items:      []domain.SaleItem{{ProductID: "p", Barcode: "123", Name: "Item", Qty: 1}},
			GrandTotal: decimal.NewFromInt(int64(i + 1)),
			CreatedAt:  at,
		})
		if err != nil {
			t.Fatalf("insert sale %d: %v", i, err)
		}
	}

	if _, err := s.InsertSale(ctx, domain.Sale{ReceiptNo: "R-A", Items: []domain.SaleItem{{Qty: 1}}}); !errors.Is(err, store.ErrDuplicateReceipt) {
		t.Fatalf("expected duplicate receipt, got %v", err)
	}

	inDay, err := s.FindSalesByDateRange(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(inDay) != 2 || inDay[0].ReceiptNo != "R-C" || inDay[1].ReceiptNo != "R-B" {
		t.Fatalf("unexpected range result: %+v", inDay)
	}

	recent, err := s.FindRecentSales(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ReceiptNo != "R-D" || recent[2].ReceiptNo != "R-B" {
		t.Fatalf("unexpected recent result: %+v", recent)
	}

	byReceipt, err := s.FindSaleByReceiptNo(ctx, "R-C")
	if err != nil {
		t.Fatalf("by receipt: %v", err)
	}
	if !byReceipt.GrandTotal.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected grand total 3, got %s", byReceipt.GrandTotal)
	}
	if _, err := s.FindSaleByID(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateProductMovesBarcodeIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	product := seedProduct(t, s, "old", 1)

	product.Barcode = "new"
	if _, err := s.UpdateProduct(ctx, *product); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.GetProductByBarcode(ctx, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected old barcode to be released, got %v", err)
	}
	if _, err := s.FindActiveByBarcode(ctx, "new"); err != nil {
		t.Fatalf("expected new barcode to resolve, got %v", err)
	}
	seedProduct(t, s, "old", 1)
}

func TestDeleteProductReleasesBarcode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	product := seedProduct(t, s, "gone", 5)

	if err := s.DeleteProduct(ctx, product.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetProductByID(ctx, product.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected product to be gone, got %v", err)
	}
	if affected, err := s.DecrementStock(ctx, product.ID, 1, time.Now()); err != nil || affected != 0 {
		t.Fatalf("expected decrement to affect nothing, got affected=%d err=%v", affected, err)
	}
	if err := s.DeleteProduct(ctx, product.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	seedProduct(t, s, "gone", 1)
}

func TestUsersRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, domain.UserAccount{Username: "Admin", Password: "hash", Role: domain.RoleAdmin, Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "admin", Password: "hash"}); !errors.Is(err, store.ErrDuplicateUser) {
		t.Fatalf("expected duplicate user, got %v", err)
	}
	if err := s.UpdateUserPassword(ctx, "admin", "hash2"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Password != "hash2" || users[0].Role != domain.RoleAdmin {
		t.Fatalf("unexpected users: %+v", users)
	}
}
