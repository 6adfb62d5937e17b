package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
)

var _ store.Repository = (*Store)(nil)
var _ store.Transactor = (*Store)(nil)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestDecrementStockAppliesConditionalUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(decrementStockSQL)).
		WithArgs("p1", 3, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := s.DecrementStock(context.Background(), "p1", 3, at)
	if err != nil || affected != 1 {
		t.Fatalf("expected 1 affected, got %d (%v)", affected, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecrementStockDistinguishesShortStockFromMissingProduct(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	// guard rejected, product still there
	mock.ExpectExec(regexp.QuoteMeta(decrementStockSQL)).
		WithArgs("p1", 5, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectStockSQL)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(3))

	affected, err := s.DecrementStock(context.Background(), "p1", 5, at)
	if !errors.Is(err, store.ErrInsufficientStock) || affected != 0 {
		t.Fatalf("expected insufficient stock, got %d (%v)", affected, err)
	}

	// product vanished
	mock.ExpectExec(regexp.QuoteMeta(decrementStockSQL)).
		WithArgs("gone", 1, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectStockSQL)).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}))

	affected, err = s.DecrementStock(context.Background(), "gone", 1, at)
	if err != nil || affected != 0 {
		t.Fatalf("expected 0 affected without error, got %d (%v)", affected, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertSaleWritesHeaderAndItemsInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	createdAt := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	sale := domain.Sale{
		ID:            "sale-1",
		ReceiptNo:     "R-20260402-100000-1234",
		CashierName:   "Cashier",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.SaleItem{
			{ProductID: "p1", Barcode: "123", Name: "Tea", UnitPrice: decimal.RequireFromString("10.00"), Qty: 3, LineTotal: decimal.RequireFromString("30.00")},
			{ProductID: "p2", Barcode: "456", Name: "Milk", UnitPrice: decimal.RequireFromString("2.50"), Qty: 1, LineTotal: decimal.RequireFromString("2.50")},
		},
		SubTotal:   decimal.RequireFromString("32.50"),
		TaxRate:    decimal.RequireFromString("0.05"),
		TaxAmount:  decimal.RequireFromString("1.63"),
		Discount:   decimal.Zero,
		GrandTotal: decimal.RequireFromString("34.13"),
		CreatedAt:  createdAt,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSaleSQL)).
		WithArgs("sale-1", sale.ReceiptNo, "Cashier", "CASH", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSaleItemSQL)).
		WithArgs("sale-1", 0, "p1", "123", "Tea", sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSaleItemSQL)).
		WithArgs("sale-1", 1, "p2", "456", "Milk", sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := s.InsertSale(context.Background(), sale)
	if err != nil {
		t.Fatalf("insert sale: %v", err)
	}
	if created.ReceiptNo != sale.ReceiptNo || len(created.Items) != 2 {
		t.Fatalf("unexpected created sale: %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertSaleMapsUniqueViolationToDuplicateReceipt(t *testing.T) {
	s, mock := newMockStore(t)
	sale := domain.Sale{
		ID:        "sale-2",
		ReceiptNo: "R-dup",
		Items:     []domain.SaleItem{{ProductID: "p1", Qty: 1}},
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSaleSQL)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "sales_receipt_no_key"})
	mock.ExpectRollback()

	if _, err := s.InsertSale(context.Background(), sale); !errors.Is(err, store.ErrDuplicateReceipt) {
		t.Fatalf("expected duplicate receipt, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(decrementStockSQL)).
		WithArgs("p1", 1, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx store.Repository) error {
		if _, err := tx.DecrementStock(context.Background(), "p1", 1, at); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindRecentSalesGroupsItemRows(t *testing.T) {
	s, mock := newMockStore(t)
	newer := time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC)
	older := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "receipt_no", "cashier_name", "payment_method", "sub_total", "tax_rate",
		"tax_amount", "discount", "grand_total", "created_at",
		"product_id", "barcode", "name", "unit_price", "qty", "line_total",
	}
	rows := sqlmock.NewRows(columns).
		AddRow("s2", "R-2", "Amal", "CARD", "12.00", "0.05", "0.60", "0", "12.60", newer, "p1", "123", "Tea", "4.00", 3, "12.00").
		AddRow("s1", "R-1", "Amal", "CASH", "6.50", "0.05", "0.33", "0", "6.83", older, "p1", "123", "Tea", "4.00", 1, "4.00").
		AddRow("s1", "R-1", "Amal", "CASH", "6.50", "0.05", "0.33", "0", "6.83", older, "p2", "456", "Milk", "2.50", 1, "2.50")

	mock.ExpectQuery(regexp.QuoteMeta(selectRecentSalesSQL)).
		WithArgs(2).
		WillReturnRows(rows)

	sales, err := s.FindRecentSales(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(sales))
	}
	if sales[0].ReceiptNo != "R-2" || len(sales[0].Items) != 1 {
		t.Fatalf("unexpected first sale: %+v", sales[0])
	}
	if sales[1].ReceiptNo != "R-1" || len(sales[1].Items) != 2 || sales[1].Items[1].Name != "Milk" {
		t.Fatalf("unexpected second sale: %+v", sales[1])
	}
	if !sales[1].GrandTotal.Equal(decimal.RequireFromString("6.83")) {
		t.Fatalf("expected grand total 6.83, got %s", sales[1].GrandTotal)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindSaleByReceiptNoNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectSaleByReceiptSQL)).
		WithArgs("R-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := s.FindSaleByReceiptNo(context.Background(), "R-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSearchProductsEscapesWildcards(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(searchProductsSQL)).
		WithArgs(`%50\%%`, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "barcode", "name", "category", "price", "stock", "reorder_level", "active", "created_at", "updated_at"}).
			AddRow("p1", "999", "Promo 50% pack", "General", "1.00", 4, 10, true, now, now))

	products, err := s.SearchProducts(context.Background(), "50%", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Promo 50% pack" {
		t.Fatalf("unexpected search result: %+v", products)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateProductMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(insertProductSQL)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "products_barcode_key"})

	_, err := s.CreateProduct(context.Background(), domain.Product{Barcode: "123", Name: "Tea", Price: decimal.RequireFromString("1.00")})
	if !errors.Is(err, store.ErrDuplicateBarcode) {
		t.Fatalf("expected duplicate barcode, got %v", err)
	}
}

func TestDeleteProductReportsMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteProductSQL)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteProductSQL)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteProduct(context.Background(), "p1"); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := s.DeleteProduct(context.Background(), "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSchemaKeepsSaleAmountsUnscaled(t *testing.T) {
	fixedScale := regexp.MustCompile(`^(sub_total|tax_rate|tax_amount|discount|grand_total|line_total)\s+NUMERIC\(`)
	for _, line := range strings.Split(schemaSQL, "\n") {
		if fixedScale.MatchString(strings.TrimSpace(line)) {
			t.Fatalf("sale amount column must not round on insert: %q", strings.TrimSpace(line))
		}
	}
	if !strings.Contains(schemaSQL, "ALTER COLUMN tax_rate TYPE NUMERIC") {
		t.Fatalf("expected existing tax_rate columns to be widened")
	}
}
