package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
	"github.com/KrishmiH/supermarket-pos-system/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const productColumns = `id, barcode, name, category, price, stock, reorder_level, active, created_at, updated_at`

const (
	selectActiveByBarcodeSQL = `SELECT ` + productColumns + ` FROM products WHERE barcode = $1 AND active = true`
	selectProductByIDSQL     = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	selectProductByCodeSQL   = `SELECT ` + productColumns + ` FROM products WHERE barcode = $1`
	selectProductsSQL        = `SELECT ` + productColumns + ` FROM products ORDER BY name, barcode`
	searchProductsSQL        = `SELECT ` + productColumns + ` FROM products
		WHERE name ILIKE $1 OR barcode ILIKE $1 OR category ILIKE $1
		ORDER BY name, barcode
		LIMIT $2`
	selectStockSQL     = `SELECT stock FROM products WHERE id = $1`
	decrementStockSQL  = `UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1 AND stock >= $2`
	incrementStockSQL  = `UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`
	insertProductSQL   = `INSERT INTO products (` + productColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	deleteProductSQL   = `DELETE FROM products WHERE id = $1`
	updateProductSQL   = `UPDATE products
		SET barcode = $2, name = $3, category = $4, price = $5, stock = $6, reorder_level = $7, active = $8, updated_at = $9
		WHERE id = $1`
)

const (
	insertSaleSQL = `INSERT INTO sales (id, receipt_no, cashier_name, payment_method, sub_total, tax_rate, tax_amount, discount, grand_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	insertSaleItemSQL = `INSERT INTO sale_items (sale_id, position, product_id, barcode, name, unit_price, qty, line_total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	saleSelect = `SELECT s.id, s.receipt_no, s.cashier_name, s.payment_method, s.sub_total, s.tax_rate,
		s.tax_amount, s.discount, s.grand_total, s.created_at,
		i.product_id, i.barcode, i.name, i.unit_price, i.qty, i.line_total
	FROM sales s
	JOIN sale_items i ON i.sale_id = s.id`
	saleOrder = ` ORDER BY s.created_at DESC, s.id DESC, i.position ASC`

	selectSaleByIDSQL      = saleSelect + ` WHERE s.id = $1` + saleOrder
	selectSaleByReceiptSQL = saleSelect + ` WHERE s.receipt_no = $1` + saleOrder
	selectRecentSalesSQL   = `WITH recent AS (SELECT id FROM sales ORDER BY created_at DESC, id DESC LIMIT $1) ` +
		saleSelect + ` JOIN recent r ON r.id = s.id` + saleOrder
	selectSalesByRangeSQL = saleSelect + ` WHERE s.created_at >= $1 AND s.created_at < $2` + saleOrder
)

const (
	insertUserSQL = `INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)`
	selectUsersSQL = `SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC`
	updateUserPasswordSQL = `UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return errors.Wrap(err, "apply schema")
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func (s *Store) FindActiveByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.getProduct(ctx, selectActiveByBarcodeSQL, barcode)
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, selectProductByIDSQL, id)
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.getProduct(ctx, selectProductByCodeSQL, barcode)
}

func (s *Store) getProduct(ctx context.Context, query string, arg string) (*domain.Product, error) {
	product, err := scanProduct(s.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int, at time.Time) (int64, error) {
	if qty < 1 {
		return 0, store.ErrInvalidRecord
	}

	res, err := s.q.ExecContext(ctx, decrementStockSQL, productID, qty, at.UTC())
	if err != nil {
		return 0, errors.Wrapf(err, "decrement stock for %s", productID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		return affected, nil
	}

	var stock int
	err = s.q.QueryRowContext(ctx, selectStockSQL, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return 0, errors.Wrapf(store.ErrInsufficientStock, "product %s has %d left, %d requested", productID, stock, qty)
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int, at time.Time) (int64, error) {
	if qty < 1 {
		return 0, store.ErrInvalidRecord
	}

	res, err := s.q.ExecContext(ctx, incrementStockSQL, productID, qty, at.UTC())
	if err != nil {
		return 0, errors.Wrapf(err, "increment stock for %s", productID)
	}
	return res.RowsAffected()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Barcode == "" || product.Name == "" || product.Stock < 0 || product.Price.IsNegative() {
		return nil, store.ErrInvalidRecord
	}
	if product.ID == "" {
		product.ID = xid.New()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}

	_, err := s.q.ExecContext(ctx, insertProductSQL,
		product.ID, product.Barcode, product.Name, product.Category, product.Price,
		product.Stock, product.ReorderLevel, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Barcode == "" || product.Name == "" || product.Stock < 0 || product.Price.IsNegative() {
		return nil, store.ErrInvalidRecord
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	res, err := s.q.ExecContext(ctx, updateProductSQL,
		product.ID, product.Barcode, product.Name, product.Category, product.Price,
		product.Stock, product.ReorderLevel, product.Active, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

// DeleteProduct removes the catalog row. sale_items carries its own product
// snapshot and no foreign key, so history survives.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, deleteProductSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, selectProductsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = store.DefaultSearchLimit
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"

	rows, err := s.q.QueryContext(ctx, searchProductsSQL, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ReceiptNo == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidRecord
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}

	err := s.WithinTx(ctx, func(tx store.Repository) error {
		return tx.(*Store).insertSale(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) insertSale(ctx context.Context, sale domain.Sale) error {
	_, err := s.q.ExecContext(ctx, insertSaleSQL,
		sale.ID, sale.ReceiptNo, sale.CashierName, sale.PaymentMethod, sale.SubTotal,
		sale.TaxRate, sale.TaxAmount, sale.Discount, sale.GrandTotal, sale.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateReceipt
		}
		return errors.Wrap(err, "insert sale")
	}

	for i, item := range sale.Items {
		_, err := s.q.ExecContext(ctx, insertSaleItemSQL,
			sale.ID, i, item.ProductID, item.Barcode, item.Name, item.UnitPrice, item.Qty, item.LineTotal)
		if err != nil {
			return errors.Wrapf(err, "insert sale item %d", i)
		}
	}
	return nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findOneSale(ctx, selectSaleByIDSQL, id)
}

func (s *Store) FindSaleByReceiptNo(ctx context.Context, receiptNo string) (*domain.Sale, error) {
	return s.findOneSale(ctx, selectSaleByReceiptSQL, receiptNo)
}

func (s *Store) findOneSale(ctx context.Context, query string, arg string) (*domain.Sale, error) {
	sales, err := s.querySales(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) FindRecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		return []domain.Sale{}, nil
	}
	return s.querySales(ctx, selectRecentSalesSQL, limit)
}

func (s *Store) FindSalesByDateRange(ctx context.Context, start time.Time, end time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, selectSalesByRangeSQL, start.UTC(), end.UTC())
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	for rows.Next() {
		var sale domain.Sale
		var item domain.SaleItem
		if err := rows.Scan(
			&sale.ID, &sale.ReceiptNo, &sale.CashierName, &sale.PaymentMethod, &sale.SubTotal, &sale.TaxRate,
			&sale.TaxAmount, &sale.Discount, &sale.GrandTotal, &sale.CreatedAt,
			&item.ProductID, &item.Barcode, &item.Name, &item.UnitPrice, &item.Qty, &item.LineTotal,
		); err != nil {
			return nil, err
		}
		if n := len(sales); n > 0 && sales[n-1].ID == sale.ID {
			sales[n-1].Items = append(sales[n-1].Items, item)
			continue
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sale.Items = []domain.SaleItem{item}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, insertUserSQL, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateUser
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.q.QueryContext(ctx, selectUsersSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.q.ExecContext(ctx, updateUserPasswordSQL, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Barcode, &p.Name, &p.Category, &p.Price, &p.Stock, &p.ReorderLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(val string) string {
	return likeEscaper.Replace(val)
}
