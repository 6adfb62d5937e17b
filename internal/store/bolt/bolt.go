package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	bbolt "go.etcd.io/bbolt"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
	"github.com/KrishmiH/supermarket-pos-system/internal/xid"
)

var (
	bucketProducts       = []byte("products")
	bucketProductBarcode = []byte("products_by_barcode")
	bucketSales          = []byte("sales")
	bucketSaleReceipt    = []byte("sales_by_receipt")
	bucketSaleCreated    = []byte("sales_by_created")
	bucketUsers          = []byte("users")
)

// createdKeyLayout sorts lexicographically in time order.
const createdKeyLayout = "20060102T150405.000000000Z"

// Store is a single-file document store. Every document is JSON keyed by id;
// secondary buckets map business keys back to ids.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt file %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketProducts, bucketProductBarcode, bucketSales, bucketSaleReceipt, bucketSaleCreated, bucketUsers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithinTx(_ context.Context, fn func(tx store.Repository) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&txRepo{tx: tx})
	})
}

func (s *Store) view(fn func(r *txRepo) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&txRepo{tx: tx})
	})
}

func (s *Store) update(fn func(r *txRepo) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&txRepo{tx: tx})
	})
}

func (s *Store) FindActiveByBarcode(ctx context.Context, barcode string) (product *domain.Product, err error) {
	err = s.view(func(r *txRepo) error {
		product, err = r.FindActiveByBarcode(ctx, barcode)
		return err
	})
	return product, err
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int, at time.Time) (affected int64, err error) {
	err = s.update(func(r *txRepo) error {
		affected, err = r.DecrementStock(ctx, productID, qty, at)
		return err
	})
	return affected, err
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int, at time.Time) (affected int64, err error) {
	err = s.update(func(r *txRepo) error {
		affected, err = r.IncrementStock(ctx, productID, qty, at)
		return err
	})
	return affected, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (created *domain.Product, err error) {
	err = s.update(func(r *txRepo) error {
		created, err = r.CreateProduct(ctx, product)
		return err
	})
	return created, err
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (updated *domain.Product, err error) {
	err = s.update(func(r *txRepo) error {
		updated, err = r.UpdateProduct(ctx, product)
		return err
	})
	return updated, err
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.update(func(r *txRepo) error {
		return r.DeleteProduct(ctx, id)
	})
}

func (s *Store) GetProductByID(ctx context.Context, id string) (product *domain.Product, err error) {
	err = s.view(func(r *txRepo) error {
		product, err = r.GetProductByID(ctx, id)
		return err
	})
	return product, err
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (product *domain.Product, err error) {
	err = s.view(func(r *txRepo) error {
		product, err = r.GetProductByBarcode(ctx, barcode)
		return err
	})
	return product, err
}

func (s *Store) ListProducts(ctx context.Context) (products []domain.Product, err error) {
	err = s.view(func(r *txRepo) error {
		products, err = r.ListProducts(ctx)
		return err
	})
	return products, err
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) (products []domain.Product, err error) {
	err = s.view(func(r *txRepo) error {
		products, err = r.SearchProducts(ctx, query, limit)
		return err
	})
	return products, err
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (created *domain.Sale, err error) {
	err = s.update(func(r *txRepo) error {
		created, err = r.InsertSale(ctx, sale)
		return err
	})
	return created, err
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (sale *domain.Sale, err error) {
	err = s.view(func(r *txRepo) error {
		sale, err = r.FindSaleByID(ctx, id)
		return err
	})
	return sale, err
}

func (s *Store) FindSaleByReceiptNo(ctx context.Context, receiptNo string) (sale *domain.Sale, err error) {
	err = s.view(func(r *txRepo) error {
		sale, err = r.FindSaleByReceiptNo(ctx, receiptNo)
		return err
	})
	return sale, err
}

func (s *Store) FindRecentSales(ctx context.Context, limit int) (sales []domain.Sale, err error) {
	err = s.view(func(r *txRepo) error {
		sales, err = r.FindRecentSales(ctx, limit)
		return err
	})
	return sales, err
}

func (s *Store) FindSalesByDateRange(ctx context.Context, start time.Time, end time.Time) (sales []domain.Sale, err error) {
	err = s.view(func(r *txRepo) error {
		sales, err = r.FindSalesByDateRange(ctx, start, end)
		return err
	})
	return sales, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	return s.update(func(r *txRepo) error {
		return r.CreateUser(ctx, user)
	})
}

func (s *Store) ListUsers(ctx context.Context) (users []domain.UserAccount, err error) {
	err = s.view(func(r *txRepo) error {
		users, err = r.ListUsers(ctx)
		return err
	})
	return users, err
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return s.update(func(r *txRepo) error {
		return r.UpdateUserPassword(ctx, username, password)
	})
}

// txRepo runs every operation inside one bbolt transaction.
type txRepo struct {
	tx *bbolt.Tx
}

func (r *txRepo) FindActiveByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	product, err := r.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, store.ErrNotFound
	}
	return product, nil
}

func (r *txRepo) DecrementStock(_ context.Context, productID string, qty int, at time.Time) (int64, error) {
	if qty < 1 {
		return 0, store.ErrInvalidRecord
	}

	var product domain.Product
	found, err := getJSON(r.tx.Bucket(bucketProducts), []byte(productID), &product)
	if err != nil || !found {
		return 0, err
	}
	if product.Stock < qty {
		return 0, errors.Wrapf(store.ErrInsufficientStock, "product %s has %d left, %d requested", productID, product.Stock, qty)
	}
	product.Stock -= qty
	product.UpdatedAt = at.UTC()
	if err := putJSON(r.tx.Bucket(bucketProducts), []byte(productID), product); err != nil {
		return 0, err
	}
	return 1, nil
}

func (r *txRepo) IncrementStock(_ context.Context, productID string, qty int, at time.Time) (int64, error) {
	if qty < 1 {
		return 0, store.ErrInvalidRecord
	}

	var product domain.Product
	found, err := getJSON(r.tx.Bucket(bucketProducts), []byte(productID), &product)
	if err != nil || !found {
		return 0, err
	}
	product.Stock += qty
	product.UpdatedAt = at.UTC()
	if err := putJSON(r.tx.Bucket(bucketProducts), []byte(productID), product); err != nil {
		return 0, err
	}
	return 1, nil
}

func (r *txRepo) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Barcode == "" || product.Name == "" || product.Stock < 0 || product.Price.IsNegative() {
		return nil, store.ErrInvalidRecord
	}
	index := r.tx.Bucket(bucketProductBarcode)
	if index.Get([]byte(product.Barcode)) != nil {
		return nil, store.ErrDuplicateBarcode
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

	if err := putJSON(r.tx.Bucket(bucketProducts), []byte(product.ID), product); err != nil {
		return nil, err
	}
	if err := index.Put([]byte(product.Barcode), []byte(product.ID)); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (r *txRepo) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Barcode == "" || product.Name == "" || product.Stock < 0 || product.Price.IsNegative() {
		return nil, store.ErrInvalidRecord
	}

	products := r.tx.Bucket(bucketProducts)
	index := r.tx.Bucket(bucketProductBarcode)

	var existing domain.Product
	found, err := getJSON(products, []byte(product.ID), &existing)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	if owner := index.Get([]byte(product.Barcode)); owner != nil && string(owner) != product.ID {
		return nil, store.ErrDuplicateBarcode
	}
	if existing.Barcode != product.Barcode {
		if err := index.Delete([]byte(existing.Barcode)); err != nil {
			return nil, err
		}
	}
	product.CreatedAt = existing.CreatedAt
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	if err := putJSON(products, []byte(product.ID), product); err != nil {
		return nil, err
	}
	if err := index.Put([]byte(product.Barcode), []byte(product.ID)); err != nil {
		return nil, err
	}
	updated := product
	return &updated, nil
}

// DeleteProduct drops the document and its barcode index entry. Sale items
// keep their own snapshot, so past sales are untouched.
func (r *txRepo) DeleteProduct(_ context.Context, id string) error {
	products := r.tx.Bucket(bucketProducts)

	var existing domain.Product
	found, err := getJSON(products, []byte(id), &existing)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	if err := r.tx.Bucket(bucketProductBarcode).Delete([]byte(existing.Barcode)); err != nil {
		return errors.Wrapf(err, "drop barcode index %s", existing.Barcode)
	}
	return errors.Wrapf(products.Delete([]byte(id)), "delete product %s", id)
}

func (r *txRepo) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	found, err := getJSON(r.tx.Bucket(bucketProducts), []byte(id), &product)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (r *txRepo) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	id := r.tx.Bucket(bucketProductBarcode).Get([]byte(barcode))
	if id == nil {
		return nil, store.ErrNotFound
	}
	return r.GetProductByID(ctx, string(id))
}

func (r *txRepo) ListProducts(_ context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	err := r.tx.Bucket(bucketProducts).ForEach(func(_, v []byte) error {
		var product domain.Product
		if err := json.Unmarshal(v, &product); err != nil {
			return err
		}
		products = append(products, product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(products, compareProducts)
	return products, nil
}

func (r *txRepo) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = store.DefaultSearchLimit
	}
	all, err := r.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	matches := make([]domain.Product, 0, 16)
	for _, product := range all {
		if strings.Contains(strings.ToLower(product.Name), needle) ||
			strings.Contains(strings.ToLower(product.Barcode), needle) ||
			strings.Contains(strings.ToLower(product.Category), needle) {
			matches = append(matches, product)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches, nil
}

func (r *txRepo) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ReceiptNo == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidRecord
	}
	receipts := r.tx.Bucket(bucketSaleReceipt)
	if receipts.Get([]byte(sale.ReceiptNo)) != nil {
		return nil, store.ErrDuplicateReceipt
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	if err := putJSON(r.tx.Bucket(bucketSales), []byte(sale.ID), sale); err != nil {
		return nil, err
	}
	if err := receipts.Put([]byte(sale.ReceiptNo), []byte(sale.ID)); err != nil {
		return nil, err
	}
	if err := r.tx.Bucket(bucketSaleCreated).Put(createdKey(sale.CreatedAt, sale.ID), []byte(sale.ID)); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (r *txRepo) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	found, err := getJSON(r.tx.Bucket(bucketSales), []byte(id), &sale)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (r *txRepo) FindSaleByReceiptNo(ctx context.Context, receiptNo string) (*domain.Sale, error) {
	id := r.tx.Bucket(bucketSaleReceipt).Get([]byte(receiptNo))
	if id == nil {
		return nil, store.ErrNotFound
	}
	return r.FindSaleByID(ctx, string(id))
}

func (r *txRepo) FindRecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, max(limit, 0))
	c := r.tx.Bucket(bucketSaleCreated).Cursor()
	for k, id := c.Last(); k != nil && len(sales) < limit; k, id = c.Prev() {
		sale, err := r.FindSaleByID(ctx, string(id))
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, nil
}

func (r *txRepo) FindSalesByDateRange(ctx context.Context, start time.Time, end time.Time) ([]domain.Sale, error) {
	lower := []byte(start.UTC().Format(createdKeyLayout))
	upper := []byte(end.UTC().Format(createdKeyLayout))

	sales := make([]domain.Sale, 0, 32)
	c := r.tx.Bucket(bucketSaleCreated).Cursor()
	for k, id := c.Seek(lower); k != nil && bytes.Compare(k, upper) < 0; k, id = c.Next() {
		sale, err := r.FindSaleByID(ctx, string(id))
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	slices.Reverse(sales)
	return sales, nil
}

type userDoc struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *txRepo) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	users := r.tx.Bucket(bucketUsers)
	if users.Get([]byte(username)) != nil {
		return store.ErrDuplicateUser
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return putJSON(users, []byte(username), userDoc{
		Username:  username,
		Password:  user.Password,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	})
}

func (r *txRepo) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	err := r.tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
		var doc userDoc
		if err := json.Unmarshal(v, &doc); err != nil {
			return err
		}
		users = append(users, domain.UserAccount{
			Username:  doc.Username,
			Password:  doc.Password,
			Role:      doc.Role,
			Active:    doc.Active,
			CreatedAt: doc.CreatedAt.UTC(),
		})
		return nil
	})
	return users, err
}

func (r *txRepo) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	users := r.tx.Bucket(bucketUsers)
	var doc userDoc
	found, err := getJSON(users, []byte(username), &doc)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	doc.Password = password
	return putJSON(users, []byte(username), doc)
}

func getJSON(b *bbolt.Bucket, key []byte, dest any) (bool, error) {
	raw := b.Get(key)
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, errors.Wrapf(err, "decode document %s", key)
	}
	return true, nil
}

func putJSON(b *bbolt.Bucket, key []byte, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

func createdKey(at time.Time, id string) []byte {
	return []byte(at.UTC().Format(createdKeyLayout) + "/" + id)
}

func compareProducts(a, b domain.Product) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Barcode, b.Barcode)
}
