package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
	"github.com/KrishmiH/supermarket-pos-system/internal/xid"
)

// Store keeps everything in process memory. It does not implement
// store.Transactor, so checkouts against it rely on compensation.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productByCode   map[string]string
	sales           map[string]domain.Sale
	saleByReceipt   map[string]string
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		productByCode:   make(map[string]string),
		sales:           make(map[string]domain.Sale),
		saleByReceipt:   make(map[string]string),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a small demo catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []struct {
		barcode  string
		name     string
		category string
		price    string
		stock    int
	}{
		{"8901030865278", "Basmati Rice 5kg", "Grocery", "24.90", 40},
		{"8901725133979", "Full Cream Milk 1L", "Dairy", "2.35", 120},
		{"8906002610011", "White Bread Loaf", "Bakery", "1.80", 60},
		{"8901063010109", "Ceylon Black Tea 200g", "Beverages", "4.50", 80},
		{"8901058851831", "Instant Noodles 5-Pack", "Grocery", "3.20", 150},
		{"8901012116367", "Bath Soap 100g", "Household", "0.95", 200},
		{"8902080000111", "Free Range Eggs x10", "Dairy", "3.75", 8},
		{"8901725181123", "Sugar 1kg", "Grocery", "1.60", 90},
	}
	for _, p := range seed {
		id := xid.New()
		s.products[id] = domain.Product{
			ID:           id,
			Barcode:      p.barcode,
			Name:         p.name,
			Category:     p.category,
			Price:        decimal.RequireFromString(p.price),
			Stock:        p.stock,
			ReorderLevel: domain.DefaultReorderLevel,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.productByCode[p.barcode] = id
	}
	return s
}

func (s *Store) FindActiveByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productByCode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	if !product.Active {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) DecrementStock(_ context.Context, productID string, qty int, at time.Time) (int64, error) {
	if qty < 1 {
		return 0, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return 0, nil
	}
	if product.Stock < qty {
		return 0, errors.Wrapf(store.ErrInsufficientStock, "product %s has %d left, %d requested", productID, product.Stock, qty)
	}
	product.Stock -= qty
	product.UpdatedAt = at.UTC()
	s.products[productID] = product
	return 1, nil
}

func (s *Store) IncrementStock(_ context.Context, productID string, qty int, at time.Time) (int64, error) {
	if qty < 1 {
		return 0, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return 0, nil
	}
	product.Stock += qty
	product.UpdatedAt = at.UTC()
	s.products[productID] = product
	return 1, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Barcode == "" || product.Name == "" || product.Stock < 0 || product.Price.IsNegative() {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productByCode[product.Barcode]; exists {
		return nil, store.ErrDuplicateBarcode
	}
	if product.ID == "" {
		product.ID = xid.New()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	s.products[product.ID] = product
	s.productByCode[product.Barcode] = product.ID

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Barcode == "" || product.Name == "" || product.Stock < 0 || product.Price.IsNegative() {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if ownerID, taken := s.productByCode[product.Barcode]; taken && ownerID != product.ID {
		return nil, store.ErrDuplicateBarcode
	}
	if existing.Barcode != product.Barcode {
		delete(s.productByCode, existing.Barcode)
	}
	product.CreatedAt = existing.CreatedAt
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	s.productByCode[product.Barcode] = product.ID

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.productByCode, product.Barcode)
	delete(s.products, id)
	return nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productByCode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		products = append(products, product)
	}
	slices.SortFunc(products, compareProducts)
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = store.DefaultSearchLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Product, 0, 16)
	for _, product := range s.products {
		if strings.Contains(strings.ToLower(product.Name), needle) ||
			strings.Contains(strings.ToLower(product.Barcode), needle) ||
			strings.Contains(strings.ToLower(product.Category), needle) {
			matches = append(matches, product)
		}
	}
	slices.SortFunc(matches, compareProducts)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ReceiptNo == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.saleByReceipt[sale.ReceiptNo]; exists {
		return nil, store.ErrDuplicateReceipt
	}
	if sale.ID == "" {
		sale.ID = xid.New()
	}
	sale.Items = slices.Clone(sale.Items)
	s.sales[sale.ID] = sale
	s.saleByReceipt[sale.ReceiptNo] = sale.ID

	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) FindSaleByReceiptNo(_ context.Context, receiptNo string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.saleByReceipt[receiptNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(s.sales[id])
	return &found, nil
}

func (s *Store) FindRecentSales(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		return []domain.Sale{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, newestFirst)
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) FindSalesByDateRange(_ context.Context, start time.Time, end time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(start) || !sale.CreatedAt.Before(end) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, newestFirst)
	return sales, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicateUser
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func compareProducts(a, b domain.Product) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.Barcode, b.Barcode)
}

func newestFirst(a, b domain.Sale) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}
