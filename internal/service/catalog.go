package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req, err := s.normalizeProductRequest(req)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Barcode:      req.Barcode,
		Name:         req.Name,
		Category:     req.Category,
		Price:        req.Price.Round(moneyPlaces),
		Stock:        req.Stock,
		ReorderLevel: domain.DefaultReorderLevel,
		Active:       true,
	}
	if req.ReorderLevel != nil {
		product.ReorderLevel = *req.ReorderLevel
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if errors.Is(err, store.ErrDuplicateBarcode) {
		return domain.Product{}, conflict("Barcode already exists.")
	}
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "create product")
	}

	s.logger.Info("product created", zap.String("barcode", created.Barcode), zap.String("product_id", created.ID), actorField(ctx))
	return *created, nil
}

// UpdateProduct replaces the editable fields of an existing product. Omitted
// reorder level and active flag keep their current values.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	normalized, err := s.normalizeProductRequest(domain.ProductCreateRequest(req))
	if err != nil {
		return domain.Product{}, err
	}

	existing.Barcode = normalized.Barcode
	existing.Name = normalized.Name
	existing.Category = normalized.Category
	existing.Price = normalized.Price.Round(moneyPlaces)
	existing.Stock = normalized.Stock
	if normalized.ReorderLevel != nil {
		existing.ReorderLevel = *normalized.ReorderLevel
	}
	if normalized.Active != nil {
		existing.Active = *normalized.Active
	}
	existing.UpdatedAt = s.now()

	updated, err := s.repo.UpdateProduct(ctx, existing)
	switch {
	case errors.Is(err, store.ErrDuplicateBarcode):
		return domain.Product{}, conflict("Barcode already exists.")
	case errors.Is(err, store.ErrNotFound):
		return domain.Product{}, notFound("Product not found.")
	case err != nil:
		return domain.Product{}, errors.Wrap(err, "update product")
	}

	s.logger.Info("product updated", zap.String("barcode", updated.Barcode), zap.String("product_id", updated.ID), zap.Int("stock", updated.Stock), actorField(ctx))
	return *updated, nil
}

// DeleteProduct removes a product from the catalog. Sales that already sold
// it keep their line snapshots.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidInput("Product id is required.")
	}
	err := s.repo.DeleteProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Product not found.")
	}
	if err != nil {
		return errors.Wrap(err, "delete product")
	}

	s.logger.Info("product deleted", zap.String("product_id", id), actorField(ctx))
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, invalidInput("Product id is required.")
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, notFound("Product not found.")
	}
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "load product")
	}
	return *product, nil
}

// GetProductByBarcode returns the product regardless of its active flag.
func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, invalidInput("Barcode is required.")
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, notFound("Product not found for barcode: %s", barcode)
	}
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "load product by barcode")
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidInput("Query 'q' is required.")
	}
	products, err := s.repo.SearchProducts(ctx, query, store.DefaultSearchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// LowStockProducts lists active products at or below their reorder level.
func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if product.Active && product.Stock <= product.ReorderLevel {
			low = append(low, product)
		}
	}
	return low, nil
}

func (s *Service) normalizeProductRequest(req domain.ProductCreateRequest) (domain.ProductCreateRequest, error) {
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		req.Category = domain.DefaultCategory
	}

	if err := s.validate.Struct(req); err != nil {
		return req, productValidationError(err)
	}
	if req.Price.IsNegative() {
		return req, invalidInput("Price cannot be negative.")
	}
	return req, nil
}

func productValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(err, "validate product")
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "Barcode", "Name":
		if fe.Tag() == "required" {
			return invalidInput("Barcode and Name are required.")
		}
		return invalidInput("%s must be at most %s characters.", fe.Field(), fe.Param())
	case "Category":
		return invalidInput("Category must be at most %s characters.", fe.Param())
	case "Stock":
		return invalidInput("Stock cannot be negative.")
	case "ReorderLevel":
		return invalidInput("Reorder level cannot be negative.")
	default:
		return invalidInput("%s is invalid.", fe.Field())
	}
}
