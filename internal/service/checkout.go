package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
	"github.com/KrishmiH/supermarket-pos-system/internal/xid"
)

const maxReceiptAttempts = 3

type cartLine struct {
	product domain.Product
	qty     int
}

type checkoutInput struct {
	cashierName   string
	paymentMethod string
	discount      decimal.Decimal
	taxRate       decimal.Decimal
	lines         []domain.CartLine
}

// Checkout turns a cart into a persisted sale. Stock decrements and the sale
// insert either all apply or none do.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Sale, error) {
	in, err := s.normalizeCheckout(req)
	if err != nil {
		return domain.Sale{}, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return s.checkout(ctx, in)
	}

	if sale, ok, err := s.replayCheckout(ctx, key); err != nil || ok {
		return sale, err
	}
	reserved, err := s.idem.Reserve(ctx, key, idempotencyTTL)
	if err != nil {
		return domain.Sale{}, errors.Wrap(err, "reserve idempotency key")
	}
	if !reserved {
		if sale, ok, err := s.replayCheckout(ctx, key); err != nil || ok {
			return sale, err
		}
		return domain.Sale{}, newError(ErrCheckoutInProgress, "A checkout with this idempotency key is already in progress.")
	}

	sale, err := s.checkout(ctx, in)
	if err != nil {
		if releaseErr := s.idem.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
		}
		return domain.Sale{}, err
	}
	if err := s.idem.Complete(context.WithoutCancel(ctx), key, sale.ID, idempotencyTTL); err != nil {
		s.logger.Warn("failed to record idempotency key", zap.String("key", key), zap.String("sale_id", sale.ID), zap.Error(err))
	}
	return sale, nil
}

// PreviewCheckout resolves the cart and prices it without writing anything.
func (s *Service) PreviewCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutPreview, error) {
	in, err := s.normalizeCheckout(req)
	if err != nil {
		return domain.CheckoutPreview{}, err
	}
	lines, err := s.resolveCart(ctx, in.lines)
	if err != nil {
		return domain.CheckoutPreview{}, err
	}
	items := saleItems(lines)
	return domain.CheckoutPreview{
		Items:  items,
		Totals: ComputeTotals(items, in.discount, in.taxRate),
	}, nil
}

func (s *Service) normalizeCheckout(req domain.CheckoutRequest) (checkoutInput, error) {
	if len(req.Items) == 0 {
		return checkoutInput{}, invalidInput("Cart is empty.")
	}

	cashier := strings.TrimSpace(req.CashierName)
	if cashier == "" {
		cashier = domain.DefaultCashierName
	}
	method := strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.PaymentCash
	}
	if method != domain.PaymentCash && method != domain.PaymentCard {
		return checkoutInput{}, invalidInput("Payment method must be CASH or CARD.")
	}
	taxRate := s.defaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}

	return checkoutInput{
		cashierName:   cashier,
		paymentMethod: method,
		discount:      req.Discount.Round(moneyPlaces),
		taxRate:       taxRate,
		lines:         req.Items,
	}, nil
}

// resolveCart validates and prices lines in input order. Quantities for a
// product that appears on several lines are checked cumulatively.
func (s *Service) resolveCart(ctx context.Context, lines []domain.CartLine) ([]cartLine, error) {
	resolved := make([]cartLine, 0, len(lines))
	requested := make(map[string]int, len(lines))

	for i, line := range lines {
		barcode := strings.TrimSpace(line.Barcode)
		if barcode == "" {
			return nil, invalidInput("Barcode is required (line %d).", i+1)
		}
		if line.Qty <= 0 {
			return nil, invalidInput("Quantity must be > 0 (line %d).", i+1)
		}

		product, err := s.repo.FindActiveByBarcode(ctx, barcode)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &Error{
				Kind:    ErrNotFound,
				Message: fmt.Sprintf("Product not found for barcode: %s", barcode),
				Barcode: barcode,
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "look up barcode %s", barcode)
		}

		want := requested[product.ID] + line.Qty
		if product.Stock < want {
			return nil, &Error{
				Kind:        ErrInsufficientStock,
				Message:     fmt.Sprintf("Not enough stock for %s. Available: %d", product.Name, product.Stock),
				Barcode:     barcode,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   want,
			}
		}
		requested[product.ID] = want
		resolved = append(resolved, cartLine{product: *product, qty: line.Qty})
	}
	return resolved, nil
}

func saleItems(lines []cartLine) []domain.SaleItem {
	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.SaleItem{
			ProductID: line.product.ID,
			Barcode:   line.product.Barcode,
			Name:      line.product.Name,
			UnitPrice: line.product.Price,
			Qty:       line.qty,
			LineTotal: lineTotal(line.product.Price, line.qty),
		})
	}
	return items
}

func (s *Service) checkout(ctx context.Context, in checkoutInput) (domain.Sale, error) {
	lines, err := s.resolveCart(ctx, in.lines)
	if err != nil {
		return domain.Sale{}, err
	}

	items := saleItems(lines)
	totals := ComputeTotals(items, in.discount, in.taxRate)
	draft := domain.Sale{
		CashierName:   in.cashierName,
		PaymentMethod: in.paymentMethod,
		Items:         items,
		SubTotal:      totals.SubTotal,
		TaxRate:       totals.TaxRate,
		TaxAmount:     totals.TaxAmount,
		Discount:      totals.Discount,
		GrandTotal:    totals.GrandTotal,
	}

	var sale *domain.Sale
	if tx, ok := s.repo.(store.Transactor); ok {
		sale, err = s.commitInTx(ctx, tx, lines, draft)
	} else {
		sale, err = s.commitWithCompensation(ctx, lines, draft)
	}
	if err != nil {
		s.logger.Warn("checkout failed", zap.Error(err), actorField(ctx))
		return domain.Sale{}, err
	}

	s.logger.Info("checkout completed",
		zap.String("receipt_no", sale.ReceiptNo),
		zap.String("sale_id", sale.ID),
		zap.String("grand_total", sale.GrandTotal.StringFixed(moneyPlaces)),
		zap.String("payment_method", sale.PaymentMethod),
		zap.Int("lines", len(sale.Items)),
		actorField(ctx),
	)
	return *sale, nil
}

func (s *Service) stamp(draft domain.Sale) domain.Sale {
	now := s.now()
	draft.ID = xid.New()
	draft.ReceiptNo = s.receipts.Next(now)
	draft.CreatedAt = now
	return draft
}

func (s *Service) commitInTx(ctx context.Context, tx store.Transactor, lines []cartLine, draft domain.Sale) (*domain.Sale, error) {
	for attempt := 1; ; attempt++ {
		sale := s.stamp(draft)
		var created *domain.Sale
		err := tx.WithinTx(ctx, func(r store.Repository) error {
			if err := deductStock(ctx, r, lines, sale.CreatedAt, nil); err != nil {
				return err
			}
			var err error
			created, err = r.InsertSale(ctx, sale)
			return err
		})
		if err == nil {
			return created, nil
		}
		if errors.Is(err, store.ErrDuplicateReceipt) && attempt < maxReceiptAttempts {
			s.logger.Warn("receipt number collision, retrying", zap.String("receipt_no", sale.ReceiptNo), zap.Int("attempt", attempt))
			continue
		}
		return nil, persistError(err)
	}
}

func (s *Service) commitWithCompensation(ctx context.Context, lines []cartLine, draft domain.Sale) (*domain.Sale, error) {
	applied := make([]cartLine, 0, len(lines))
	if err := deductStock(ctx, s.repo, lines, s.now(), &applied); err != nil {
		s.compensate(ctx, applied)
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		sale := s.stamp(draft)
		created, err := s.repo.InsertSale(ctx, sale)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, store.ErrDuplicateReceipt) && attempt < maxReceiptAttempts {
			s.logger.Warn("receipt number collision, retrying", zap.String("receipt_no", sale.ReceiptNo), zap.Int("attempt", attempt))
			continue
		}
		s.compensate(ctx, applied)
		return nil, persistError(err)
	}
}

// deductStock decrements each line in order. Successful lines are appended
// to applied when it is non-nil.
func deductStock(ctx context.Context, products store.ProductStore, lines []cartLine, at time.Time, applied *[]cartLine) error {
	for _, line := range lines {
		affected, err := products.DecrementStock(ctx, line.product.ID, line.qty, at)
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			return &Error{
				Kind:        ErrInsufficientStock,
				Message:     fmt.Sprintf("Not enough stock for %s.", line.product.Name),
				Barcode:     line.product.Barcode,
				ProductName: line.product.Name,
				Requested:   line.qty,
				cause:       err,
			}
		case err != nil:
			return &Error{
				Kind:        ErrStockUpdateFailed,
				Message:     "Stock update failed.",
				Barcode:     line.product.Barcode,
				ProductName: line.product.Name,
				cause:       err,
			}
		case affected == 0:
			return &Error{
				Kind:        ErrStockUpdateFailed,
				Message:     "Stock update failed.",
				Barcode:     line.product.Barcode,
				ProductName: line.product.Name,
			}
		}
		if applied != nil {
			*applied = append(*applied, line)
		}
	}
	return nil
}

// compensate reverses applied decrements, newest first.
func (s *Service) compensate(ctx context.Context, applied []cartLine) {
	ctx = context.WithoutCancel(ctx)
	at := s.now()
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		affected, err := s.repo.IncrementStock(ctx, line.product.ID, line.qty, at)
		if err != nil || affected == 0 {
			s.logger.Error("stock compensation failed",
				zap.String("product_id", line.product.ID),
				zap.String("barcode", line.product.Barcode),
				zap.Int("qty", line.qty),
				zap.Error(err),
			)
		}
	}
}

func persistError(err error) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return errors.Wrap(err, "persist sale")
}

func (s *Service) replayCheckout(ctx context.Context, key string) (domain.Sale, bool, error) {
	entry, found, err := s.idem.Lookup(ctx, key)
	if err != nil {
		return domain.Sale{}, false, errors.Wrap(err, "look up idempotency key")
	}
	if !found {
		return domain.Sale{}, false, nil
	}
	if entry.Pending {
		return domain.Sale{}, false, newError(ErrCheckoutInProgress, "A checkout with this idempotency key is already in progress.")
	}

	sale, err := s.repo.FindSaleByID(ctx, entry.SaleID)
	if err != nil {
		return domain.Sale{}, false, errors.Wrap(err, "load replayed sale")
	}
	s.logger.Info("checkout replayed", zap.String("key", key), zap.String("receipt_no", sale.ReceiptNo))
	return *sale, true, nil
}
