package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
)

const reportDateLayout = "2006-01-02"

// RecentSales returns the newest sales first. Out of range limits fall back to
// the default or are capped at the configured maximum.
func (s *Service) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	sales, err := s.repo.FindRecentSales(ctx, s.recentLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "load recent sales")
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	return sales, nil
}

func (s *Service) recentLimit(limit int) int {
	if limit < 1 {
		limit = defaultRecentSalesLimit
	}
	if limit > s.recentSalesMax {
		limit = s.recentSalesMax
	}
	return limit
}

// TodayRevenue sums grand totals for the current UTC day.
func (s *Service) TodayRevenue(ctx context.Context) (domain.RevenueReport, error) {
	return s.revenueFor(ctx, startOfDay(s.now()))
}

// RevenueForDate sums grand totals for the UTC day named by date (YYYY-MM-DD).
func (s *Service) RevenueForDate(ctx context.Context, date string) (domain.RevenueReport, error) {
	day, err := time.ParseInLocation(reportDateLayout, strings.TrimSpace(date), time.UTC)
	if err != nil {
		return domain.RevenueReport{}, invalidInput("Date must be formatted as YYYY-MM-DD.")
	}
	return s.revenueFor(ctx, day)
}

func (s *Service) revenueFor(ctx context.Context, start time.Time) (domain.RevenueReport, error) {
	end := start.Add(24 * time.Hour)
	sales, err := s.repo.FindSalesByDateRange(ctx, start, end)
	if err != nil {
		return domain.RevenueReport{}, errors.Wrap(err, "load sales for revenue")
	}

	revenue := decimal.Zero
	for _, sale := range sales {
		revenue = revenue.Add(sale.GrandTotal)
	}
	return domain.RevenueReport{
		Date:      start.Format(reportDateLayout),
		SaleCount: len(sales),
		Revenue:   revenue,
	}, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) SaleByReceipt(ctx context.Context, receiptNo string) (domain.Sale, error) {
	receiptNo = strings.TrimSpace(receiptNo)
	if receiptNo == "" {
		return domain.Sale{}, invalidInput("Receipt number is required.")
	}
	sale, err := s.repo.FindSaleByReceiptNo(ctx, receiptNo)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Sale{}, notFound("Receipt not found: %s", receiptNo)
	}
	if err != nil {
		return domain.Sale{}, errors.Wrap(err, "load sale by receipt")
	}
	return *sale, nil
}

func (s *Service) SaleByID(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, invalidInput("Sale id is required.")
	}
	sale, err := s.repo.FindSaleByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Sale{}, notFound("Sale not found.")
	}
	if err != nil {
		return domain.Sale{}, errors.Wrap(err, "load sale")
	}
	return *sale, nil
}

// ExportRecentSalesCSV writes one summary row per recent sale.
func (s *Service) ExportRecentSalesCSV(ctx context.Context, limit int, w io.Writer) error {
	sales, err := s.RecentSales(ctx, limit)
	if err != nil {
		return err
	}

	rows := make([]domain.SaleSummaryRow, 0, len(sales))
	for _, sale := range sales {
		rows = append(rows, domain.SaleSummaryRow{
			ReceiptNo:     sale.ReceiptNo,
			CreatedAt:     sale.CreatedAt.UTC().Format(time.RFC3339),
			CashierName:   sale.CashierName,
			PaymentMethod: sale.PaymentMethod,
			ItemCount:     itemCount(sale.Items),
			SubTotal:      sale.SubTotal.StringFixed(moneyPlaces),
			Discount:      sale.Discount.StringFixed(moneyPlaces),
			TaxAmount:     sale.TaxAmount.StringFixed(moneyPlaces),
			GrandTotal:    sale.GrandTotal.StringFixed(moneyPlaces),
		})
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return errors.Wrap(err, "write sales csv")
	}
	return nil
}

func itemCount(items []domain.SaleItem) int {
	total := 0
	for _, item := range items {
		total += item.Qty
	}
	return total
}
