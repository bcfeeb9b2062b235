package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

const recentSalesLimit = 5

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	actor := actorOrSystem(ctx)
	today := startOfDay(s.now())
	tomorrow := today.AddDate(0, 0, 1)

	todays, err := s.repo.ListSalesInvoices(ctx, today, tomorrow, 0)
	if err != nil {
		return domain.Dashboard{}, err
	}
	salesTotal := decimal.Zero
	for _, inv := range todays {
		salesTotal = salesTotal.Add(inv.GrandTotal)
	}

	stock, err := s.repo.StockTotals(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}
	lowStock := 0
	for _, qty := range stock {
		if qty < s.opts.LowStockThreshold {
			lowStock++
		}
	}

	productCount, err := s.repo.CountProducts(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	recent, err := s.repo.ListSalesInvoices(ctx, time.Time{}, time.Time{}, recentSalesLimit)
	if err != nil {
		return domain.Dashboard{}, err
	}

	counts, err := s.ExpiryAlertCounts(ctx, today)
	if err != nil {
		return domain.Dashboard{}, err
	}

	dash := domain.Dashboard{
		Date:          today.Format(domain.DateLayout),
		TodaysSales:   salesTotal,
		LowStock:      lowStock,
		Expired:       counts.Expired,
		TotalProducts: productCount,
		RecentSales:   recent,
	}
	if actor.IsStaff() {
		dash.ExpiryCounts = &counts
	}
	return dash, nil
}
