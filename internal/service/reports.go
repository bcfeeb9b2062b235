package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

// maxReportDays bounds a daily records query.
const maxReportDays = 366

func (s *Service) DailySales(ctx context.Context, date string) (domain.DailySalesReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DailySalesReport{}, err
	}
	day, err := s.day(date)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	next := day.AddDate(0, 0, 1)

	sales, err := s.repo.ListSalesInvoices(ctx, day, next, 0)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	returns, err := s.repo.ListSalesReturns(ctx, day, next)
	if err != nil {
		return domain.DailySalesReport{}, err
	}

	report := domain.DailySalesReport{
		Date:          day.Format(domain.DateLayout),
		Sales:         sales,
		Returns:       returns,
		TotalSales:    decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalTax:      decimal.Zero,
		ReturnsTotal:  decimal.Zero,
	}
	for _, inv := range sales {
		report.TotalSales = report.TotalSales.Add(inv.GrandTotal)
		report.TotalDiscount = report.TotalDiscount.Add(inv.DiscountAmount)
		report.TotalTax = report.TotalTax.Add(inv.TaxAmount)
	}
	for _, ret := range returns {
		report.ReturnsTotal = report.ReturnsTotal.Add(ret.RefundAmount)
	}
	report.NetSales = report.TotalSales.Sub(report.ReturnsTotal)
	return report, nil
}

// DailyRecords returns one record per calendar day in [from, to], including
// days with no activity.
func (s *Service) DailyRecords(ctx context.Context, from string, to string) ([]domain.DailyRecord, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	start, err := s.day(from)
	if err != nil {
		return nil, err
	}
	end := start
	if to != "" {
		if end, err = parseDay(to); err != nil {
			return nil, err
		}
	}
	if end.Before(start) {
		return nil, invalid("invalid range", "to", "Must not be before from")
	}
	if end.Sub(start) > maxReportDays*24*time.Hour {
		return nil, invalid("invalid range", "to", fmt.Sprintf("Range must not exceed %d days", maxReportDays))
	}
	return s.dailyRecords(ctx, start, end.AddDate(0, 0, 1))
}

func (s *Service) dailyRecords(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyRecord, error) {
	totals, err := s.repo.DailyTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]domain.DailyRecord, len(totals))
	for _, rec := range totals {
		byDay[rec.Day] = rec
	}

	records := make([]domain.DailyRecord, 0, int(to.Sub(from).Hours()/24))
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(domain.DateLayout)
		rec, ok := byDay[key]
		if !ok {
			rec = domain.DailyRecord{
				Day:            key,
				SalesTotal:     decimal.Zero,
				PurchasesTotal: decimal.Zero,
				ReturnsTotal:   decimal.Zero,
				ExpensesTotal:  decimal.Zero,
			}
		}
		rec.NetTotal = netTotal(rec.SalesTotal, rec.ReturnsTotal, rec.PurchasesTotal, rec.ExpensesTotal)
		records = append(records, rec)
	}
	return records, nil
}

// MonthlyRecords returns twelve records for year, each with its days.
func (s *Service) MonthlyRecords(ctx context.Context, year int) ([]domain.MonthlyRecord, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if year < 2000 || year > 9999 {
		return nil, invalid("invalid year", "year", "Must be a four digit year")
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	days, err := s.dailyRecords(ctx, from, from.AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}

	months := make([]domain.MonthlyRecord, 12)
	for i := range months {
		months[i] = domain.MonthlyRecord{
			Month:          from.AddDate(0, i, 0).Format("2006-01"),
			SalesTotal:     decimal.Zero,
			PurchasesTotal: decimal.Zero,
			ReturnsTotal:   decimal.Zero,
			ExpensesTotal:  decimal.Zero,
			Days:           make([]domain.DailyRecord, 0, 31),
		}
	}
	for _, d := range days {
		parsed, _ := time.Parse(domain.DateLayout, d.Day)
		m := &months[int(parsed.Month())-1]
		m.SalesTotal = m.SalesTotal.Add(d.SalesTotal)
		m.PurchasesTotal = m.PurchasesTotal.Add(d.PurchasesTotal)
		m.ReturnsTotal = m.ReturnsTotal.Add(d.ReturnsTotal)
		m.ExpensesTotal = m.ExpensesTotal.Add(d.ExpensesTotal)
		m.Days = append(m.Days, d)
	}
	for i := range months {
		m := &months[i]
		m.NetTotal = netTotal(m.SalesTotal, m.ReturnsTotal, m.PurchasesTotal, m.ExpensesTotal)
	}
	return months, nil
}

func netTotal(sales, returns, purchases, expenses decimal.Decimal) decimal.Decimal {
	return sales.Sub(returns).Sub(purchases).Sub(expenses)
}
