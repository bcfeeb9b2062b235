package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Expense{}, err
	}
	req.Category = strings.TrimSpace(req.Category)
	if err := validate("invalid expense", req); err != nil {
		return domain.Expense{}, err
	}
	day, err := s.day(req.Date)
	if err != nil {
		return domain.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Date:      day,
		Category:  req.Category,
		Amount:    req.Amount,
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("category=%s,amount=%s", created.Category, created.Amount.StringFixed(2)))
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, date string) ([]domain.Expense, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	day, err := s.day(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, day, day.AddDate(0, 0, 1))
}

// CashSummary nets the day's sales against what went out for purchases and
// expenses. Returns are not part of the cash view.
func (s *Service) CashSummary(ctx context.Context, date string) (domain.CashSummary, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CashSummary{}, err
	}
	day, err := s.day(date)
	if err != nil {
		return domain.CashSummary{}, err
	}
	next := day.AddDate(0, 0, 1)

	totals, err := s.repo.DailyTotals(ctx, day, next)
	if err != nil {
		return domain.CashSummary{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, day, next)
	if err != nil {
		return domain.CashSummary{}, err
	}

	summary := domain.CashSummary{
		Date:           day.Format(domain.DateLayout),
		SalesTotal:     decimal.Zero,
		PurchasesTotal: decimal.Zero,
		ExpensesTotal:  decimal.Zero,
		Expenses:       expenses,
	}
	for _, rec := range totals {
		summary.SalesTotal = summary.SalesTotal.Add(rec.SalesTotal)
		summary.PurchasesTotal = summary.PurchasesTotal.Add(rec.PurchasesTotal)
		summary.ExpensesTotal = summary.ExpensesTotal.Add(rec.ExpensesTotal)
	}
	summary.NetCash = summary.SalesTotal.Sub(summary.PurchasesTotal.Add(summary.ExpensesTotal))
	return summary, nil
}
