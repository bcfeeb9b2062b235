package postgres

import (
	"context"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func (s *Store) GetSalesInvoice(ctx context.Context, id string) (*domain.SalesInvoice, error) {
	return getInvoice(ctx, s.db, "id", id, false)
}

func (s *Store) FindSalesInvoiceByIdempotency(ctx context.Context, key string) (*domain.SalesInvoice, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return getInvoice(ctx, s.db, "idempotency_key", key, false)
}

// ListSalesInvoices returns headers only, newest first.
func (s *Store) ListSalesInvoices(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesInvoice, error) {
	rows, err := s.db.QueryContext(ctx, invoiceSelect+`
		WHERE `+timeRange("i.date")+`
		ORDER BY i.date DESC, i.invoice_number DESC
		LIMIT NULLIF($3, 0)
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.SalesInvoice, 0, 32)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *Store) ListSalesReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesReturn, error) {
	return listReturns(ctx, s.db, returnSelect+`
		WHERE `+timeRange("r.date")+`
		ORDER BY r.date DESC
	`, nullTime(from), nullTime(to))
}

func (s *Store) ListReturnsByInvoice(ctx context.Context, invoiceID string) ([]domain.SalesReturn, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales_invoices WHERE id = $1)`, invoiceID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return listReturns(ctx, s.db, returnSelect+`
		WHERE r.invoice_id = $1
		ORDER BY r.date ASC
	`, invoiceID)
}

func (s *Store) GetPurchaseInvoice(ctx context.Context, id string) (*domain.PurchaseInvoice, error) {
	inv, err := scanPurchase(s.db.QueryRowContext(ctx, purchaseSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	items, err := purchaseItems(ctx, s.db, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return &inv, nil
}

func (s *Store) ListPurchaseInvoices(ctx context.Context, from time.Time, to time.Time) ([]domain.PurchaseInvoice, error) {
	rows, err := s.db.QueryContext(ctx, purchaseSelect+`
		WHERE `+dateRange("p.date")+`
		ORDER BY p.date DESC, p.created_at DESC
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.PurchaseInvoice, 0, 16)
	for rows.Next() {
		inv, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
