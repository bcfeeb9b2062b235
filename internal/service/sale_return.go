package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/lock"
	"pharmapos/backend/internal/pricing"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

var ErrNothingSelected = fmt.Errorf("%w: no items selected for return", store.ErrInvalidTransaction)

// ReturnManager refunds previously sold quantities and puts them back on the
// batch they were sold from. Either every requested line is accepted or
// nothing is written.
type ReturnManager struct{}

type acceptedReturn struct {
	item     domain.SaleItem
	quantity int
}

func (m *ReturnManager) Process(ctx context.Context, tx store.Tx, invoiceID string, req domain.ReturnRequest, actor domain.Actor, now time.Time) (*domain.SalesReturn, error) {
	if err := validate("invalid return", req); err != nil {
		return nil, err
	}

	invoice, err := tx.GetSalesInvoiceForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, err)
	}
	if len(req.Items) == 0 {
		return nil, ErrNothingSelected
	}

	returned, err := tx.ReturnedQuantities(ctx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("returned quantities: %w", err)
	}

	sold := make(map[string]domain.SaleItem, len(invoice.Items))
	for _, item := range invoice.Items {
		sold[item.ID] = item
	}

	fields := make(map[string]string)
	requested := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		id := strings.TrimSpace(line.SaleItemID)
		if _, seen := requested[id]; !seen {
			order = append(order, id)
		}
		requested[id] += line.Quantity
		if line.Quantity <= 0 {
			fields[id] = "Quantity must be greater than 0"
		}
	}

	accepted := make([]acceptedReturn, 0, len(order))
	for _, id := range order {
		if _, failed := fields[id]; failed {
			continue
		}
		item, ok := sold[id]
		if !ok {
			fields[id] = "Item is not part of this invoice"
			continue
		}
		qty := requested[id]
		remaining := item.Quantity - returned[id]
		if qty > remaining {
			fields[id] = fmt.Sprintf("Cannot return %d of %s; only %d remaining", qty, item.ItemName, remaining)
			continue
		}
		accepted = append(accepted, acceptedReturn{item: item, quantity: qty})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Message: "return rejected", Fields: fields}
	}

	ret := domain.SalesReturn{
		ID:            xid.New("ret"),
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Date:          now,
		Reason:        strings.TrimSpace(req.Reason),
		RefundAmount:  decimal.Zero,
		ProcessedBy:   actor.Username,
	}
	if err := tx.InsertSalesReturn(ctx, ret); err != nil {
		return nil, fmt.Errorf("insert return: %w", err)
	}

	total := decimal.Zero
	items := make([]domain.SalesReturnItem, 0, len(accepted))
	for _, a := range accepted {
		unit := pricing.UnitRefund(a.item.TotalAmount, a.item.Quantity)
		lineTotal := unit.Mul(decimal.NewFromInt(int64(a.quantity)))
		item := domain.SalesReturnItem{
			ID:          xid.New("rti"),
			ReturnID:    ret.ID,
			SaleItemID:  a.item.ID,
			BatchID:     a.item.BatchID,
			Quantity:    a.quantity,
			UnitRefund:  unit,
			TotalAmount: lineTotal,
		}
		if err := tx.InsertSalesReturnItem(ctx, item); err != nil {
			return nil, fmt.Errorf("insert return item: %w", err)
		}
		if a.item.BatchID != "" {
			if err := tx.AdjustBatchQuantity(ctx, a.item.BatchID, a.quantity); err != nil {
				return nil, fmt.Errorf("restock batch %s: %w", a.item.BatchID, err)
			}
		}
		total = total.Add(lineTotal)
		items = append(items, item)
	}

	if err := tx.SetReturnRefundAmount(ctx, ret.ID, total); err != nil {
		return nil, fmt.Errorf("set refund amount: %w", err)
	}
	ret.RefundAmount = total
	ret.Items = items
	return &ret, nil
}

// CreateReturn processes a return against invoiceID under a per-invoice lock.
func (s *Service) CreateReturn(ctx context.Context, invoiceID string, req domain.ReturnRequest) (domain.SalesReturn, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.SalesReturn{}, err
	}
	invoiceID = strings.TrimSpace(invoiceID)

	release, err := s.locker.Acquire(ctx, lock.ReturnKey(invoiceID))
	if err != nil {
		return domain.SalesReturn{}, err
	}
	defer release()

	var ret *domain.SalesReturn
	err = s.inTx(ctx, func(tx store.Tx) error {
		var err error
		ret, err = s.returns.Process(ctx, tx, invoiceID, req, actor, s.now())
		return err
	})
	if err != nil {
		logFailure("CreateReturn", "process return", map[string]any{"invoice_id": invoiceID}, err)
		return domain.SalesReturn{}, err
	}

	s.logAudit(ctx, "sale_return", "sales_return", ret.ID, fmt.Sprintf(
		"invoice=%s,refund=%s,items=%d", ret.InvoiceNumber, ret.RefundAmount.StringFixed(2), len(ret.Items),
	))
	return *ret, nil
}

func (s *Service) ListInvoiceReturns(ctx context.Context, invoiceID string) ([]domain.SalesReturn, error) {
	return s.repo.ListReturnsByInvoice(ctx, strings.TrimSpace(invoiceID))
}
