package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pharmapos/backend/internal/allocation"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/lock"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/phone"
	"pharmapos/backend/internal/pricing"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// SaleManager turns a validated cart into an invoice, its line items and the
// matching batch decrements. It never commits; the caller owns tx.
type SaleManager struct {
	PhoneRegion string
}

func (m *SaleManager) Process(ctx context.Context, tx store.Tx, req domain.SaleRequest, actor domain.Actor, now time.Time) (*domain.SalesInvoice, error) {
	if err := validate("invalid sale", req); err != nil {
		return nil, err
	}

	paymentMode := strings.ToUpper(strings.TrimSpace(req.PaymentMode))
	if paymentMode == "" {
		paymentMode = domain.PaymentModeCash
	}

	customer, err := m.resolveCustomer(ctx, tx, req.CustomerName, req.CustomerPhone)
	if err != nil {
		return nil, err
	}

	number, err := tx.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("next invoice number: %w", err)
	}

	invoice := domain.SalesInvoice{
		ID:                 xid.New("inv"),
		InvoiceNumber:      number,
		Date:               now,
		SubTotal:           req.SubTotal,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     req.DiscountAmount,
		TaxAmount:          req.TaxTotal,
		GrandTotal:         req.GrandTotal,
		AmountPaid:         req.AmountPaid,
		ChangeAmount:       req.ChangeAmount,
		PaymentMode:        paymentMode,
		IdempotencyKey:     strings.TrimSpace(req.IdempotencyKey),
		CreatedBy:          actor.Username,
		CreatedAt:          now,
	}
	if customer != nil {
		invoice.CustomerID = customer.ID
		invoice.CustomerName = customer.Name
	}
	if err := tx.InsertSalesInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("insert invoice %s: %w", number, err)
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	lineTotal := decimal.Zero
	for i, line := range req.Items {
		var lineItems []domain.SaleItem
		if line.IsManual() {
			lineItems = []domain.SaleItem{manualItem(line)}
		} else {
			lineItems, err = m.catalogItems(ctx, tx, i, line)
			if err != nil {
				return nil, err
			}
		}
		if len(lineItems) > 0 {
			lineTotal = lineTotal.Add(lineItems[0].TotalAmount)
		}
		for _, item := range lineItems {
			item.ID = xid.New("sli")
			item.InvoiceID = invoice.ID
			item.Position = len(items) + 1
			if err := tx.InsertSaleItem(ctx, item); err != nil {
				return nil, fmt.Errorf("insert sale item: %w", err)
			}
			items = append(items, item)
		}
	}

	if !req.SubTotal.IsZero() && !req.SubTotal.Equal(lineTotal) {
		logging.Warn("service", "SaleManager.Process", "sub_total differs from sum of line totals", logrus.Fields{
			"invoice_number": number,
			"sub_total":      req.SubTotal.String(),
			"line_total":     lineTotal.String(),
		})
	}

	invoice.Items = items
	return &invoice, nil
}

func (m *SaleManager) resolveCustomer(ctx context.Context, tx store.Tx, name string, rawPhone string) (*domain.Customer, error) {
	name = strings.TrimSpace(name)
	key := phone.Key(rawPhone, m.PhoneRegion)

	switch {
	case key != "":
		customer, err := tx.UpsertCustomerByPhone(ctx, key, name)
		if err != nil {
			return nil, fmt.Errorf("upsert customer: %w", err)
		}
		return customer, nil
	case name != "":
		customer, err := tx.CreateCustomer(ctx, domain.Customer{Name: name})
		if err != nil {
			return nil, fmt.Errorf("create customer: %w", err)
		}
		return customer, nil
	default:
		return nil, nil
	}
}

// manualItem keeps the client's total. Without one it is quantity x price.
func manualItem(line domain.SaleLineRequest) domain.SaleItem {
	total := line.Total
	if total.IsZero() {
		total = pricing.Price(pricing.Input{Quantity: line.Quantity, UnitPrice: line.Price}).TotalAmount
	}
	return domain.SaleItem{
		ItemName:           strings.TrimSpace(line.Name),
		Quantity:           line.Quantity,
		UnitPrice:          line.Price,
		DiscountPercentage: decimal.Zero,
		DiscountAmount:     decimal.Zero,
		TaxAmount:          decimal.Zero,
		TotalAmount:        total,
	}
}

// catalogItems allocates the line across batches. Every split item carries
// the whole line's discount, tax and total; they are not divided by batch.
func (m *SaleManager) catalogItems(ctx context.Context, tx store.Tx, index int, line domain.SaleLineRequest) ([]domain.SaleItem, error) {
	product, err := tx.GetProduct(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("load product %s: %w", line.ProductID, err)
	}

	allocations, err := allocation.Allocate(ctx, tx, product.ID, line.Quantity)
	if err != nil {
		if errors.Is(err, allocation.ErrInvalidQuantity) {
			return nil, invalid("invalid sale", fmt.Sprintf("items[%d].quantity", index), "Must be greater than 0")
		}
		return nil, err
	}

	money := lineMoney(line, product.TaxPercentage)
	items := make([]domain.SaleItem, 0, len(allocations))
	for _, a := range allocations {
		items = append(items, domain.SaleItem{
			ProductID:          product.ID,
			BatchID:            a.BatchID,
			ItemName:           product.Name,
			Quantity:           a.Quantity,
			UnitPrice:          line.Price,
			DiscountPercentage: line.DiscountPercentage,
			DiscountAmount:     money.DiscountAmount,
			TaxAmount:          money.TaxAmount,
			TotalAmount:        money.TotalAmount,
		})
	}
	return items, nil
}

// lineMoney returns the amounts stored on each item of a catalog line. A
// line with a total is taken as sent. Otherwise the full line quantity is
// priced, with the product's tax rate when tax_amount is zero.
func lineMoney(line domain.SaleLineRequest, productTax decimal.Decimal) pricing.Result {
	if !line.Total.IsZero() {
		return pricing.Result{
			DiscountAmount: line.DiscountAmount,
			TaxAmount:      line.TaxAmount,
			TotalAmount:    line.Total,
		}
	}
	in := pricing.Input{
		Quantity:           line.Quantity,
		UnitPrice:          line.Price,
		DiscountPercentage: line.DiscountPercentage,
		DiscountAmount:     line.DiscountAmount,
		TaxAmount:          line.TaxAmount,
	}
	if line.TaxAmount.IsZero() {
		in.TaxPercentage = productTax
	}
	return pricing.Price(in)
}

// CreateSale records a sale atomically. A repeated idempotency key returns
// the invoice stored the first time.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor := actorOrSystem(ctx)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)

	if existing, ok, err := s.findByIdempotency(ctx, req.IdempotencyKey); err != nil {
		return domain.SaleResponse{}, err
	} else if ok {
		return toSaleResponse(existing, true), nil
	}

	release, err := s.locker.Acquire(ctx, stockKeys(req.Items)...)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	defer release()

	var invoice *domain.SalesInvoice
	err = s.inTx(ctx, func(tx store.Tx) error {
		var err error
		invoice, err = s.sales.Process(ctx, tx, req, actor, s.now())
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with the same idempotency key.
			if existing, ok, lookupErr := s.findByIdempotency(ctx, req.IdempotencyKey); lookupErr == nil && ok {
				return toSaleResponse(existing, true), nil
			}
		}
		logFailure("CreateSale", "process sale", map[string]any{"items": len(req.Items)}, err)
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, "sale_create", "sales_invoice", invoice.ID, fmt.Sprintf(
		"number=%s,grand_total=%s,payment=%s,items=%d",
		invoice.InvoiceNumber, invoice.GrandTotal.StringFixed(2), invoice.PaymentMode, len(invoice.Items),
	))
	return toSaleResponse(invoice, false), nil
}

func (s *Service) findByIdempotency(ctx context.Context, key string) (*domain.SalesInvoice, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	existing, err := s.repo.FindSalesInvoiceByIdempotency(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

func (s *Service) GetSalesInvoice(ctx context.Context, id string) (domain.SalesInvoice, error) {
	invoice, err := s.repo.GetSalesInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SalesInvoice{}, err
	}
	return *invoice, nil
}

func toSaleResponse(invoice *domain.SalesInvoice, duplicate bool) domain.SaleResponse {
	return domain.SaleResponse{
		Status:        "success",
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Duplicate:     duplicate,
		Invoice:       *invoice,
	}
}

func stockKeys(lines []domain.SaleLineRequest) []string {
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.IsManual() || line.ProductID == "" {
			continue
		}
		keys = append(keys, lock.StockKey(line.ProductID))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
