package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/pricing"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// PurchaseIntake books a supplier invoice: one new batch per line, each line
// priced, and the invoice totals rolled up from the lines.
type PurchaseIntake struct{}

func (p *PurchaseIntake) Process(ctx context.Context, tx store.Tx, req domain.PurchaseRequest, actor domain.Actor, now time.Time) (*domain.PurchaseInvoice, error) {
	if err := validate("invalid purchase", req); err != nil {
		return nil, err
	}

	supplier, err := tx.GetSupplier(ctx, req.SupplierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("invalid purchase", "supplier_id", "Unknown supplier")
		}
		return nil, fmt.Errorf("load supplier: %w", err)
	}

	date := startOfDay(now)
	if strings.TrimSpace(req.Date) != "" {
		if date, err = parseDay(req.Date); err != nil {
			return nil, err
		}
	}

	invoice := domain.PurchaseInvoice{
		ID:            xid.New("pur"),
		SupplierID:    supplier.ID,
		SupplierName:  supplier.Name,
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Date:          date,
		SubTotal:      decimal.Zero,
		TotalDiscount: decimal.Zero,
		TotalTax:      decimal.Zero,
		GrandTotal:    decimal.Zero,
		Note:          strings.TrimSpace(req.Note),
		CreatedBy:     actor.Username,
		CreatedAt:     now,
	}
	if err := tx.InsertPurchaseInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("insert purchase invoice %s: %w", invoice.InvoiceNumber, err)
	}

	items := make([]domain.PurchaseItem, 0, len(req.Items))
	for i, line := range req.Items {
		item, err := p.receive(ctx, tx, invoice.ID, i, line)
		if err != nil {
			return nil, err
		}
		invoice.SubTotal = invoice.SubTotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		invoice.TotalDiscount = invoice.TotalDiscount.Add(item.DiscountAmount)
		invoice.TotalTax = invoice.TotalTax.Add(item.TaxAmount)
		invoice.GrandTotal = invoice.GrandTotal.Add(item.TotalAmount)
		items = append(items, item)
	}

	if err := tx.UpdatePurchaseTotals(ctx, invoice); err != nil {
		return nil, fmt.Errorf("update purchase totals: %w", err)
	}
	invoice.Items = items
	return &invoice, nil
}

func (p *PurchaseIntake) receive(ctx context.Context, tx store.Tx, invoiceID string, index int, line domain.PurchaseLineRequest) (domain.PurchaseItem, error) {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }

	product, err := tx.GetProduct(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PurchaseItem{}, invalid("invalid purchase", field("product_id"), "Unknown product")
		}
		return domain.PurchaseItem{}, fmt.Errorf("load product %s: %w", line.ProductID, err)
	}
	expiry, err := time.Parse(domain.DateLayout, line.ExpiryDate)
	if err != nil {
		return domain.PurchaseItem{}, invalid("invalid purchase", field("expiry_date"), "Must be a date formatted as "+domain.DateLayout)
	}

	var salePrice decimal.NullDecimal
	if line.SalePrice != nil {
		salePrice = decimal.NewNullDecimal(*line.SalePrice)
	}

	batch, err := tx.CreateBatch(ctx, domain.Batch{
		ProductID:     product.ID,
		BatchNumber:   strings.TrimSpace(line.BatchNumber),
		ExpiryDate:    expiry,
		PurchasePrice: line.UnitPrice,
		SalePrice:     salePrice,
		Quantity:      line.Quantity,
	})
	if err != nil {
		return domain.PurchaseItem{}, fmt.Errorf("create batch %s: %w", line.BatchNumber, err)
	}

	res := pricing.Price(pricing.Input{
		Quantity:           line.Quantity,
		UnitPrice:          line.UnitPrice,
		DiscountPercentage: line.DiscountPercentage,
		DiscountAmount:     line.DiscountAmount,
		TaxPercentage:      line.TaxPercentage,
		TaxAmount:          line.TaxAmount,
	})

	item := domain.PurchaseItem{
		ID:                 xid.New("pui"),
		InvoiceID:          invoiceID,
		Position:           index + 1,
		ProductID:          product.ID,
		BatchID:            batch.ID,
		BatchNumber:        batch.BatchNumber,
		ExpiryDate:         batch.ExpiryDate,
		Quantity:           line.Quantity,
		UnitPrice:          line.UnitPrice,
		SalePrice:          salePrice,
		DiscountPercentage: line.DiscountPercentage,
		DiscountAmount:     res.DiscountAmount,
		TaxPercentage:      line.TaxPercentage,
		TaxAmount:          res.TaxAmount,
		TotalAmount:        res.TotalAmount,
	}
	if err := tx.InsertPurchaseItem(ctx, item); err != nil {
		return domain.PurchaseItem{}, fmt.Errorf("insert purchase item: %w", err)
	}
	return item, nil
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseInvoice, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}

	var invoice *domain.PurchaseInvoice
	err = s.inTx(ctx, func(tx store.Tx) error {
		var err error
		invoice, err = s.purchases.Process(ctx, tx, req, actor, s.now())
		return err
	})
	if err != nil {
		logFailure("CreatePurchase", "process purchase", map[string]any{"invoice_number": req.InvoiceNumber}, err)
		return domain.PurchaseInvoice{}, err
	}

	s.logAudit(ctx, "purchase_create", "purchase_invoice", invoice.ID, fmt.Sprintf(
		"supplier=%s,number=%s,grand_total=%s,items=%d",
		invoice.SupplierID, invoice.InvoiceNumber, invoice.GrandTotal.StringFixed(2), len(invoice.Items),
	))
	return *invoice, nil
}

func (s *Service) GetPurchaseInvoice(ctx context.Context, id string) (domain.PurchaseInvoice, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PurchaseInvoice{}, err
	}
	invoice, err := s.repo.GetPurchaseInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}
	return *invoice, nil
}

// ListPurchases returns the purchase invoices dated on day.
func (s *Service) ListPurchases(ctx context.Context, date string) ([]domain.PurchaseInvoice, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	day, err := s.day(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseInvoices(ctx, day, day.AddDate(0, 0, 1))
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate("invalid supplier", req); err != nil {
		return domain.Supplier{}, err
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:          req.Name,
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Phone:         strings.TrimSpace(req.Phone),
		Address:       strings.TrimSpace(req.Address),
		CreatedAt:     s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}
