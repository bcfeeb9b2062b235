package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// Tx mutates a private copy of the store state. Commit swaps the copy in.
type Tx struct {
	owner *Store
	st    *state
	done  bool
}

func (tx *Tx) Commit() error {
	if tx.done {
		return store.ErrInvalidTransaction
	}
	tx.done = true
	tx.owner.st = tx.st
	tx.owner.mu.Unlock()
	return nil
}

func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.owner.mu.Unlock()
	return nil
}

func (tx *Tx) active() error {
	if tx.done {
		return store.ErrInvalidTransaction
	}
	return nil
}

func (tx *Tx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.st.getProduct(id)
}

func (tx *Tx) LockBatches(_ context.Context, productID string) ([]domain.Batch, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	if _, ok := tx.st.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	return tx.st.productBatches(productID), nil
}

func (tx *Tx) AdjustBatchQuantity(_ context.Context, batchID string, delta int) error {
	if err := tx.active(); err != nil {
		return err
	}
	b, ok := tx.st.batches[batchID]
	if !ok {
		return store.ErrNotFound
	}
	b.Quantity += delta
	b.UpdatedAt = time.Now().UTC()
	tx.st.batches[batchID] = b
	return nil
}

func (tx *Tx) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.st.createBatch(batch)
}

func (tx *Tx) UpsertCustomerByPhone(_ context.Context, phone string, name string) (*domain.Customer, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	if phone == "" {
		return nil, store.ErrInvalidTransaction
	}
	name = strings.TrimSpace(name)

	if id, ok := tx.st.customerByPhone[phone]; ok {
		c := tx.st.customers[id]
		if name != "" && name != c.Name {
			c.Name = name
			tx.st.customers[id] = c
		}
		return &c, nil
	}

	c := domain.Customer{
		ID:        xid.New("cus"),
		Name:      name,
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	}
	tx.st.customers[c.ID] = c
	tx.st.customerByPhone[phone] = c.ID
	return &c, nil
}

func (tx *Tx) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	if customer.Phone != "" {
		if _, exists := tx.st.customerByPhone[customer.Phone]; exists {
			return nil, store.ErrConflict
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	tx.st.customers[customer.ID] = customer
	if customer.Phone != "" {
		tx.st.customerByPhone[customer.Phone] = customer.ID
	}
	return &customer, nil
}

func (tx *Tx) NextInvoiceNumber(_ context.Context) (string, error) {
	if err := tx.active(); err != nil {
		return "", err
	}
	tx.st.invoiceSeq++
	return store.FormatInvoiceNumber(tx.st.invoiceSeq), nil
}

func (tx *Tx) InsertSalesInvoice(_ context.Context, invoice domain.SalesInvoice) error {
	if err := tx.active(); err != nil {
		return err
	}
	if _, exists := tx.st.invoices[invoice.ID]; exists {
		return store.ErrConflict
	}
	if _, exists := tx.st.invoiceByNumber[invoice.InvoiceNumber]; exists {
		return fmt.Errorf("%w: invoice number %s", store.ErrConflict, invoice.InvoiceNumber)
	}
	if invoice.IdempotencyKey != "" {
		if _, exists := tx.st.invoiceByIdem[invoice.IdempotencyKey]; exists {
			return fmt.Errorf("%w: idempotency key", store.ErrConflict)
		}
		tx.st.invoiceByIdem[invoice.IdempotencyKey] = invoice.ID
	}
	invoice.Items = nil
	tx.st.invoices[invoice.ID] = invoice
	tx.st.invoiceByNumber[invoice.InvoiceNumber] = invoice.ID
	return nil
}

func (tx *Tx) InsertSaleItem(_ context.Context, item domain.SaleItem) error {
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.st.invoices[item.InvoiceID]; !ok {
		return store.ErrNotFound
	}
	if item.BatchID != "" {
		if _, ok := tx.st.batches[item.BatchID]; !ok {
			return fmt.Errorf("%w: unknown batch %s", store.ErrInvalidTransaction, item.BatchID)
		}
	}
	tx.st.saleItems[item.ID] = item
	return nil
}

func (tx *Tx) GetSalesInvoiceForUpdate(_ context.Context, id string) (*domain.SalesInvoice, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.st.getInvoice(id)
}

func (tx *Tx) ReturnedQuantities(_ context.Context, invoiceID string) (map[string]int, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, item := range tx.st.returnItems {
		ret, ok := tx.st.returns[item.ReturnID]
		if !ok || ret.InvoiceID != invoiceID {
			continue
		}
		out[item.SaleItemID] += item.Quantity
	}
	return out, nil
}

func (tx *Tx) InsertSalesReturn(_ context.Context, ret domain.SalesReturn) error {
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.st.invoices[ret.InvoiceID]; !ok {
		return store.ErrNotFound
	}
	ret.Items = nil
	tx.st.returns[ret.ID] = ret
	return nil
}

func (tx *Tx) InsertSalesReturnItem(_ context.Context, item domain.SalesReturnItem) error {
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.st.returns[item.ReturnID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := tx.st.saleItems[item.SaleItemID]; !ok {
		return fmt.Errorf("%w: unknown sale item %s", store.ErrInvalidTransaction, item.SaleItemID)
	}
	tx.st.returnItems[item.ID] = item
	return nil
}

func (tx *Tx) SetReturnRefundAmount(_ context.Context, returnID string, amount decimal.Decimal) error {
	if err := tx.active(); err != nil {
		return err
	}
	ret, ok := tx.st.returns[returnID]
	if !ok {
		return store.ErrNotFound
	}
	ret.RefundAmount = amount
	tx.st.returns[returnID] = ret
	return nil
}

func (tx *Tx) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	s, ok := tx.st.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (tx *Tx) InsertPurchaseInvoice(_ context.Context, invoice domain.PurchaseInvoice) error {
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.st.suppliers[invoice.SupplierID]; !ok {
		return store.ErrNotFound
	}
	key := invoice.SupplierID + "/" + strings.ToLower(invoice.InvoiceNumber)
	if _, exists := tx.st.purchaseNumbers[key]; exists {
		return fmt.Errorf("%w: purchase invoice %s already recorded", store.ErrConflict, invoice.InvoiceNumber)
	}
	invoice.Items = nil
	tx.st.purchases[invoice.ID] = invoice
	tx.st.purchaseNumbers[key] = invoice.ID
	return nil
}

func (tx *Tx) InsertPurchaseItem(_ context.Context, item domain.PurchaseItem) error {
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.st.purchases[item.InvoiceID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := tx.st.batches[item.BatchID]; !ok {
		return fmt.Errorf("%w: unknown batch %s", store.ErrInvalidTransaction, item.BatchID)
	}
	tx.st.purchaseItems[item.ID] = item
	return nil
}

func (tx *Tx) UpdatePurchaseTotals(_ context.Context, invoice domain.PurchaseInvoice) error {
	if err := tx.active(); err != nil {
		return err
	}
	existing, ok := tx.st.purchases[invoice.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.SubTotal = invoice.SubTotal
	existing.TotalDiscount = invoice.TotalDiscount
	existing.TotalTax = invoice.TotalTax
	existing.GrandTotal = invoice.GrandTotal
	tx.st.purchases[invoice.ID] = existing
	return nil
}
