package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// Tx runs every statement on one database transaction. Row locks taken by
// LockBatches and GetSalesInvoiceForUpdate last until Commit or Rollback.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *Tx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *Tx) LockBatches(ctx context.Context, productID string) ([]domain.Batch, error) {
	batches, err := queryBatches(ctx, t.tx, batchSelect+`
		WHERE product_id = $1
		ORDER BY expiry_date, seq
		FOR UPDATE
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("lock batches: %w", err)
	}
	return batches, nil
}

func (t *Tx) AdjustBatchQuantity(ctx context.Context, batchID string, delta int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE batches
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
	`, batchID, delta)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *Tx) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	return createBatch(ctx, t.tx, batch)
}

// UpsertCustomerByPhone relies on the unique phone index. An empty name
// never overwrites a stored one.
func (t *Tx) UpsertCustomerByPhone(ctx context.Context, phone string, name string) (*domain.Customer, error) {
	if phone == "" {
		return nil, store.ErrInvalidTransaction
	}
	name = strings.TrimSpace(name)

	var c domain.Customer
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, phone, address, created_at)
		VALUES ($1, $2, $3, '', now())
		ON CONFLICT (phone) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END
		RETURNING id, name, phone, address, created_at
	`, xid.New("cus"), name, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (t *Tx) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, phone, address, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), customer.Address).Scan(&customer.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

// NextInvoiceNumber draws from a sequence. Values consumed by a rolled back
// transaction are not reused.
func (t *Tx) NextInvoiceNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := t.tx.QueryRowContext(ctx, `SELECT nextval('sales_invoice_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return store.FormatInvoiceNumber(seq), nil
}

func (t *Tx) InsertSalesInvoice(ctx context.Context, invoice domain.SalesInvoice) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales_invoices (
			id, invoice_number, customer_id, date, sub_total, discount_percentage, discount_amount,
			tax_amount, grand_total, amount_paid, change_amount, payment_mode, idempotency_key,
			created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		invoice.ID, invoice.InvoiceNumber, nullIfEmpty(invoice.CustomerID), invoice.Date,
		invoice.SubTotal, invoice.DiscountPercentage, invoice.DiscountAmount, invoice.TaxAmount,
		invoice.GrandTotal, invoice.AmountPaid, invoice.ChangeAmount, invoice.PaymentMode,
		nullIfEmpty(invoice.IdempotencyKey), invoice.CreatedBy, invoice.CreatedAt,
	)
	return mapWriteError(err)
}

func (t *Tx) InsertSaleItem(ctx context.Context, item domain.SaleItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_items (
			id, invoice_id, position, product_id, batch_id, item_name, quantity, unit_price,
			discount_percentage, discount_amount, tax_amount, total_amount
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		item.ID, item.InvoiceID, item.Position, nullIfEmpty(item.ProductID), nullIfEmpty(item.BatchID),
		item.ItemName, item.Quantity, item.UnitPrice, item.DiscountPercentage, item.DiscountAmount,
		item.TaxAmount, item.TotalAmount,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: sale item references a missing row", store.ErrInvalidTransaction)
	}
	return mapWriteError(err)
}

func (t *Tx) GetSalesInvoiceForUpdate(ctx context.Context, id string) (*domain.SalesInvoice, error) {
	return getInvoice(ctx, t.tx, "id", id, true)
}

func (t *Tx) ReturnedQuantities(ctx context.Context, invoiceID string) (map[string]int, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ri.sale_item_id, SUM(ri.quantity)
		FROM sales_return_items ri
		JOIN sales_returns r ON r.id = ri.return_id
		WHERE r.invoice_id = $1
		GROUP BY ri.sale_item_id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[string]int)
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		returned[id] = qty
	}
	return returned, rows.Err()
}

func (t *Tx) InsertSalesReturn(ctx context.Context, ret domain.SalesReturn) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales_returns (id, invoice_id, date, reason, refund_amount, processed_by)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ret.ID, ret.InvoiceID, ret.Date, ret.Reason, ret.RefundAmount, ret.ProcessedBy)
	if isForeignKeyViolation(err) {
		return store.ErrNotFound
	}
	return mapWriteError(err)
}

func (t *Tx) InsertSalesReturnItem(ctx context.Context, item domain.SalesReturnItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales_return_items (id, return_id, sale_item_id, batch_id, quantity, unit_refund, total_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.ReturnID, item.SaleItemID, nullIfEmpty(item.BatchID), item.Quantity, item.UnitRefund, item.TotalAmount)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown sale item %s", store.ErrInvalidTransaction, item.SaleItemID)
	}
	return mapWriteError(err)
}

func (t *Tx) SetReturnRefundAmount(ctx context.Context, returnID string, amount decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE sales_returns SET refund_amount = $2 WHERE id = $1`, returnID, amount)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *Tx) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, contact_person, phone, address, created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.ContactPerson, &sup.Phone, &sup.Address, &sup.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	return &sup, nil
}

func (t *Tx) InsertPurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO purchase_invoices (
			id, supplier_id, invoice_number, date, sub_total, total_discount, total_tax, grand_total,
			note, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		invoice.ID, invoice.SupplierID, invoice.InvoiceNumber, dateOnly(invoice.Date),
		invoice.SubTotal, invoice.TotalDiscount, invoice.TotalTax, invoice.GrandTotal,
		invoice.Note, invoice.CreatedBy, invoice.CreatedAt,
	)
	switch {
	case isForeignKeyViolation(err):
		return store.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: purchase invoice %s already recorded", store.ErrConflict, invoice.InvoiceNumber)
	default:
		return err
	}
}

func (t *Tx) InsertPurchaseItem(ctx context.Context, item domain.PurchaseItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO purchase_items (
			id, invoice_id, position, product_id, batch_id, quantity, unit_price,
			discount_percentage, discount_amount, tax_percentage, tax_amount, total_amount
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		item.ID, item.InvoiceID, item.Position, item.ProductID, item.BatchID, item.Quantity, item.UnitPrice,
		item.DiscountPercentage, item.DiscountAmount, item.TaxPercentage, item.TaxAmount, item.TotalAmount,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: purchase item references a missing row", store.ErrInvalidTransaction)
	}
	return mapWriteError(err)
}

func (t *Tx) UpdatePurchaseTotals(ctx context.Context, invoice domain.PurchaseInvoice) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE purchase_invoices
		SET sub_total = $2, total_discount = $3, total_tax = $4, grand_total = $5
		WHERE id = $1
	`, invoice.ID, invoice.SubTotal, invoice.TotalDiscount, invoice.TotalTax, invoice.GrandTotal)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
