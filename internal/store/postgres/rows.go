package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// querier is satisfied by both *sql.DB and *sql.Tx so reads can be shared
// between the repository and a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productSelect = `
	SELECT p.id, p.name, p.brand_id, b.name, p.category_id, c.name, p.company, p.description,
		p.tax_percentage, p.created_at, p.updated_at
	FROM products p
	JOIN brands b ON b.id = p.brand_id
	JOIN categories c ON c.id = p.category_id
`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.BrandID, &p.BrandName, &p.CategoryID, &p.CategoryName,
		&p.Company, &p.Description, &p.TaxPercentage, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func getProduct(ctx context.Context, q querier, id string) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

const batchSelect = `
	SELECT id, seq, product_id, batch_number, expiry_date, purchase_price, sale_price, quantity, created_at, updated_at
	FROM batches
`

func queryBatches(ctx context.Context, q querier, query string, args ...any) ([]domain.Batch, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 8)
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.Seq, &b.ProductID, &b.BatchNumber, &b.ExpiryDate, &b.PurchasePrice,
			&b.SalePrice, &b.Quantity, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		normalizeBatch(&b)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func normalizeBatch(b *domain.Batch) {
	b.ExpiryDate = dateOnly(b.ExpiryDate)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
}

func createBatch(ctx context.Context, q querier, batch domain.Batch) (*domain.Batch, error) {
	if batch.Quantity < 0 || strings.TrimSpace(batch.BatchNumber) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if batch.ID == "" {
		batch.ID = xid.New("bat")
	}
	batch.ExpiryDate = dateOnly(batch.ExpiryDate)

	err := q.QueryRowContext(ctx, `
		INSERT INTO batches (id, product_id, batch_number, expiry_date, purchase_price, sale_price, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING seq, created_at, updated_at
	`, batch.ID, batch.ProductID, batch.BatchNumber, batch.ExpiryDate, batch.PurchasePrice, batch.SalePrice, batch.Quantity).
		Scan(&batch.Seq, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err)
	}
	batch.CreatedAt = batch.CreatedAt.UTC()
	batch.UpdatedAt = batch.UpdatedAt.UTC()
	return &batch, nil
}

const invoiceSelect = `
	SELECT i.id, i.invoice_number, COALESCE(i.customer_id, ''), COALESCE(c.name, ''), i.date,
		i.sub_total, i.discount_percentage, i.discount_amount, i.tax_amount, i.grand_total,
		i.amount_paid, i.change_amount, i.payment_mode, COALESCE(i.idempotency_key, ''),
		i.created_by, i.created_at
	FROM sales_invoices i
	LEFT JOIN customers c ON c.id = i.customer_id
`

func scanInvoice(row rowScanner) (domain.SalesInvoice, error) {
	var inv domain.SalesInvoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &inv.CustomerName, &inv.Date,
		&inv.SubTotal, &inv.DiscountPercentage, &inv.DiscountAmount, &inv.TaxAmount, &inv.GrandTotal,
		&inv.AmountPaid, &inv.ChangeAmount, &inv.PaymentMode, &inv.IdempotencyKey,
		&inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		return domain.SalesInvoice{}, err
	}
	inv.Date = inv.Date.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

// getInvoice loads one invoice with its items. column is a fixed identifier,
// never user input.
func getInvoice(ctx context.Context, q querier, column string, value string, forUpdate bool) (*domain.SalesInvoice, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column %q", column)
	}
	query := invoiceSelect + ` WHERE i.` + column + ` = $1`
	if forUpdate {
		query += ` FOR UPDATE OF i`
	}

	inv, err := scanInvoice(q.QueryRowContext(ctx, query, value))
	if err != nil {
		return nil, notFound(err)
	}
	items, err := saleItems(ctx, q, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return &inv, nil
}

func saleItems(ctx context.Context, q querier, invoiceID string) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, invoice_id, position, COALESCE(product_id, ''), COALESCE(batch_id, ''), item_name,
			quantity, unit_price, discount_percentage, discount_amount, tax_amount, total_amount
		FROM sale_items
		WHERE invoice_id = $1
		ORDER BY position
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Position, &item.ProductID, &item.BatchID, &item.ItemName,
			&item.Quantity, &item.UnitPrice, &item.DiscountPercentage, &item.DiscountAmount, &item.TaxAmount, &item.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const returnSelect = `
	SELECT r.id, r.invoice_id, i.invoice_number, r.date, r.reason, r.refund_amount, r.processed_by
	FROM sales_returns r
	JOIN sales_invoices i ON i.id = r.invoice_id
`

// listReturns reads the headers first and then each return's items, so the
// header cursor is closed before the item queries run on the same handle.
func listReturns(ctx context.Context, q querier, query string, args ...any) ([]domain.SalesReturn, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	returns := make([]domain.SalesReturn, 0, 8)
	for rows.Next() {
		var ret domain.SalesReturn
		if err := rows.Scan(&ret.ID, &ret.InvoiceID, &ret.InvoiceNumber, &ret.Date, &ret.Reason, &ret.RefundAmount, &ret.ProcessedBy); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ret.Date = ret.Date.UTC()
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range returns {
		items, err := returnItems(ctx, q, returns[i].ID)
		if err != nil {
			return nil, err
		}
		returns[i].Items = items
	}
	return returns, nil
}

func returnItems(ctx context.Context, q querier, returnID string) ([]domain.SalesReturnItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, return_id, sale_item_id, COALESCE(batch_id, ''), quantity, unit_refund, total_amount
		FROM sales_return_items
		WHERE return_id = $1
		ORDER BY id
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SalesReturnItem, 0, 4)
	for rows.Next() {
		var item domain.SalesReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.SaleItemID, &item.BatchID, &item.Quantity, &item.UnitRefund, &item.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const purchaseSelect = `
	SELECT p.id, p.supplier_id, s.name, p.invoice_number, p.date, p.sub_total, p.total_discount,
		p.total_tax, p.grand_total, p.note, p.created_by, p.created_at
	FROM purchase_invoices p
	JOIN suppliers s ON s.id = p.supplier_id
`

func scanPurchase(row rowScanner) (domain.PurchaseInvoice, error) {
	var inv domain.PurchaseInvoice
	err := row.Scan(&inv.ID, &inv.SupplierID, &inv.SupplierName, &inv.InvoiceNumber, &inv.Date, &inv.SubTotal,
		&inv.TotalDiscount, &inv.TotalTax, &inv.GrandTotal, &inv.Note, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		return domain.PurchaseInvoice{}, err
	}
	inv.Date = dateOnly(inv.Date)
	inv.CreatedAt = inv.CreatedAt.UTC()
	return inv, nil
}

func purchaseItems(ctx context.Context, q querier, invoiceID string) ([]domain.PurchaseItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pi.id, pi.invoice_id, pi.position, pi.product_id, pi.batch_id, b.batch_number, b.expiry_date,
			pi.quantity, pi.unit_price, b.sale_price, pi.discount_percentage, pi.discount_amount,
			pi.tax_percentage, pi.tax_amount, pi.total_amount
		FROM purchase_items pi
		JOIN batches b ON b.id = pi.batch_id
		WHERE pi.invoice_id = $1
		ORDER BY pi.position
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Position, &item.ProductID, &item.BatchID, &item.BatchNumber,
			&item.ExpiryDate, &item.Quantity, &item.UnitPrice, &item.SalePrice, &item.DiscountPercentage,
			&item.DiscountAmount, &item.TaxPercentage, &item.TaxAmount, &item.TotalAmount); err != nil {
			return nil, err
		}
		item.ExpiryDate = dateOnly(item.ExpiryDate)
		items = append(items, item)
	}
	return items, rows.Err()
}

// timeRange filters a timestamptz column by the half-open range [$1, $2).
// A NULL bound is open.
func timeRange(column string) string {
	return fmt.Sprintf(`($1::timestamptz IS NULL OR %[1]s >= $1::timestamptz) AND ($2::timestamptz IS NULL OR %[1]s < $2::timestamptz)`, column)
}

// dateRange is timeRange for DATE columns, comparing against the UTC day of
// each bound.
func dateRange(column string) string {
	return fmt.Sprintf(`($1::timestamptz IS NULL OR %[1]s >= ($1::timestamptz AT TIME ZONE 'UTC')::date) AND ($2::timestamptz IS NULL OR %[1]s < ($2::timestamptz AT TIME ZONE 'UTC')::date)`, column)
}

func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", store.ErrConflict, constraintName(err))
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return "duplicate"
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
