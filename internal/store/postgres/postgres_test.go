package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewWithDB(db), mock
}

var batchColumns = []string{"id", "seq", "product_id", "batch_number", "expiry_date", "purchase_price", "sale_price", "quantity", "created_at", "updated_at"}

func TestLockBatchesOrdersByExpiryAndLocksRows(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM batches\s+WHERE product_id = \$1\s+ORDER BY expiry_date, seq\s+FOR UPDATE`).
		WithArgs("prd_para").
		WillReturnRows(sqlmock.NewRows(batchColumns).
			AddRow("bat_a", int64(1), "prd_para", "A-1", time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), "1.20", "2.00", int64(3), now, now).
			AddRow("bat_b", int64(2), "prd_para", "B-1", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), "1.25", nil, int64(5), now, now))
	mock.ExpectCommit()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	batches, err := tx.LockBatches(ctx, "prd_para")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, batches, 2)
	assert.Equal(t, "bat_a", batches[0].ID)
	assert.Equal(t, 3, batches[0].Quantity)
	assert.True(t, batches[0].SalePrice.Valid)
	assert.Equal(t, "2", batches[0].SalePrice.Decimal.String())
	assert.False(t, batches[1].SalePrice.Valid)
	assert.Equal(t, int64(2), batches[1].Seq)
}

func TestNextInvoiceNumberFormatsSequenceValue(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT nextval\('sales_invoice_number_seq'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))
	mock.ExpectRollback()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	number, err := tx.NextInvoiceNumber(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, "INV-000042", number)
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
}

func TestInsertSalesInvoiceMapsUniqueViolationToConflict(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sales_invoices`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "sales_invoices_idempotency_key_key"})
	mock.ExpectRollback()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	err = tx.InsertSalesInvoice(ctx, domain.SalesInvoice{
		ID:             "inv_1",
		InvoiceNumber:  "INV-000001",
		Date:           time.Now().UTC(),
		PaymentMode:    domain.PaymentModeCash,
		IdempotencyKey: "idem-1",
		CreatedAt:      time.Now().UTC(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))
	assert.Contains(t, err.Error(), "sales_invoices_idempotency_key_key")
}

func TestAdjustBatchQuantityMissingBatch(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE batches\s+SET quantity = quantity \+ \$2`).
		WithArgs("bat_missing", -4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	err = tx.AdjustBatchQuantity(ctx, "bat_missing", -4)
	require.NoError(t, tx.Rollback())

	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestGetSalesInvoiceForUpdateLoadsItems(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM sales_invoices i\s+LEFT JOIN customers c ON c.id = i.customer_id\s+WHERE i.id = \$1 FOR UPDATE OF i`).
		WithArgs("inv_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "invoice_number", "customer_id", "customer_name", "date", "sub_total", "discount_percentage",
			"discount_amount", "tax_amount", "grand_total", "amount_paid", "change_amount", "payment_mode",
			"idempotency_key", "created_by", "created_at",
		}).AddRow("inv_1", "INV-000001", "cus_1", "Ayesha", at, "60.00", "0", "0", "0", "60.00", "100.00", "40.00", "CASH", "", "cashier", at))
	mock.ExpectQuery(`FROM sale_items\s+WHERE invoice_id = \$1\s+ORDER BY position`).
		WithArgs("inv_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "invoice_id", "position", "product_id", "batch_id", "item_name", "quantity", "unit_price",
			"discount_percentage", "discount_amount", "tax_amount", "total_amount",
		}).
			AddRow("sli_1", "inv_1", int64(1), "prd_para", "bat_a", "Paracetamol", int64(3), "10.00", "0", "0", "0", "30.00").
			AddRow("sli_2", "inv_1", int64(2), "prd_para", "bat_b", "Paracetamol", int64(3), "10.00", "0", "0", "0", "30.00"))
	mock.ExpectCommit()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	inv, err := tx.GetSalesInvoiceForUpdate(ctx, "inv_1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "INV-000001", inv.InvoiceNumber)
	assert.Equal(t, "Ayesha", inv.CustomerName)
	assert.True(t, inv.GrandTotal.Equal(decimal.NewFromInt(60)))
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "bat_b", inv.Items[1].BatchID)
	assert.Equal(t, 2, inv.Items[1].Position)
}

func TestGetSalesInvoiceNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM sales_invoices i`).
		WithArgs("inv_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetSalesInvoice(context.Background(), "inv_missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestFindSalesInvoiceByEmptyKeySkipsQuery(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.FindSalesInvoiceByIdempotency(context.Background(), "")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDeleteProduct(t *testing.T) {
	t.Run("referenced product is a conflict", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`DELETE FROM products WHERE id = \$1`).
			WithArgs("prd_para").
			WillReturnError(&pgconn.PgError{Code: "23503"})

		err := s.DeleteProduct(context.Background(), "prd_para")
		assert.True(t, errors.Is(err, store.ErrConflict))
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`DELETE FROM products WHERE id = \$1`).
			WithArgs("prd_missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.DeleteProduct(context.Background(), "prd_missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})
}

func TestListProductsEscapesSearchTerm(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM products p\s+JOIN brands b`).
		WithArgs("50%", `%50\%%`, 20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "brand_id", "brand_name", "category_id", "category_name", "company", "description",
			"tax_percentage", "created_at", "updated_at",
		}).AddRow("prd_zinc", "Zinc 50% syrup", "brd_getz", "Getz Pharma", "cat_gastro", "Gastrointestinal", "", "", "5.00", now, now))

	products, err := s.ListProducts(context.Background(), " 50% ", 20)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Getz Pharma", products[0].BrandName)
	assert.True(t, products[0].TaxPercentage.Equal(decimal.NewFromInt(5)))
}

func TestCreateProductUnknownBrandIsInvalid(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO products`).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := s.CreateProduct(context.Background(), domain.Product{Name: "Cetirizine", BrandID: "brd_missing", CategoryID: "cat_x"})
	assert.True(t, errors.Is(err, store.ErrInvalidTransaction))
}

func TestUpsertCustomerByPhoneReturnsStoredRow(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	created := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO customers .*ON CONFLICT \(phone\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "", "+923001234567").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "phone", "address", "created_at"}).
			AddRow("cus_existing", "Ayesha", "+923001234567", "", created))
	mock.ExpectCommit()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	customer, err := tx.UpsertCustomerByPhone(ctx, "+923001234567", "  ")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "cus_existing", customer.ID)
	assert.Equal(t, "Ayesha", customer.Name)
}

func TestInsertPurchaseInvoiceDuplicateNumber(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO purchase_invoices`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "purchase_invoices_number_key"})
	mock.ExpectRollback()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	err = tx.InsertPurchaseInvoice(ctx, domain.PurchaseInvoice{ID: "pur_1", SupplierID: "sup_1", InvoiceNumber: "PI-7", Date: time.Now()})
	require.NoError(t, tx.Rollback())

	assert.True(t, errors.Is(err, store.ErrConflict))
}

func TestReturnedQuantitiesSumsPerSaleItem(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM sales_return_items ri\s+JOIN sales_returns r`).
		WithArgs("inv_1").
		WillReturnRows(sqlmock.NewRows([]string{"sale_item_id", "sum"}).
			AddRow("sli_1", int64(3)).
			AddRow("sli_2", int64(1)))
	mock.ExpectRollback()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	returned, err := tx.ReturnedQuantities(ctx, "inv_1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, map[string]int{"sli_1": 3, "sli_2": 1}, returned)
}

func TestDailyTotalsScansDays(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	mock.ExpectQuery(`GROUP BY day\s+ORDER BY day`).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"day", "sales", "purchases", "returns", "expenses"}).
			AddRow(from, "150.00", "50.00", "20.00", "15.00").
			AddRow(from.AddDate(0, 0, 1), "65.00", "0", "0", "0"))

	records, err := s.DailyTotals(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2026-03-01", records[0].Day)
	assert.True(t, records[0].ReturnsTotal.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "2026-03-02", records[1].Day)
}

func TestListAuditLogsOpenRangePassesNullBounds(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM audit_logs`).
		WithArgs(nil, nil, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_username", "actor_role", "action", "entity_type", "entity_id", "detail", "created_at"}).
			AddRow("audit_1", "admin", "admin", "sale_create", "sales_invoice", "inv_1", "number=INV-000001", at))

	logs, err := s.ListAuditLogs(context.Background(), time.Time{}, time.Time{}, 50)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "sale_create", logs[0].Action)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%%", likePattern(""))
	assert.Equal(t, `%a\_b%`, likePattern("a_b"))
	assert.Equal(t, `%c:\\tmp%`, likePattern(`c:\tmp`))
}
