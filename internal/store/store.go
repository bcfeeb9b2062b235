package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
	ErrBusy               = errors.New("resource busy, retry")
)

// Repository covers reads and single-row writes. Multi-row use cases go
// through a Tx obtained from BeginTx.
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)

	CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	CountProducts(ctx context.Context) (int, error)

	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	ListBatches(ctx context.Context, productID string) ([]domain.Batch, error)
	ListStockedBatches(ctx context.Context, expiringOnOrBefore time.Time) ([]domain.ExpiringBatch, error)
	StockTotals(ctx context.Context) (map[string]int, error)

	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)

	GetSalesInvoice(ctx context.Context, id string) (*domain.SalesInvoice, error)
	FindSalesInvoiceByIdempotency(ctx context.Context, key string) (*domain.SalesInvoice, error)
	ListSalesInvoices(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesInvoice, error)
	ListSalesReturns(ctx context.Context, from time.Time, to time.Time) ([]domain.SalesReturn, error)
	ListReturnsByInvoice(ctx context.Context, invoiceID string) ([]domain.SalesReturn, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetPurchaseInvoice(ctx context.Context, id string) (*domain.PurchaseInvoice, error)
	ListPurchaseInvoices(ctx context.Context, from time.Time, to time.Time) ([]domain.PurchaseInvoice, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)

	// DailyTotals returns one record per day in [from, to) that has activity.
	// NetTotal is left for the caller.
	DailyTotals(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyRecord, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is one all-or-nothing unit of work. Rollback after Commit is a no-op,
// so callers may always defer Rollback.
type Tx interface {
	Commit() error
	Rollback() error

	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// LockBatches returns every batch of the product ordered by expiry date
	// then insertion order, locked until the transaction ends.
	LockBatches(ctx context.Context, productID string) ([]domain.Batch, error)
	AdjustBatchQuantity(ctx context.Context, batchID string, delta int) error
	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)

	// UpsertCustomerByPhone finds the customer owning phone or creates one.
	// A non-empty name different from the stored one replaces it.
	UpsertCustomerByPhone(ctx context.Context, phone string, name string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	NextInvoiceNumber(ctx context.Context) (string, error)
	InsertSalesInvoice(ctx context.Context, invoice domain.SalesInvoice) error
	InsertSaleItem(ctx context.Context, item domain.SaleItem) error
	// GetSalesInvoiceForUpdate loads the invoice with items and locks its row.
	GetSalesInvoiceForUpdate(ctx context.Context, id string) (*domain.SalesInvoice, error)
	ReturnedQuantities(ctx context.Context, invoiceID string) (map[string]int, error)
	InsertSalesReturn(ctx context.Context, ret domain.SalesReturn) error
	InsertSalesReturnItem(ctx context.Context, item domain.SalesReturnItem) error
	SetReturnRefundAmount(ctx context.Context, returnID string, amount decimal.Decimal) error

	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	InsertPurchaseInvoice(ctx context.Context, invoice domain.PurchaseInvoice) error
	InsertPurchaseItem(ctx context.Context, item domain.PurchaseItem) error
	UpdatePurchaseTotals(ctx context.Context, invoice domain.PurchaseInvoice) error
}

// FormatInvoiceNumber renders a sequence value as INV-000042.
func FormatInvoiceNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}
