package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PaymentModeCash   = "CASH"
	PaymentModeCard   = "CARD"
	PaymentModeOnline = "ONLINE"
)

const (
	SaleLineManual  = "manual"
	SaleLineCatalog = "catalog"
)

const DateLayout = "2006-01-02"

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type NamedRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	BrandID       string          `json:"brand_id"`
	BrandName     string          `json:"brand_name"`
	CategoryID    string          `json:"category_id"`
	CategoryName  string          `json:"category_name"`
	Company       string          `json:"company"`
	Description   string          `json:"description"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	BrandID       string          `json:"brand_id" validate:"required"`
	CategoryID    string          `json:"category_id" validate:"required"`
	Company       string          `json:"company" validate:"max=100"`
	Description   string          `json:"description"`
	TaxPercentage decimal.Decimal `json:"tax_percentage" validate:"percent"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	BrandID       *string          `json:"brand_id,omitempty" validate:"omitempty,min=1"`
	CategoryID    *string          `json:"category_id,omitempty" validate:"omitempty,min=1"`
	Company       *string          `json:"company,omitempty" validate:"omitempty,max=100"`
	Description   *string          `json:"description,omitempty"`
	TaxPercentage *decimal.Decimal `json:"tax_percentage,omitempty" validate:"omitempty,percent"`
}

type Batch struct {
	ID            string              `json:"id"`
	Seq           int64               `json:"-"`
	ProductID     string              `json:"product_id"`
	BatchNumber   string              `json:"batch_number"`
	ExpiryDate    time.Time           `json:"expiry_date"`
	PurchasePrice decimal.Decimal     `json:"purchase_price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	Quantity      int                 `json:"quantity"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type BatchCreateRequest struct {
	BatchNumber   string           `json:"batch_number" validate:"required,max=50"`
	ExpiryDate    string           `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	PurchasePrice decimal.Decimal  `json:"purchase_price" validate:"money"`
	SalePrice     *decimal.Decimal `json:"sale_price,omitempty" validate:"omitempty,money"`
	Quantity      int              `json:"quantity" validate:"gte=0"`
}

type CatalogSearchResult struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Brand string          `json:"brand"`
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"price"`
	Tax   decimal.Decimal `json:"tax"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type SalesInvoice struct {
	ID                 string          `json:"id"`
	InvoiceNumber      string          `json:"invoice_number"`
	CustomerID         string          `json:"customer_id,omitempty"`
	CustomerName       string          `json:"customer_name,omitempty"`
	Date               time.Time       `json:"date"`
	SubTotal           decimal.Decimal `json:"sub_total"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	ChangeAmount       decimal.Decimal `json:"change_amount"`
	PaymentMode        string          `json:"payment_mode"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	Items              []SaleItem      `json:"items,omitempty"`
}

type SaleItem struct {
	ID                 string          `json:"id"`
	InvoiceID          string          `json:"invoice_id"`
	Position           int             `json:"position"`
	ProductID          string          `json:"product_id,omitempty"`
	BatchID            string          `json:"batch_id,omitempty"`
	ItemName           string          `json:"item_name"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
}

// SaleRequest is the cart payload submitted by the POS screen. Header totals
// are computed by the client and stored as given.
type SaleRequest struct {
	IdempotencyKey     string            `json:"idempotency_key" validate:"max=120"`
	CustomerName       string            `json:"customer_name" validate:"max=100"`
	CustomerPhone      string            `json:"customer_phone" validate:"max=20"`
	PaymentMode        string            `json:"payment_mode" validate:"omitempty,oneof=CASH CARD ONLINE cash card online"`
	DiscountPercentage decimal.Decimal   `json:"discount_percentage" validate:"percent"`
	DiscountAmount     decimal.Decimal   `json:"discount_amount" validate:"money"`
	SubTotal           decimal.Decimal   `json:"sub_total" validate:"money"`
	TaxTotal           decimal.Decimal   `json:"tax_total" validate:"money"`
	GrandTotal         decimal.Decimal   `json:"grand_total" validate:"money"`
	AmountPaid         decimal.Decimal   `json:"amount_paid" validate:"money"`
	ChangeAmount       decimal.Decimal   `json:"change_amount" validate:"money"`
	Items              []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

// SaleLineRequest is either a manual line (type "manual") or a catalog line
// (type empty or "catalog").
type SaleLineRequest struct {
	Type               string          `json:"type" validate:"omitempty,oneof=manual catalog"`
	Name               string          `json:"name" validate:"required_if=Type manual,max=200"`
	ProductID          string          `json:"product_id" validate:"required_unless=Type manual,excluded_if=Type manual"`
	Quantity           int             `json:"quantity" validate:"gt=0"`
	Price              decimal.Decimal `json:"price" validate:"money"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" validate:"percent"`
	DiscountAmount     decimal.Decimal `json:"discount_amount" validate:"money"`
	TaxAmount          decimal.Decimal `json:"tax_amount" validate:"money"`
	Total              decimal.Decimal `json:"total" validate:"money"`
}

func (l SaleLineRequest) IsManual() bool {
	return l.Type == SaleLineManual
}

type SaleResponse struct {
	Status        string       `json:"status"`
	InvoiceID     string       `json:"invoice_id"`
	InvoiceNumber string       `json:"invoice_number"`
	Duplicate     bool         `json:"duplicate"`
	Invoice       SalesInvoice `json:"invoice"`
}

type SalesReturn struct {
	ID            string            `json:"id"`
	InvoiceID     string            `json:"invoice_id"`
	InvoiceNumber string            `json:"invoice_number"`
	Date          time.Time         `json:"date"`
	Reason        string            `json:"reason"`
	RefundAmount  decimal.Decimal   `json:"refund_amount"`
	ProcessedBy   string            `json:"processed_by"`
	Items         []SalesReturnItem `json:"items,omitempty"`
}

type SalesReturnItem struct {
	ID          string          `json:"id"`
	ReturnID    string          `json:"return_id"`
	SaleItemID  string          `json:"sale_item_id"`
	BatchID     string          `json:"batch_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitRefund  decimal.Decimal `json:"unit_refund"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type ReturnRequest struct {
	Reason string              `json:"reason" validate:"max=500"`
	Items  []ReturnLineRequest `json:"items"`
}

type ReturnLineRequest struct {
	SaleItemID string `json:"sale_item_id"`
	Quantity   int    `json:"quantity"`
}

type Supplier struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	ContactPerson string `json:"contact_person" validate:"max=100"`
	Phone         string `json:"phone" validate:"max=20"`
	Address       string `json:"address"`
}

type PurchaseInvoice struct {
	ID            string          `json:"id"`
	SupplierID    string          `json:"supplier_id"`
	SupplierName  string          `json:"supplier_name"`
	InvoiceNumber string          `json:"invoice_number"`
	Date          time.Time       `json:"date"`
	SubTotal      decimal.Decimal `json:"sub_total"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	Note          string          `json:"note"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []PurchaseItem  `json:"items,omitempty"`
}

type PurchaseItem struct {
	ID                 string              `json:"id"`
	InvoiceID          string              `json:"invoice_id"`
	Position           int                 `json:"position"`
	ProductID          string              `json:"product_id"`
	BatchID            string              `json:"batch_id"`
	BatchNumber        string              `json:"batch_number"`
	ExpiryDate         time.Time           `json:"expiry_date"`
	Quantity           int                 `json:"quantity"`
	UnitPrice          decimal.Decimal     `json:"unit_price"`
	SalePrice          decimal.NullDecimal `json:"sale_price"`
	DiscountPercentage decimal.Decimal     `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal     `json:"discount_amount"`
	TaxPercentage      decimal.Decimal     `json:"tax_percentage"`
	TaxAmount          decimal.Decimal     `json:"tax_amount"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
}

type PurchaseRequest struct {
	SupplierID    string                `json:"supplier_id" validate:"required"`
	InvoiceNumber string                `json:"invoice_number" validate:"required,max=50"`
	Date          string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Note          string                `json:"note"`
	Items         []PurchaseLineRequest `json:"items" validate:"required,min=1,dive"`
}

type PurchaseLineRequest struct {
	ProductID          string           `json:"product_id" validate:"required"`
	BatchNumber        string           `json:"batch_number" validate:"required,max=50"`
	ExpiryDate         string           `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Quantity           int              `json:"quantity" validate:"gt=0"`
	UnitPrice          decimal.Decimal  `json:"unit_price" validate:"money"`
	SalePrice          *decimal.Decimal `json:"sale_price,omitempty" validate:"omitempty,money"`
	DiscountPercentage decimal.Decimal  `json:"discount_percentage" validate:"percent"`
	DiscountAmount     decimal.Decimal  `json:"discount_amount" validate:"money"`
	TaxPercentage      decimal.Decimal  `json:"tax_percentage" validate:"percent"`
	TaxAmount          decimal.Decimal  `json:"tax_amount" validate:"money"`
}

type Expense struct {
	ID        string          `json:"id"`
	Date      time.Time       `json:"date"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Date     string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Category string          `json:"category" validate:"required,max=100"`
	Amount   decimal.Decimal `json:"amount" validate:"positive"`
	Note     string          `json:"note"`
}

type CashSummary struct {
	Date           string          `json:"date"`
	SalesTotal     decimal.Decimal `json:"sales_total"`
	PurchasesTotal decimal.Decimal `json:"purchases_total"`
	ExpensesTotal  decimal.Decimal `json:"expenses_total"`
	NetCash        decimal.Decimal `json:"net_cash"`
	Expenses       []Expense       `json:"expenses"`
}

type DailySalesReport struct {
	Date          string          `json:"date"`
	Sales         []SalesInvoice  `json:"sales"`
	Returns       []SalesReturn   `json:"returns"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	ReturnsTotal  decimal.Decimal `json:"returns_total"`
	NetSales      decimal.Decimal `json:"net_sales"`
}

// DailyRecord and MonthlyRecord are read by the spreadsheet exporter; the
// json names are part of that contract.
type DailyRecord struct {
	Day            string          `json:"day"`
	SalesTotal     decimal.Decimal `json:"sales_total"`
	PurchasesTotal decimal.Decimal `json:"purchases_total"`
	ReturnsTotal   decimal.Decimal `json:"returns_total"`
	ExpensesTotal  decimal.Decimal `json:"expenses_total"`
	NetTotal       decimal.Decimal `json:"net_total"`
}

type MonthlyRecord struct {
	Month          string          `json:"month"`
	SalesTotal     decimal.Decimal `json:"sales_total"`
	PurchasesTotal decimal.Decimal `json:"purchases_total"`
	ReturnsTotal   decimal.Decimal `json:"returns_total"`
	ExpensesTotal  decimal.Decimal `json:"expenses_total"`
	NetTotal       decimal.Decimal `json:"net_total"`
	Days           []DailyRecord   `json:"days"`
}

type ExpiryAlertCounts struct {
	Expired  int `json:"expired"`
	Critical int `json:"critical"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

type ExpiringBatch struct {
	Batch
	ProductName string `json:"product_name"`
}

type ExpiryAlerts struct {
	Date     string            `json:"date"`
	Counts   ExpiryAlertCounts `json:"counts"`
	Expired  []ExpiringBatch   `json:"expired"`
	Critical []ExpiringBatch   `json:"critical"`
	Medium   []ExpiringBatch   `json:"medium"`
	Low      []ExpiringBatch   `json:"low"`
}

type Dashboard struct {
	Date          string             `json:"date"`
	TodaysSales   decimal.Decimal    `json:"todays_sales"`
	LowStock      int                `json:"low_stock"`
	Expired       int                `json:"expired"`
	TotalProducts int                `json:"total_products"`
	RecentSales   []SalesInvoice     `json:"recent_sales"`
	ExpiryCounts  *ExpiryAlertCounts `json:"expiry_counts,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
