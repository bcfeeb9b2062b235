package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*Tx)(nil)
)

type state struct {
	brands          map[string]domain.Brand
	categories      map[string]domain.Category
	products        map[string]domain.Product
	batches         map[string]domain.Batch
	batchSeq        int64
	customers       map[string]domain.Customer
	customerByPhone map[string]string
	invoices        map[string]domain.SalesInvoice
	invoiceByNumber map[string]string
	invoiceByIdem   map[string]string
	invoiceSeq      int64
	saleItems       map[string]domain.SaleItem
	returns         map[string]domain.SalesReturn
	returnItems     map[string]domain.SalesReturnItem
	suppliers       map[string]domain.Supplier
	purchases       map[string]domain.PurchaseInvoice
	purchaseNumbers map[string]string
	purchaseItems   map[string]domain.PurchaseItem
	expenses        map[string]domain.Expense
	auditLogs       []domain.AuditLog
	users           map[string]domain.UserAccount
}

func newState() *state {
	return &state{
		brands:          make(map[string]domain.Brand),
		categories:      make(map[string]domain.Category),
		products:        make(map[string]domain.Product),
		batches:         make(map[string]domain.Batch),
		customers:       make(map[string]domain.Customer),
		customerByPhone: make(map[string]string),
		invoices:        make(map[string]domain.SalesInvoice),
		invoiceByNumber: make(map[string]string),
		invoiceByIdem:   make(map[string]string),
		saleItems:       make(map[string]domain.SaleItem),
		returns:         make(map[string]domain.SalesReturn),
		returnItems:     make(map[string]domain.SalesReturnItem),
		suppliers:       make(map[string]domain.Supplier),
		purchases:       make(map[string]domain.PurchaseInvoice),
		purchaseNumbers: make(map[string]string),
		purchaseItems:   make(map[string]domain.PurchaseItem),
		expenses:        make(map[string]domain.Expense),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		users:           make(map[string]domain.UserAccount),
	}
}

// clone copies every table. Stored values hold no shared mutable slices, so
// copying the maps is enough for snapshot isolation.
func (st *state) clone() *state {
	return &state{
		brands:          maps.Clone(st.brands),
		categories:      maps.Clone(st.categories),
		products:        maps.Clone(st.products),
		batches:         maps.Clone(st.batches),
		batchSeq:        st.batchSeq,
		customers:       maps.Clone(st.customers),
		customerByPhone: maps.Clone(st.customerByPhone),
		invoices:        maps.Clone(st.invoices),
		invoiceByNumber: maps.Clone(st.invoiceByNumber),
		invoiceByIdem:   maps.Clone(st.invoiceByIdem),
		invoiceSeq:      st.invoiceSeq,
		saleItems:       maps.Clone(st.saleItems),
		returns:         maps.Clone(st.returns),
		returnItems:     maps.Clone(st.returnItems),
		suppliers:       maps.Clone(st.suppliers),
		purchases:       maps.Clone(st.purchases),
		purchaseNumbers: maps.Clone(st.purchaseNumbers),
		purchaseItems:   maps.Clone(st.purchaseItems),
		expenses:        maps.Clone(st.expenses),
		auditLogs:       slices.Clone(st.auditLogs),
		users:           maps.Clone(st.users),
	}
}

// Store keeps everything in process memory. A transaction holds the write
// lock from BeginTx until Commit or Rollback and works on a private copy.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logging.Warn("memory", "seedUsers", "using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override", nil)
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logging.Logger().Fatalf("hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, a small formulary and stock.
func NewSeeded() *Store {
	s := New()
	st := s.st
	st.users = seedUsers()

	now := time.Now().UTC()
	today := dateOnly(now)

	for _, b := range []domain.Brand{
		{ID: "brd_gsk", Name: "GSK"},
		{ID: "brd_abbott", Name: "Abbott"},
		{ID: "brd_getz", Name: "Getz Pharma"},
	} {
		st.brands[b.ID] = b
	}
	for _, c := range []domain.Category{
		{ID: "cat_analgesic", Name: "Analgesic"},
		{ID: "cat_antibiotic", Name: "Antibiotic"},
		{ID: "cat_gastro", Name: "Gastrointestinal"},
	} {
		st.categories[c.ID] = c
	}

	products := []domain.Product{
		{ID: "prd_paracetamol", Name: "Paracetamol 500mg", BrandID: "brd_gsk", CategoryID: "cat_analgesic", Company: "GSK Pakistan", TaxPercentage: decimal.Zero},
		{ID: "prd_ibuprofen", Name: "Ibuprofen 400mg", BrandID: "brd_abbott", CategoryID: "cat_analgesic", Company: "Abbott Laboratories", TaxPercentage: decimal.NewFromInt(5)},
		{ID: "prd_amoxiclav", Name: "Amoxicillin/Clavulanate 625mg", BrandID: "brd_gsk", CategoryID: "cat_antibiotic", Company: "GSK Pakistan", TaxPercentage: decimal.Zero},
		{ID: "prd_omeprazole", Name: "Omeprazole 20mg", BrandID: "brd_getz", CategoryID: "cat_gastro", Company: "Getz Pharma", TaxPercentage: decimal.NewFromInt(17)},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		st.products[p.ID] = p
	}

	seedBatch := func(id string, productID string, number string, days int, purchase string, sale string, qty int) {
		st.batchSeq++
		st.batches[id] = domain.Batch{
			ID:            id,
			Seq:           st.batchSeq,
			ProductID:     productID,
			BatchNumber:   number,
			ExpiryDate:    today.AddDate(0, 0, days),
			PurchasePrice: decimal.RequireFromString(purchase),
			SalePrice:     decimal.NewNullDecimal(decimal.RequireFromString(sale)),
			Quantity:      qty,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	seedBatch("bat_para_a", "prd_paracetamol", "PCM-2401", 30, "1.20", "2.00", 200)
	seedBatch("bat_para_b", "prd_paracetamol", "PCM-2407", 240, "1.25", "2.00", 400)
	seedBatch("bat_ibu_a", "prd_ibuprofen", "IBU-2311", -5, "3.10", "5.50", 12)
	seedBatch("bat_ibu_b", "prd_ibuprofen", "IBU-2402", 120, "3.20", "5.50", 80)
	seedBatch("bat_amox_a", "prd_amoxiclav", "AMX-2403", 60, "18.00", "26.50", 6)
	seedBatch("bat_omep_a", "prd_omeprazole", "OMZ-2312", 150, "6.40", "9.90", 150)

	st.suppliers["sup_medline"] = domain.Supplier{
		ID:            "sup_medline",
		Name:          "Medline Distributors",
		ContactPerson: "Front Desk",
		Phone:         "+924235761234",
		CreatedAt:     now,
	}

	return s
}

func (s *Store) BeginTx(_ context.Context) (store.Tx, error) {
	s.mu.Lock()
	return &Tx{owner: s, st: s.st.clone()}, nil
}

func (s *Store) read() (*state, func()) {
	s.mu.RLock()
	return s.st, s.mu.RUnlock
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) CreateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	if strings.TrimSpace(brand.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if brand.ID == "" {
		brand.ID = xid.New("brd")
	}
	err := s.write(func(st *state) error {
		for _, existing := range st.brands {
			if strings.EqualFold(existing.Name, brand.Name) {
				return store.ErrConflict
			}
		}
		st.brands[brand.ID] = brand
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &brand, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	st, done := s.read()
	defer done()
	out := slices.Collect(maps.Values(st.brands))
	slices.SortFunc(out, func(a, b domain.Brand) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	err := s.write(func(st *state) error {
		for _, existing := range st.categories {
			if strings.EqualFold(existing.Name, category.Name) {
				return store.ErrConflict
			}
		}
		st.categories[category.ID] = category
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	st, done := s.read()
	defer done()
	out := slices.Collect(maps.Values(st.categories))
	slices.SortFunc(out, func(a, b domain.Category) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	var created domain.Product
	err := s.write(func(st *state) error {
		if err := st.checkProductRefs(product); err != nil {
			return err
		}
		if _, exists := st.products[product.ID]; exists {
			return store.ErrConflict
		}
		st.products[product.ID] = product
		created = st.decorate(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	var updated domain.Product
	err := s.write(func(st *state) error {
		existing, ok := st.products[product.ID]
		if !ok {
			return store.ErrNotFound
		}
		if err := st.checkProductRefs(product); err != nil {
			return err
		}
		product.CreatedAt = existing.CreatedAt
		product.UpdatedAt = time.Now().UTC()
		st.products[product.ID] = product
		updated = st.decorate(product)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	return s.write(func(st *state) error {
		if _, ok := st.products[id]; !ok {
			return store.ErrNotFound
		}
		for _, b := range st.batches {
			if b.ProductID == id {
				return fmt.Errorf("%w: product has batches", store.ErrConflict)
			}
		}
		for _, item := range st.saleItems {
			if item.ProductID == id {
				return fmt.Errorf("%w: product has sales", store.ErrConflict)
			}
		}
		delete(st.products, id)
		return nil
	})
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	st, done := s.read()
	defer done()
	return st.getProduct(id)
}

func (s *Store) ListProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	st, done := s.read()
	defer done()

	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		p = st.decorate(p)
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.BrandName), query) &&
			!strings.Contains(strings.ToLower(p.CategoryName), query) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountProducts(_ context.Context) (int, error) {
	st, done := s.read()
	defer done()
	return len(st.products), nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	var created domain.Batch
	err := s.write(func(st *state) error {
		b, err := st.createBatch(batch)
		if err != nil {
			return err
		}
		created = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) ListBatches(_ context.Context, productID string) ([]domain.Batch, error) {
	st, done := s.read()
	defer done()
	if _, ok := st.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	return st.productBatches(productID), nil
}

func (s *Store) ListStockedBatches(_ context.Context, expiringOnOrBefore time.Time) ([]domain.ExpiringBatch, error) {
	st, done := s.read()
	defer done()

	limit := dateOnly(expiringOnOrBefore)
	out := make([]domain.ExpiringBatch, 0, 32)
	for _, b := range st.batches {
		if b.Quantity <= 0 || b.ExpiryDate.After(limit) {
			continue
		}
		out = append(out, domain.ExpiringBatch{Batch: b, ProductName: st.products[b.ProductID].Name})
	}
	slices.SortFunc(out, func(a, b domain.ExpiringBatch) int { return compareBatch(a.Batch, b.Batch) })
	return out, nil
}

func (s *Store) StockTotals(_ context.Context) (map[string]int, error) {
	st, done := s.read()
	defer done()
	totals := make(map[string]int, len(st.products))
	for id := range st.products {
		totals[id] = 0
	}
	for _, b := range st.batches {
		totals[b.ProductID] += b.Quantity
	}
	return totals, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	st, done := s.read()
	defer done()
	out := slices.Collect(maps.Values(st.customers))
	slices.SortFunc(out, func(a, b domain.Customer) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetSalesInvoice(_ context.Context, id string) (*domain.SalesInvoice, error) {
	st, done := s.read()
	defer done()
	return st.getInvoice(id)
}

func (s *Store) FindSalesInvoiceByIdempotency(_ context.Context, key string) (*domain.SalesInvoice, error) {
	st, done := s.read()
	defer done()
	id, ok := st.invoiceByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st.getInvoice(id)
}

func (s *Store) ListSalesInvoices(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesInvoice, error) {
	st, done := s.read()
	defer done()
	out := make([]domain.SalesInvoice, 0, 16)
	for _, inv := range st.invoices {
		if !within(inv.Date, from, to) {
			continue
		}
		out = append(out, inv)
	}
	slices.SortFunc(out, func(a, b domain.SalesInvoice) int {
		return cmp.Or(b.Date.Compare(a.Date), cmp.Compare(b.InvoiceNumber, a.InvoiceNumber))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListSalesReturns(_ context.Context, from time.Time, to time.Time) ([]domain.SalesReturn, error) {
	st, done := s.read()
	defer done()
	out := make([]domain.SalesReturn, 0, 8)
	for _, ret := range st.returns {
		if !within(ret.Date, from, to) {
			continue
		}
		out = append(out, st.withReturnItems(ret))
	}
	slices.SortFunc(out, func(a, b domain.SalesReturn) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (s *Store) ListReturnsByInvoice(_ context.Context, invoiceID string) ([]domain.SalesReturn, error) {
	st, done := s.read()
	defer done()
	if _, ok := st.invoices[invoiceID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]domain.SalesReturn, 0, 2)
	for _, ret := range st.returns {
		if ret.InvoiceID == invoiceID {
			out = append(out, st.withReturnItems(ret))
		}
	}
	slices.SortFunc(out, func(a, b domain.SalesReturn) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	err := s.write(func(st *state) error {
		st.suppliers[supplier.ID] = supplier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	st, done := s.read()
	defer done()
	out := slices.Collect(maps.Values(st.suppliers))
	slices.SortFunc(out, func(a, b domain.Supplier) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) GetPurchaseInvoice(_ context.Context, id string) (*domain.PurchaseInvoice, error) {
	st, done := s.read()
	defer done()
	inv, ok := st.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	inv = st.withPurchaseItems(inv)
	return &inv, nil
}

func (s *Store) ListPurchaseInvoices(_ context.Context, from time.Time, to time.Time) ([]domain.PurchaseInvoice, error) {
	st, done := s.read()
	defer done()
	out := make([]domain.PurchaseInvoice, 0, 8)
	for _, inv := range st.purchases {
		if !within(inv.Date, from, to) {
			continue
		}
		out = append(out, inv)
	}
	slices.SortFunc(out, func(a, b domain.PurchaseInvoice) int {
		return cmp.Or(b.Date.Compare(a.Date), b.CreatedAt.Compare(a.CreatedAt))
	})
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	expense.Date = dateOnly(expense.Date)
	err := s.write(func(st *state) error {
		st.expenses[expense.ID] = expense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	st, done := s.read()
	defer done()
	out := make([]domain.Expense, 0, 8)
	for _, e := range st.expenses {
		if within(e.Date, from, to) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return cmp.Or(b.Date.Compare(a.Date), b.CreatedAt.Compare(a.CreatedAt))
	})
	return out, nil
}

func (s *Store) DailyTotals(_ context.Context, from time.Time, to time.Time) ([]domain.DailyRecord, error) {
	st, done := s.read()
	defer done()

	byDay := make(map[string]*domain.DailyRecord)
	record := func(t time.Time) *domain.DailyRecord {
		day := t.UTC().Format(domain.DateLayout)
		rec, ok := byDay[day]
		if !ok {
			rec = &domain.DailyRecord{Day: day}
			byDay[day] = rec
		}
		return rec
	}

	for _, inv := range st.invoices {
		if within(inv.Date, from, to) {
			rec := record(inv.Date)
			rec.SalesTotal = rec.SalesTotal.Add(inv.GrandTotal)
		}
	}
	for _, inv := range st.purchases {
		if within(inv.Date, from, to) {
			rec := record(inv.Date)
			rec.PurchasesTotal = rec.PurchasesTotal.Add(inv.GrandTotal)
		}
	}
	for _, ret := range st.returns {
		if within(ret.Date, from, to) {
			rec := record(ret.Date)
			rec.ReturnsTotal = rec.ReturnsTotal.Add(ret.RefundAmount)
		}
	}
	for _, e := range st.expenses {
		if within(e.Date, from, to) {
			rec := record(e.Date)
			rec.ExpensesTotal = rec.ExpensesTotal.Add(e.Amount)
		}
	}

	out := make([]domain.DailyRecord, 0, len(byDay))
	for _, rec := range byDay {
		out = append(out, *rec)
	}
	slices.SortFunc(out, func(a, b domain.DailyRecord) int { return cmp.Compare(a.Day, b.Day) })
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.write(func(st *state) error {
		st.auditLogs = append(st.auditLogs, entry)
		return nil
	})
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	st, done := s.read()
	defer done()
	out := make([]domain.AuditLog, 0, 32)
	for i := len(st.auditLogs) - 1; i >= 0; i-- {
		entry := st.auditLogs[i]
		if !within(entry.CreatedAt, from, to) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	return s.write(func(st *state) error {
		if _, exists := st.users[user.Username]; exists {
			return store.ErrConflict
		}
		st.users[user.Username] = user
		return nil
	})
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	st, done := s.read()
	defer done()
	out := slices.Collect(maps.Values(st.users))
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return cmp.Compare(a.Username, b.Username) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	return s.write(func(st *state) error {
		user, ok := st.users[username]
		if !ok {
			return store.ErrNotFound
		}
		user.Password = password
		st.users[username] = user
		return nil
	})
}

func (st *state) checkProductRefs(p domain.Product) error {
	if _, ok := st.brands[p.BrandID]; !ok {
		return fmt.Errorf("%w: unknown brand %q", store.ErrInvalidTransaction, p.BrandID)
	}
	if _, ok := st.categories[p.CategoryID]; !ok {
		return fmt.Errorf("%w: unknown category %q", store.ErrInvalidTransaction, p.CategoryID)
	}
	return nil
}

func (st *state) decorate(p domain.Product) domain.Product {
	p.BrandName = st.brands[p.BrandID].Name
	p.CategoryName = st.categories[p.CategoryID].Name
	return p
}

func (st *state) getProduct(id string) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p = st.decorate(p)
	return &p, nil
}

func (st *state) createBatch(batch domain.Batch) (*domain.Batch, error) {
	if _, ok := st.products[batch.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	if batch.Quantity < 0 || strings.TrimSpace(batch.BatchNumber) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if batch.ID == "" {
		batch.ID = xid.New("bat")
	}
	now := time.Now().UTC()
	st.batchSeq++
	batch.Seq = st.batchSeq
	batch.ExpiryDate = dateOnly(batch.ExpiryDate)
	batch.CreatedAt = now
	batch.UpdatedAt = now
	st.batches[batch.ID] = batch
	return &batch, nil
}

func (st *state) productBatches(productID string) []domain.Batch {
	out := make([]domain.Batch, 0, 4)
	for _, b := range st.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, compareBatch)
	return out
}

func (st *state) getInvoice(id string) (*domain.SalesInvoice, error) {
	inv, ok := st.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	items := make([]domain.SaleItem, 0, 4)
	for _, item := range st.saleItems {
		if item.InvoiceID == id {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.SaleItem) int { return cmp.Compare(a.Position, b.Position) })
	inv.Items = items
	return &inv, nil
}

func (st *state) withReturnItems(ret domain.SalesReturn) domain.SalesReturn {
	items := make([]domain.SalesReturnItem, 0, 2)
	for _, item := range st.returnItems {
		if item.ReturnID == ret.ID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.SalesReturnItem) int { return cmp.Compare(a.ID, b.ID) })
	ret.Items = items
	return ret
}

func (st *state) withPurchaseItems(inv domain.PurchaseInvoice) domain.PurchaseInvoice {
	items := make([]domain.PurchaseItem, 0, 4)
	for _, item := range st.purchaseItems {
		if item.InvoiceID == inv.ID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.PurchaseItem) int { return cmp.Compare(a.Position, b.Position) })
	inv.Items = items
	return inv
}

func compareBatch(a domain.Batch, b domain.Batch) int {
	return cmp.Or(
		a.ExpiryDate.Compare(b.ExpiryDate),
		cmp.Compare(a.Seq, b.Seq),
		cmp.Compare(a.ID, b.ID),
	)
}

func within(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
