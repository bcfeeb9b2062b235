package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*Tx)(nil)
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &Tx{tx: sqlTx}, nil
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	brand.Name = strings.TrimSpace(brand.Name)
	if brand.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if brand.ID == "" {
		brand.ID = xid.New("brd")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO brands (id, name) VALUES ($1, $2)`, brand.ID, brand.Name)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &brand, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM brands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 32)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, name) VALUES ($1, $2)`, category.ID, category.Name)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand_id, category_id, company, description, tax_percentage, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, product.ID, product.Name, product.BrandID, product.CategoryID, product.Company, product.Description, product.TaxPercentage)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown brand or category", store.ErrInvalidTransaction)
		}
		return nil, mapWriteError(err)
	}
	return getProduct(ctx, s.db, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand_id = $3, category_id = $4, company = $5, description = $6,
			tax_percentage = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.BrandID, product.CategoryID, product.Company, product.Description, product.TaxPercentage)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown brand or category", store.ErrInvalidTransaction)
		}
		return nil, mapWriteError(err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return getProduct(ctx, s.db, product.ID)
}

// DeleteProduct refuses products that still have batches or sale lines;
// the foreign keys enforce that.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: product is referenced by stock or sales", store.ErrConflict)
		}
		return err
	}
	return expectAffected(res)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func (s *Store) ListProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	rows, err := s.db.QueryContext(ctx, productSelect+`
		WHERE $1 = '' OR p.name ILIKE $2 OR b.name ILIKE $2 OR c.name ILIKE $2
		ORDER BY p.name, p.id
		LIMIT NULLIF($3, 0)
	`, query, likePattern(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	return createBatch(ctx, s.db, batch)
}

func (s *Store) ListBatches(ctx context.Context, productID string) ([]domain.Batch, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return queryBatches(ctx, s.db, batchSelect+` WHERE product_id = $1 ORDER BY expiry_date, seq`, productID)
}

func (s *Store) ListStockedBatches(ctx context.Context, expiringOnOrBefore time.Time) ([]domain.ExpiringBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bt.id, bt.seq, bt.product_id, bt.batch_number, bt.expiry_date, bt.purchase_price,
			bt.sale_price, bt.quantity, bt.created_at, bt.updated_at, p.name
		FROM batches bt
		JOIN products p ON p.id = bt.product_id
		WHERE bt.quantity > 0 AND bt.expiry_date <= $1::date
		ORDER BY bt.expiry_date, bt.seq
	`, dateOnly(expiringOnOrBefore))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ExpiringBatch, 0, 32)
	for rows.Next() {
		var eb domain.ExpiringBatch
		b := &eb.Batch
		if err := rows.Scan(&b.ID, &b.Seq, &b.ProductID, &b.BatchNumber, &b.ExpiryDate, &b.PurchasePrice,
			&b.SalePrice, &b.Quantity, &b.CreatedAt, &b.UpdatedAt, &eb.ProductName); err != nil {
			return nil, err
		}
		normalizeBatch(b)
		out = append(out, eb)
	}
	return out, rows.Err()
}

func (s *Store) StockTotals(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, COALESCE(SUM(b.quantity), 0)
		FROM products p
		LEFT JOIN batches b ON b.product_id = p.id
		GROUP BY p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int, 64)
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		totals[id] = qty
	}
	return totals, rows.Err()
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), address, created_at
		FROM customers
		ORDER BY name, id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact_person, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Address, supplier.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_person, phone, address, created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.ContactPerson, &sup.Phone, &sup.Address, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	expense.Date = dateOnly(expense.Date)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, date, category, amount, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, expense.ID, expense.Date, expense.Category, expense.Amount, expense.Note, expense.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, category, amount, note, created_at
		FROM expenses
		WHERE `+dateRange("date")+`
		ORDER BY date DESC, created_at DESC
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 16)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Date, &e.Category, &e.Amount, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Date = dateOnly(e.Date)
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// DailyTotals buckets by UTC calendar day. Timestamps are converted before
// truncation so the grouping does not depend on the session time zone.
func (s *Store) DailyTotals(ctx context.Context, from time.Time, to time.Time) ([]domain.DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, SUM(sales), SUM(purchases), SUM(returns), SUM(expenses)
		FROM (
			SELECT (date AT TIME ZONE 'UTC')::date AS day, grand_total AS sales, 0 AS purchases, 0 AS returns, 0 AS expenses
			FROM sales_invoices WHERE `+timeRange("date")+`
			UNION ALL
			SELECT date, 0, grand_total, 0, 0
			FROM purchase_invoices WHERE `+dateRange("date")+`
			UNION ALL
			SELECT (date AT TIME ZONE 'UTC')::date, 0, 0, refund_amount, 0
			FROM sales_returns WHERE `+timeRange("date")+`
			UNION ALL
			SELECT date, 0, 0, 0, amount
			FROM expenses WHERE `+dateRange("date")+`
		) activity
		GROUP BY day
		ORDER BY day
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.DailyRecord, 0, 31)
	for rows.Next() {
		var day time.Time
		var rec domain.DailyRecord
		if err := rows.Scan(&day, &rec.SalesTotal, &rec.PurchasesTotal, &rec.ReturnsTotal, &rec.ExpensesTotal); err != nil {
			return nil, err
		}
		rec.Day = day.Format(domain.DateLayout)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE `+timeRange("created_at")+`
		ORDER BY created_at DESC
		LIMIT NULLIF($3, 0)
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return mapWriteError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
