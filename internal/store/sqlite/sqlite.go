package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// Timestamps are stored as fixed-width UTC text so range filters can
// compare them lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		barcode TEXT UNIQUE,
		stock INTEGER NOT NULL DEFAULT 0,
		units_per_box INTEGER NOT NULL DEFAULT 1,
		has_sachets INTEGER NOT NULL DEFAULT 0,
		sachets_per_box INTEGER NOT NULL DEFAULT 0,
		units_per_sachet INTEGER NOT NULL DEFAULT 0,
		unit_price TEXT NOT NULL DEFAULT '0',
		box_price TEXT NOT NULL DEFAULT '0',
		sachet_price TEXT NOT NULL DEFAULT '0',
		unit_cost TEXT NOT NULL DEFAULT '0',
		box_cost TEXT NOT NULL DEFAULT '0',
		sachet_cost TEXT NOT NULL DEFAULT '0'
	);`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		total TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at);`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		sale_unit_type TEXT NOT NULL,
		unit_price_at_sale TEXT NOT NULL,
		unit_cost_at_sale TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS sale_items_sale_id_idx ON sale_items (sale_id);`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);`,
}

const productColumns = `id, name, barcode, stock, units_per_box, has_sachets, sachets_per_box, units_per_sachet,
	unit_price, box_price, sachet_price, unit_cost, box_cost, sachet_cost`

// Store is the single-file backend used for a standalone till.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the database at dsn and applies the schema.
// The pool is pinned to one connection so writers never contend.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA foreign_keys = ON`, `PRAGMA busy_timeout = 5000`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products ORDER BY name, id`); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id int64) (*domain.Product, error) {
	var product domain.Product
	if err := sqlx.GetContext(ctx, q, &product, `SELECT `+productColumns+` FROM products WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "is required"}
	}
	product.Barcode = blankToNil(product.Barcode)

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (
			name, barcode, stock, units_per_box, has_sachets, sachets_per_box, units_per_sachet,
			unit_price, box_price, sachet_price, unit_cost, box_cost, sachet_cost
		) VALUES (
			:name, :barcode, :stock, :units_per_box, :has_sachets, :sachets_per_box, :units_per_sachet,
			:unit_price, :box_price, :sachet_price, :unit_cost, :box_cost, :sachet_cost
		)
	`, product)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	product.ID = id
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "is required"}
	}
	product.Barcode = blankToNil(product.Barcode)

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE products SET
			name = :name, barcode = :barcode, stock = :stock, units_per_box = :units_per_box,
			has_sachets = :has_sachets, sachets_per_box = :sachets_per_box, units_per_sachet = :units_per_sachet,
			unit_price = :unit_price, box_price = :box_price, sachet_price = :sachet_price,
			unit_cost = :unit_cost, box_cost = :box_cost, sachet_cost = :sachet_cost
		WHERE id = :id
	`, product)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type saleLineRow struct {
	SaleID          int64           `db:"sale_id"`
	SaleTotal       decimal.Decimal `db:"sale_total"`
	SaleCreatedAt   string          `db:"sale_created_at"`
	ProductID       int64           `db:"product_id"`
	Quantity        int64           `db:"quantity"`
	SaleUnitType    string          `db:"sale_unit_type"`
	UnitPriceAtSale decimal.Decimal `db:"unit_price_at_sale"`
	UnitCostAtSale  decimal.Decimal `db:"unit_cost_at_sale"`
	ProductExists   bool            `db:"product_exists"`
	ProductName     string          `db:"product_name"`
	UnitsPerBox     int64           `db:"units_per_box"`
	UnitsPerSachet  int64           `db:"units_per_sachet"`
}

func (s *Store) ListSaleLines(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	rows := make([]saleLineRow, 0, 64)
	err := s.db.SelectContext(ctx, &rows, `
		SELECT s.id AS sale_id, s.total AS sale_total, s.created_at AS sale_created_at,
			si.product_id, si.quantity, si.sale_unit_type, si.unit_price_at_sale, si.unit_cost_at_sale,
			p.id IS NOT NULL AS product_exists,
			COALESCE(p.name, '') AS product_name,
			COALESCE(p.units_per_box, 0) AS units_per_box,
			COALESCE(p.units_per_sachet, 0) AS units_per_sachet
		FROM sales s
		JOIN sale_items si ON si.sale_id = s.id
		LEFT JOIN products p ON p.id = si.product_id
		WHERE s.created_at >= ? AND s.created_at < ?
		ORDER BY s.created_at ASC, s.id ASC, si.id ASC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}

	lines := make([]domain.SaleLine, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(timeLayout, row.SaleCreatedAt)
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.SaleLine{
			SaleID:          row.SaleID,
			SaleTotal:       row.SaleTotal,
			SaleCreatedAt:   createdAt,
			ProductID:       row.ProductID,
			Quantity:        row.Quantity,
			SaleUnitType:    domain.ParseSaleUnitType(row.SaleUnitType),
			UnitPriceAtSale: row.UnitPriceAtSale,
			UnitCostAtSale:  row.UnitCostAtSale,
			ProductExists:   row.ProductExists,
			ProductName:     row.ProductName,
			UnitsPerBox:     row.UnitsPerBox,
			UnitsPerSachet:  row.UnitsPerSachet,
		})
	}
	return lines, nil
}

type userRow struct {
	Username  string `db:"username"`
	Password  string `db:"password"`
	Role      string `db:"role"`
	Active    bool   `db:"active"`
	CreatedAt string `db:"created_at"`
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return &store.ValidationError{Field: "username", Reason: "and password are required"}
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at) VALUES (?, ?, ?, 1, ?)
	`, user.Username, user.Password, user.Role, formatTime(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return &store.ValidationError{Field: "username", Reason: "already exists"}
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows := make([]userRow, 0, 8)
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT username, password, role, active, created_at FROM app_users ORDER BY username ASC
	`); err != nil {
		return nil, err
	}

	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(timeLayout, row.CreatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, domain.UserAccount{
			Username:  row.Username,
			Password:  row.Password,
			Role:      row.Role,
			Active:    row.Active,
			CreatedAt: createdAt,
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return &store.ValidationError{Field: "password", Reason: "is required"}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password = ? WHERE username = ?`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RenameUser(ctx context.Context, from string, to string) error {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	if to == "" {
		return &store.ValidationError{Field: "username", Reason: "is required"}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET username = ? WHERE username = ?`, to, from)
	if err != nil {
		if isUniqueViolation(err) {
			return &store.ValidationError{Field: "username", Reason: "already exists"}
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type sqliteTx struct {
	tx *sqlx.Tx
}

// GetProductForUpdate needs no row lock: the single pooled connection
// already serializes every transaction.
func (t *sqliteTx) GetProductForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *sqliteTx) InsertSale(ctx context.Context, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO sales (total, created_at) VALUES ('0', ?)`, formatTime(at))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (t *sqliteTx) InsertSaleItem(ctx context.Context, item domain.SaleItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_items (sale_id, product_id, quantity, sale_unit_type, unit_price_at_sale, unit_cost_at_sale)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.SaleID, item.ProductID, item.Quantity, string(item.SaleUnitType), item.UnitPriceAtSale, item.UnitCostAtSale)
	return err
}

func (t *sqliteTx) DecrementStock(ctx context.Context, productID int64, qty int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE products SET stock = stock - ? WHERE id = ?`, qty, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *sqliteTx) SetSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE sales SET total = ? WHERE id = ?`, total.String(), saleID)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func blankToNil(barcode *string) *string {
	if barcode == nil || strings.TrimSpace(*barcode) == "" {
		return nil
	}
	return barcode
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(sqliteErr.Error(), "UNIQUE")
		}
	}
	return false
}
