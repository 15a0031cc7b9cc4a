package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	barcode TEXT UNIQUE,
	stock BIGINT NOT NULL DEFAULT 0,
	units_per_box BIGINT NOT NULL DEFAULT 1,
	has_sachets BOOLEAN NOT NULL DEFAULT false,
	sachets_per_box BIGINT NOT NULL DEFAULT 0,
	units_per_sachet BIGINT NOT NULL DEFAULT 0,
	unit_price NUMERIC NOT NULL DEFAULT 0,
	box_price NUMERIC NOT NULL DEFAULT 0,
	sachet_price NUMERIC NOT NULL DEFAULT 0,
	unit_cost NUMERIC NOT NULL DEFAULT 0,
	box_cost NUMERIC NOT NULL DEFAULT 0,
	sachet_cost NUMERIC NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sales (
	id BIGSERIAL PRIMARY KEY,
	total NUMERIC NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at);

CREATE TABLE IF NOT EXISTS sale_items (
	id BIGSERIAL PRIMARY KEY,
	sale_id BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
	product_id BIGINT NOT NULL,
	quantity BIGINT NOT NULL,
	sale_unit_type TEXT NOT NULL,
	unit_price_at_sale NUMERIC NOT NULL,
	unit_cost_at_sale NUMERIC NOT NULL
);
CREATE INDEX IF NOT EXISTS sale_items_sale_id_idx ON sale_items (sale_id);

CREATE TABLE IF NOT EXISTS app_users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const productColumns = `
	id, name, barcode, stock, units_per_box, has_sachets, sachets_per_box, units_per_sachet,
	unit_price, box_price, sachet_price, unit_cost, box_cost, sachet_cost
`

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

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var barcode sql.NullString
	err := row.Scan(
		&p.ID, &p.Name, &barcode, &p.Stock, &p.UnitsPerBox, &p.HasSachets, &p.SachetsPerBox, &p.UnitsPerSachet,
		&p.UnitPrice, &p.BoxPrice, &p.SachetPrice, &p.UnitCost, &p.BoxCost, &p.SachetCost,
	)
	if err != nil {
		return domain.Product{}, err
	}
	if barcode.Valid {
		p.Barcode = &barcode.String
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "is required"}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (
			name, barcode, stock, units_per_box, has_sachets, sachets_per_box, units_per_sachet,
			unit_price, box_price, sachet_price, unit_cost, box_cost, sachet_cost, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
		RETURNING id
	`,
		product.Name, nullBarcode(product.Barcode), product.Stock, product.UnitsPerBox, product.HasSachets,
		product.SachetsPerBox, product.UnitsPerSachet, product.UnitPrice, product.BoxPrice, product.SachetPrice,
		product.UnitCost, product.BoxCost, product.SachetCost,
	).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "is required"}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, stock = $4, units_per_box = $5, has_sachets = $6,
			sachets_per_box = $7, units_per_sachet = $8, unit_price = $9, box_price = $10,
			sachet_price = $11, unit_cost = $12, box_cost = $13, sachet_cost = $14, updated_at = now()
		WHERE id = $1
	`,
		product.ID, product.Name, nullBarcode(product.Barcode), product.Stock, product.UnitsPerBox, product.HasSachets,
		product.SachetsPerBox, product.UnitsPerSachet, product.UnitPrice, product.BoxPrice, product.SachetPrice,
		product.UnitCost, product.BoxCost, product.SachetCost,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

// DeleteProduct removes the catalog row only. Sale items keep their
// product_id so history survives the deletion.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
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
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) ListSaleLines(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.total, s.created_at,
			si.product_id, si.quantity, si.sale_unit_type, si.unit_price_at_sale, si.unit_cost_at_sale,
			p.id IS NOT NULL, COALESCE(p.name, ''), COALESCE(p.units_per_box, 0), COALESCE(p.units_per_sachet, 0)
		FROM sales s
		JOIN sale_items si ON si.sale_id = s.id
		LEFT JOIN products p ON p.id = si.product_id
		WHERE s.created_at >= $1 AND s.created_at < $2
		ORDER BY s.created_at ASC, s.id ASC, si.id ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 64)
	for rows.Next() {
		var line domain.SaleLine
		var unitType string
		if err := rows.Scan(
			&line.SaleID, &line.SaleTotal, &line.SaleCreatedAt,
			&line.ProductID, &line.Quantity, &unitType, &line.UnitPriceAtSale, &line.UnitCostAtSale,
			&line.ProductExists, &line.ProductName, &line.UnitsPerBox, &line.UnitsPerSachet,
		); err != nil {
			return nil, err
		}
		line.SaleUnitType = domain.ParseSaleUnitType(unitType)
		line.SaleCreatedAt = line.SaleCreatedAt.UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
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
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &store.ValidationError{Field: "username", Reason: "already exists"}
		}
		return err
	}
	return nil
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return &store.ValidationError{Field: "password", Reason: "is required"}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET username = $2, updated_at = now()
		WHERE username = $1
	`, from, to)
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

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) InsertSale(ctx context.Context, at time.Time) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO sales (total, created_at) VALUES (0, $1) RETURNING id
	`, at.UTC()).Scan(&id)
	return id, err
}

func (t *pgTx) InsertSaleItem(ctx context.Context, item domain.SaleItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_items (sale_id, product_id, quantity, sale_unit_type, unit_price_at_sale, unit_cost_at_sale)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.SaleID, item.ProductID, item.Quantity, string(item.SaleUnitType), item.UnitPriceAtSale, item.UnitCostAtSale)
	return err
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
	`, productID, qty)
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

func (t *pgTx) SetSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE sales SET total = $2 WHERE id = $1`, saleID, total)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullBarcode(val *string) any {
	if val == nil || *val == "" {
		return nil
	}
	return *val
}
