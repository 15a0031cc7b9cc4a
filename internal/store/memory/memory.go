package memory

import (
	"context"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	sales           map[int64]domain.Sale
	saleItems       []domain.SaleItem
	nextProductID   int64
	nextSaleID      int64
	nextSaleItemID  int64
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[int64]domain.Product),
		sales:           make(map[int64]domain.Sale),
		saleItems:       make([]domain.SaleItem, 0, 64),
		nextProductID:   1,
		nextSaleID:      1,
		nextSaleItemID:  1,
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a demo catalog and dev accounts.
// Passwords come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD and
// fall back to dev defaults with a warning.
func NewSeeded(logger *zap.Logger) (*Store, error) {
	s := New()
	for _, p := range seedProducts() {
		if _, err := s.CreateProduct(context.Background(), p); err != nil {
			return nil, err
		}
	}

	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"cashier", envOr("SEED_CASHIER_PASSWORD", "cashier123"), domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		if err := s.CreateUser(context.Background(), domain.UserAccount{
			Username: u.username,
			Password: string(hash),
			Role:     u.role,
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func seedProducts() []domain.Product {
	barcode := func(code string) *string { return &code }
	return []domain.Product{
		{
			Name: "Aspirina 500mg", Barcode: barcode("ASP001"), Stock: 100, UnitsPerBox: 10,
			UnitPrice: decimal.RequireFromString("2.50"), BoxPrice: decimal.RequireFromString("24.00"),
			BoxCost: decimal.RequireFromString("8.00"), UnitCost: decimal.RequireFromString("0.80"),
		},
		{
			Name: "Ibupirac 200mg", Barcode: barcode("IBU001"), Stock: 150, UnitsPerBox: 10,
			UnitPrice: decimal.RequireFromString("3.00"), BoxPrice: decimal.RequireFromString("30.00"),
			BoxCost: decimal.RequireFromString("10.00"), UnitCost: decimal.RequireFromString("1.00"),
		},
		{
			Name: "Paracetamol 500mg", Barcode: barcode("PAR001"), Stock: 200, UnitsPerBox: 10,
			UnitPrice: decimal.RequireFromString("2.00"), BoxPrice: decimal.RequireFromString("20.00"),
			BoxCost: decimal.RequireFromString("6.00"), UnitCost: decimal.RequireFromString("0.60"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return compareInt64(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(product)
	return &found, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "is required"}
	}
	if s.barcodeTaken(product.Barcode, 0) {
		return nil, store.ErrDuplicateBarcode
	}

	product.ID = s.nextProductID
	s.nextProductID++
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Reason: "is required"}
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if s.barcodeTaken(product.Barcode, product.ID) {
		return nil, store.ErrDuplicateBarcode
	}

	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) barcodeTaken(barcode *string, exceptID int64) bool {
	if barcode == nil {
		return false
	}
	for id, p := range s.products {
		if id != exceptID && p.Barcode != nil && *p.Barcode == *barcode {
			return true
		}
	}
	return false
}

// WithinTx serializes all sale writers. fn works on private copies that are
// published only when it returns nil.
func (s *Store) WithinTx(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		products:       maps.Clone(s.products),
		sales:          maps.Clone(s.sales),
		saleItems:      slices.Clone(s.saleItems),
		nextSaleID:     s.nextSaleID,
		nextSaleItemID: s.nextSaleItemID,
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.products = tx.products
	s.sales = tx.sales
	s.saleItems = tx.saleItems
	s.nextSaleID = tx.nextSaleID
	s.nextSaleItemID = tx.nextSaleItemID
	return nil
}

func (s *Store) ListSaleLines(_ context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inRange := make(map[int64]domain.Sale)
	for id, sale := range s.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		inRange[id] = sale
	}

	lines := make([]domain.SaleLine, 0)
	for _, item := range s.saleItems {
		sale, ok := inRange[item.SaleID]
		if !ok {
			continue
		}
		line := domain.SaleLine{
			SaleID:          sale.ID,
			SaleTotal:       sale.Total,
			SaleCreatedAt:   sale.CreatedAt,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			SaleUnitType:    item.SaleUnitType,
			UnitPriceAtSale: item.UnitPriceAtSale,
			UnitCostAtSale:  item.UnitCostAtSale,
		}
		if product, exists := s.products[item.ProductID]; exists {
			line.ProductExists = true
			line.ProductName = product.Name
			line.UnitsPerBox = product.UnitsPerBox
			line.UnitsPerSachet = product.UnitsPerSachet
		}
		lines = append(lines, line)
	}

	slices.SortStableFunc(lines, func(a, b domain.SaleLine) int {
		if c := a.SaleCreatedAt.Compare(b.SaleCreatedAt); c != 0 {
			return c
		}
		return compareInt64(a.SaleID, b.SaleID)
	})
	return lines, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return &store.ValidationError{Field: "username", Reason: "and password are required"}
	}
	if _, exists := s.usersByUsername[username]; exists {
		return &store.ValidationError{Field: "username", Reason: "already exists"}
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return &store.ValidationError{Field: "password", Reason: "is required"}
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) RenameUser(_ context.Context, from string, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	if to == "" {
		return &store.ValidationError{Field: "username", Reason: "is required"}
	}
	user, exists := s.usersByUsername[from]
	if !exists {
		return store.ErrNotFound
	}
	if from == to {
		return nil
	}
	if _, taken := s.usersByUsername[to]; taken {
		return &store.ValidationError{Field: "username", Reason: "already exists"}
	}
	delete(s.usersByUsername, from)
	user.Username = to
	s.usersByUsername[to] = user
	return nil
}

type memTx struct {
	products       map[int64]domain.Product
	sales          map[int64]domain.Sale
	saleItems      []domain.SaleItem
	nextSaleID     int64
	nextSaleItemID int64
}

func (t *memTx) GetProductForUpdate(_ context.Context, id int64) (*domain.Product, error) {
	product, exists := t.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneProduct(product)
	return &found, nil
}

func (t *memTx) InsertSale(_ context.Context, at time.Time) (int64, error) {
	id := t.nextSaleID
	t.nextSaleID++
	t.sales[id] = domain.Sale{ID: id, Total: decimal.Zero, CreatedAt: at.UTC()}
	return id, nil
}

func (t *memTx) InsertSaleItem(_ context.Context, item domain.SaleItem) error {
	if _, exists := t.sales[item.SaleID]; !exists {
		return store.ErrNotFound
	}
	item.ID = t.nextSaleItemID
	t.nextSaleItemID++
	t.saleItems = append(t.saleItems, item)
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int64) error {
	product, exists := t.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	product.Stock -= qty
	t.products[productID] = product
	return nil
}

func (t *memTx) SetSaleTotal(_ context.Context, saleID int64, total decimal.Decimal) error {
	sale, exists := t.sales[saleID]
	if !exists {
		return store.ErrNotFound
	}
	sale.Total = total
	t.sales[saleID] = sale
	return nil
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.Barcode != nil {
		code := *src.Barcode
		dup.Barcode = &code
	}
	return dup
}

func compareInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
