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
	ErrNotFound          = errors.New("not found")
	ErrDuplicateBarcode  = errors.New("barcode already registered")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrValidation        = errors.New("validation failed")
)

// ProductNotFoundError reports a cart line referencing a missing product.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with id %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// InsufficientStockError carries what the cashier needs to correct the cart.
// Stock and Required are both in minimal units.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Stock     int64
	Required  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, required %d minimal units", e.Name, e.Stock, e.Required)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	// WithinTx runs fn inside one atomic unit of work. Any error returned by
	// fn discards every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// ListSaleLines returns sale items whose sale timestamp falls in
	// [from, to), ordered by sale timestamp then sale id. Lines of deleted
	// products are kept with ProductExists false.
	ListSaleLines(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleLine, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	// RenameUser fails with a ValidationError when to is already taken.
	RenameUser(ctx context.Context, from string, to string) error
}

// Tx is the write surface available while recording a sale.
type Tx interface {
	// GetProductForUpdate returns the product and holds it against
	// concurrent stock changes until the transaction ends.
	GetProductForUpdate(ctx context.Context, id int64) (*domain.Product, error)
	InsertSale(ctx context.Context, at time.Time) (int64, error)
	InsertSaleItem(ctx context.Context, item domain.SaleItem) error
	DecrementStock(ctx context.Context, productID int64, qty int64) error
	SetSaleTotal(ctx context.Context, saleID int64, total decimal.Decimal) error
}
