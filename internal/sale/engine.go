package sale

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// Engine records multi-line sales atomically against the catalog stock.
type Engine struct {
	repo   store.Repository
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Engine)

// WithClock overrides the sale timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(repo store.Repository, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		repo:   repo,
		now:    time.Now,
		logger: logger.Named("sale"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSale inserts the sale header, then walks the cart in order, checking
// stock and writing each item and stock decrement before the next line is
// read, so repeated products see earlier lines. Any failure rolls back the
// whole sale and is returned unchanged.
func (e *Engine) CreateSale(ctx context.Context, lines []domain.CartLine) (domain.SaleResult, error) {
	if len(lines) == 0 {
		return domain.SaleResult{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidSale)
	}
	for i, line := range lines {
		if line.Quantity < 1 {
			return domain.SaleResult{}, fmt.Errorf("%w: line %d quantity must be at least 1", store.ErrInvalidSale, i+1)
		}
	}

	var result domain.SaleResult
	err := e.repo.WithinTx(ctx, func(tx store.Tx) error {
		saleID, err := tx.InsertSale(ctx, e.now().UTC())
		if err != nil {
			return err
		}

		total := decimal.Zero
		for i, line := range lines {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return &store.ProductNotFoundError{ProductID: line.ProductID}
				}
				return err
			}

			priced := ResolveLine(*product, line.SaleUnitType)
			if line.Quantity > math.MaxInt64/priced.MinimalUnits {
				return fmt.Errorf("%w: line %d quantity exceeds any possible stock", store.ErrInvalidSale, i+1)
			}
			required := line.Quantity * priced.MinimalUnits
			if product.Stock < required {
				return &store.InsufficientStockError{
					ProductID: product.ID,
					Name:      product.Name,
					Stock:     product.Stock,
					Required:  required,
				}
			}

			total = total.Add(priced.Price.Mul(decimal.NewFromInt(line.Quantity)))

			if err := tx.InsertSaleItem(ctx, domain.SaleItem{
				SaleID:          saleID,
				ProductID:       product.ID,
				Quantity:        line.Quantity,
				SaleUnitType:    priced.UnitType,
				UnitPriceAtSale: priced.Price,
				UnitCostAtSale:  priced.Cost,
			}); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, product.ID, required); err != nil {
				return err
			}
		}

		if err := tx.SetSaleTotal(ctx, saleID, total); err != nil {
			return err
		}
		result = domain.SaleResult{SaleID: saleID, Total: total}
		return nil
	})
	if err != nil {
		e.logger.Warn("sale rejected", zap.Int("lines", len(lines)), zap.Error(err))
		return domain.SaleResult{}, err
	}

	e.logger.Info("sale committed",
		zap.Int64("sale_id", result.SaleID),
		zap.String("total", result.Total.StringFixed(2)),
		zap.Int("lines", len(lines)),
	)
	return result, nil
}

// PricedLine is how one cart line is charged and how much stock it consumes
// per sold quantity.
type PricedLine struct {
	UnitType     domain.SaleUnitType
	Price        decimal.Decimal
	Cost         decimal.Decimal
	MinimalUnits int64
}

// ResolveLine picks price, cost and stock consumption for the requested
// granularity. A box needs more than one unit per box and a sachet needs
// sachets configured with at least one unit each; otherwise the line is
// charged as units.
func ResolveLine(p domain.Product, unitType domain.SaleUnitType) PricedLine {
	switch unitType {
	case domain.SaleUnitBox:
		if p.UnitsPerBox > 1 {
			return PricedLine{UnitType: domain.SaleUnitBox, Price: p.BoxPrice, Cost: p.BoxCost, MinimalUnits: p.UnitsPerBox}
		}
	case domain.SaleUnitSachet:
		if p.HasSachets && p.UnitsPerSachet >= 1 {
			return PricedLine{UnitType: domain.SaleUnitSachet, Price: p.SachetPrice, Cost: p.SachetCost, MinimalUnits: p.UnitsPerSachet}
		}
	}
	return PricedLine{UnitType: domain.SaleUnitUnit, Price: p.UnitPrice, Cost: p.UnitCost, MinimalUnits: 1}
}
