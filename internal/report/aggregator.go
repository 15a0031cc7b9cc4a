package report

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	topLimit    = 10
)

// Aggregator derives read-only sales views from persisted sale items. Money
// always comes from the price and cost snapshots on each item; the live
// product row only supplies names and packaging for display.
type Aggregator struct {
	repo   store.Repository
	cache  cache.ReportCache
	loc    *time.Location
	now    func() time.Time
	ttl    time.Duration
	logger *zap.Logger
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func WithCache(c cache.ReportCache, ttl time.Duration) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.cache = c
		}
		a.ttl = ttl
	}
}

// NewAggregator buckets days and months in loc.
func NewAggregator(repo store.Repository, loc *time.Location, logger *zap.Logger, opts ...Option) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		repo:   repo,
		cache:  cache.NoopReportCache{},
		loc:    loc,
		now:    time.Now,
		ttl:    10 * time.Minute,
		logger: logger.Named("report"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Today returns the current date in the reporting location.
func (a *Aggregator) Today() string {
	return a.now().In(a.loc).Format(dateLayout)
}

func (a *Aggregator) SalesForMonth(ctx context.Context) (domain.MonthlySales, error) {
	now := a.now().In(a.loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, a.loc)
	to := from.AddDate(0, 1, 0)

	lines, err := a.repo.ListSaleLines(ctx, from, to)
	if err != nil {
		return domain.MonthlySales{}, fmt.Errorf("list month sale lines: %w", err)
	}
	sales, total := a.groupSales(lines)
	return domain.MonthlySales{
		Month:      from.Format(monthLayout),
		Sales:      sales,
		TotalMonth: total,
	}, nil
}

func (a *Aggregator) SalesForDay(ctx context.Context, date string) (domain.DailySales, error) {
	from, err := a.parseDay(date)
	if err != nil {
		return domain.DailySales{}, err
	}

	var out domain.DailySales
	key := "day:" + from.Format(dateLayout)
	if a.cacheGet(ctx, from, key, &out) {
		return out, nil
	}

	lines, err := a.repo.ListSaleLines(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return domain.DailySales{}, fmt.Errorf("list day sale lines: %w", err)
	}
	sales, total := a.groupSales(lines)
	out = domain.DailySales{
		Date:     from.Format(dateLayout),
		Sales:    sales,
		TotalDay: total,
	}
	a.cacheSet(ctx, from, key, out)
	return out, nil
}

// DailyClosing sums revenue and cost for one local date. An empty date means today.
func (a *Aggregator) DailyClosing(ctx context.Context, date string) (domain.DailyClosing, error) {
	from, err := a.parseDay(date)
	if err != nil {
		return domain.DailyClosing{}, err
	}

	var out domain.DailyClosing
	key := "closing:" + from.Format(dateLayout)
	if a.cacheGet(ctx, from, key, &out) {
		return out, nil
	}

	lines, err := a.repo.ListSaleLines(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return domain.DailyClosing{}, fmt.Errorf("list closing sale lines: %w", err)
	}

	revenue := decimal.Zero
	cost := decimal.Zero
	sales := make(map[int64]struct{})
	for _, line := range lines {
		qty := decimal.NewFromInt(line.Quantity)
		revenue = revenue.Add(qty.Mul(line.UnitPriceAtSale))
		cost = cost.Add(qty.Mul(line.UnitCostAtSale))
		sales[line.SaleID] = struct{}{}
	}

	out = domain.DailyClosing{
		Date:         from.Format(dateLayout),
		SaleCount:    int64(len(sales)),
		TotalRevenue: revenue.Round(2),
		TotalCost:    cost.Round(2),
		NetProfit:    revenue.Sub(cost).Round(2),
	}
	a.cacheSet(ctx, from, key, out)
	return out, nil
}

// TopProducts ranks products by quantity sold in sold-unit terms. Period day
// uses date (default today); period month uses the month containing date
// (default the current month).
func (a *Aggregator) TopProducts(ctx context.Context, period domain.ReportPeriod, date string) ([]domain.TopProduct, error) {
	day, err := a.parseDay(date)
	if err != nil {
		return nil, err
	}

	var from, to time.Time
	var key string
	switch period {
	case domain.PeriodDay:
		from, to = day, day.AddDate(0, 0, 1)
		key = "top:day:" + from.Format(dateLayout)
	case domain.PeriodMonth:
		from = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, a.loc)
		to = from.AddDate(0, 1, 0)
		key = "top:month:" + from.Format(monthLayout)
	default:
		return nil, &store.ValidationError{Field: "period", Reason: "must be day or month"}
	}

	var out []domain.TopProduct
	// A month is closed once its last day is in the past.
	if a.cacheGet(ctx, to.AddDate(0, 0, -1), key, &out) {
		return out, nil
	}

	lines, err := a.repo.ListSaleLines(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list top product sale lines: %w", err)
	}
	out = rankProducts(lines, topLimit)
	a.cacheSet(ctx, to.AddDate(0, 0, -1), key, out)
	return out, nil
}

func rankProducts(lines []domain.SaleLine, limit int) []domain.TopProduct {
	byProduct := make(map[int64]*domain.TopProduct)
	order := make([]int64, 0)
	for _, line := range lines {
		top, ok := byProduct[line.ProductID]
		if !ok {
			top = &domain.TopProduct{
				ProductID:    line.ProductID,
				Name:         productName(line),
				UnitsPerBox:  line.UnitsPerBox,
				TotalRevenue: decimal.Zero,
			}
			byProduct[line.ProductID] = top
			order = append(order, line.ProductID)
		}
		top.TotalQuantitySold += line.Quantity
		top.TotalMinimalUnits += line.Quantity * minimalUnitsPerItem(line)
		top.TotalRevenue = top.TotalRevenue.Add(decimal.NewFromInt(line.Quantity).Mul(line.UnitPriceAtSale))
	}

	ranked := make([]domain.TopProduct, 0, len(order))
	for _, id := range order {
		top := byProduct[id]
		top.TotalRevenue = top.TotalRevenue.Round(2)
		top.QuantityLabel = FormatQuantity(top.TotalMinimalUnits, top.UnitsPerBox)
		ranked = append(ranked, *top)
	}
	slices.SortStableFunc(ranked, func(x, y domain.TopProduct) int {
		if x.TotalQuantitySold != y.TotalQuantitySold {
			if x.TotalQuantitySold > y.TotalQuantitySold {
				return -1
			}
			return 1
		}
		return y.TotalRevenue.Cmp(x.TotalRevenue)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// groupSales folds ordered sale lines into one view per sale and returns the
// sum of the persisted sale totals.
func (a *Aggregator) groupSales(lines []domain.SaleLine) ([]domain.SaleView, decimal.Decimal) {
	views := make([]domain.SaleView, 0)
	index := make(map[int64]int)
	total := decimal.Zero

	for _, line := range lines {
		pos, ok := index[line.SaleID]
		if !ok {
			views = append(views, domain.SaleView{
				SaleID:    line.SaleID,
				Timestamp: line.SaleCreatedAt.In(a.loc).Format(time.RFC3339),
				Total:     line.SaleTotal,
				Items:     make([]domain.SaleItemView, 0, 4),
			})
			pos = len(views) - 1
			index[line.SaleID] = pos
			total = total.Add(line.SaleTotal)
		}

		qty := decimal.NewFromInt(line.Quantity)
		name := productName(line)
		views[pos].Items = append(views[pos].Items, domain.SaleItemView{
			ProductID:       line.ProductID,
			Name:            name,
			DisplayName:     DisplayName(name, line.SaleUnitType),
			SaleUnitType:    line.SaleUnitType,
			Quantity:        line.Quantity,
			UnitPriceAtSale: line.UnitPriceAtSale,
			UnitCostAtSale:  line.UnitCostAtSale,
			Subtotal:        qty.Mul(line.UnitPriceAtSale).Round(2),
			Profit:          qty.Mul(line.UnitPriceAtSale.Sub(line.UnitCostAtSale)).Round(2),
		})
	}
	return views, total.Round(2)
}

// parseDay returns local midnight of date, or of today when date is blank.
func (a *Aggregator) parseDay(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		now := a.now().In(a.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc), nil
	}
	day, err := time.ParseInLocation(dateLayout, date, a.loc)
	if err != nil {
		return time.Time{}, &store.ValidationError{Field: "date", Reason: "must be formatted as YYYY-MM-DD"}
	}
	return day, nil
}

// closed reports whether the local day starting at day is entirely past;
// only closed days are cacheable.
func (a *Aggregator) closed(day time.Time) bool {
	now := a.now().In(a.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
	return day.Before(today)
}

func (a *Aggregator) cacheGet(ctx context.Context, day time.Time, key string, dest any) bool {
	if !a.closed(day) {
		return false
	}
	hit, err := a.cache.Get(ctx, key, dest)
	if err != nil {
		a.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (a *Aggregator) cacheSet(ctx context.Context, day time.Time, key string, value any) {
	if !a.closed(day) {
		return
	}
	if err := a.cache.Set(ctx, key, value, a.ttl); err != nil {
		a.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}
