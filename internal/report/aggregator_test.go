package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/sale"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
)

var lima = time.FixedZone("UTC-05:00", -5*60*60)

type fixture struct {
	repo    *memory.Store
	boxed   domain.Product
	loose   domain.Product
	sachets domain.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()

	create := func(p domain.Product) domain.Product {
		created, err := repo.CreateProduct(ctx, p)
		if err != nil {
			t.Fatalf("create product: %v", err)
		}
		return *created
	}
	return &fixture{
		repo: repo,
		boxed: create(domain.Product{
			Name: "Aspirina 500mg", Stock: 500, UnitsPerBox: 10,
			UnitPrice: decimal.RequireFromString("2.50"), UnitCost: decimal.RequireFromString("0.80"),
			BoxPrice: decimal.RequireFromString("24.00"), BoxCost: decimal.RequireFromString("8.00"),
		}),
		loose: create(domain.Product{
			Name: "Venda", Stock: 500, UnitsPerBox: 1,
			UnitPrice: decimal.RequireFromString("1.00"), UnitCost: decimal.RequireFromString("0.40"),
		}),
		sachets: create(domain.Product{
			Name: "Sal de Frutas", Stock: 500, UnitsPerBox: 20, HasSachets: true, SachetsPerBox: 10, UnitsPerSachet: 2,
			SachetPrice: decimal.RequireFromString("1.50"), SachetCost: decimal.RequireFromString("1.00"),
		}),
	}
}

func (f *fixture) sell(t *testing.T, at time.Time, lines ...domain.CartLine) domain.SaleResult {
	t.Helper()
	engine := sale.NewEngine(f.repo, zap.NewNop(), sale.WithClock(func() time.Time { return at }))
	result, err := engine.CreateSale(context.Background(), lines)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return result
}

func newAggregator(f *fixture, now time.Time, opts ...Option) *Aggregator {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewAggregator(f.repo, lima, zap.NewNop(), opts...)
}

func TestDailyClosingUsesSnapshotsAfterPriceEdit(t *testing.T) {
	f := newFixture(t)
	f.sell(t, time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC),
		domain.CartLine{ProductID: f.boxed.ID, Quantity: 2, SaleUnitType: domain.SaleUnitUnit},
		domain.CartLine{ProductID: f.boxed.ID, Quantity: 1, SaleUnitType: domain.SaleUnitBox},
	)

	edited := f.boxed
	edited.UnitPrice = decimal.NewFromInt(10)
	edited.UnitCost = decimal.NewFromInt(5)
	if _, err := f.repo.UpdateProduct(context.Background(), edited); err != nil {
		t.Fatalf("update product: %v", err)
	}

	agg := newAggregator(f, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))
	closing, err := agg.DailyClosing(context.Background(), "2025-11-10")
	if err != nil {
		t.Fatalf("daily closing: %v", err)
	}

	if closing.SaleCount != 1 {
		t.Fatalf("expected 1 sale, got %d", closing.SaleCount)
	}
	if !closing.TotalRevenue.Equal(decimal.RequireFromString("29")) {
		t.Fatalf("expected revenue 29, got %s", closing.TotalRevenue)
	}
	if !closing.TotalCost.Equal(decimal.RequireFromString("9.6")) {
		t.Fatalf("expected cost 9.6, got %s", closing.TotalCost)
	}
	if !closing.NetProfit.Equal(decimal.RequireFromString("19.4")) {
		t.Fatalf("expected profit 19.4, got %s", closing.NetProfit)
	}
}

func TestDayBucketsUseReportingLocation(t *testing.T) {
	f := newFixture(t)
	// 03:00 UTC on the 11th is still the evening of the 10th at UTC-5.
	f.sell(t, time.Date(2025, 11, 11, 3, 0, 0, 0, time.UTC),
		domain.CartLine{ProductID: f.loose.ID, Quantity: 4},
	)

	agg := newAggregator(f, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))
	tenth, err := agg.SalesForDay(context.Background(), "2025-11-10")
	if err != nil {
		t.Fatalf("sales for day: %v", err)
	}
	if len(tenth.Sales) != 1 || !tenth.TotalDay.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected the late sale on the 10th, got %+v", tenth)
	}
	if tenth.Sales[0].Timestamp != "2025-11-10T22:00:00-05:00" {
		t.Fatalf("expected local timestamp, got %s", tenth.Sales[0].Timestamp)
	}

	eleventh, err := agg.SalesForDay(context.Background(), "2025-11-11")
	if err != nil {
		t.Fatalf("sales for day: %v", err)
	}
	if len(eleventh.Sales) != 0 {
		t.Fatalf("expected no sales on the 11th, got %d", len(eleventh.Sales))
	}
}

func TestSalesForDayItemViews(t *testing.T) {
	f := newFixture(t)
	f.sell(t, time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC),
		domain.CartLine{ProductID: f.boxed.ID, Quantity: 1, SaleUnitType: domain.SaleUnitBox},
		domain.CartLine{ProductID: f.sachets.ID, Quantity: 2, SaleUnitType: domain.SaleUnitSachet},
	)

	agg := newAggregator(f, time.Date(2025, 11, 10, 18, 0, 0, 0, time.UTC))
	day, err := agg.SalesForDay(context.Background(), "")
	if err != nil {
		t.Fatalf("sales for day: %v", err)
	}
	if day.Date != "2025-11-10" || len(day.Sales) != 1 {
		t.Fatalf("expected one sale today, got %+v", day)
	}

	items := day.Sales[0].Items
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].DisplayName != "Aspirina 500mg (box)" || items[1].DisplayName != "Sal de Frutas (sachet)" {
		t.Fatalf("unexpected display names %q, %q", items[0].DisplayName, items[1].DisplayName)
	}
	if !items[0].Profit.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("expected box profit 16, got %s", items[0].Profit)
	}
	if !items[1].Subtotal.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected sachet subtotal 3, got %s", items[1].Subtotal)
	}
	if !day.TotalDay.Equal(decimal.NewFromInt(27)) {
		t.Fatalf("expected total 27, got %s", day.TotalDay)
	}
}

func TestSalesForMonthBoundaries(t *testing.T) {
	f := newFixture(t)
	// 2025-11-01 02:00 UTC is still October 31st locally.
	f.sell(t, time.Date(2025, 11, 1, 2, 0, 0, 0, time.UTC), domain.CartLine{ProductID: f.loose.ID, Quantity: 1})
	f.sell(t, time.Date(2025, 11, 1, 6, 0, 0, 0, time.UTC), domain.CartLine{ProductID: f.loose.ID, Quantity: 2})
	f.sell(t, time.Date(2025, 11, 15, 6, 0, 0, 0, time.UTC), domain.CartLine{ProductID: f.loose.ID, Quantity: 3})

	agg := newAggregator(f, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))
	month, err := agg.SalesForMonth(context.Background())
	if err != nil {
		t.Fatalf("sales for month: %v", err)
	}
	if month.Month != "2025-11" {
		t.Fatalf("expected month 2025-11, got %s", month.Month)
	}
	if len(month.Sales) != 2 || !month.TotalMonth.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 2 sales totalling 5, got %d totalling %s", len(month.Sales), month.TotalMonth)
	}
	if month.Sales[0].Items[0].Quantity != 2 {
		t.Fatalf("expected sales in chronological order")
	}
}

func TestTopProductsRanksBySoldQuantity(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC)
	f.sell(t, at,
		domain.CartLine{ProductID: f.boxed.ID, Quantity: 3, SaleUnitType: domain.SaleUnitUnit},
		domain.CartLine{ProductID: f.loose.ID, Quantity: 5},
	)
	f.sell(t, at.Add(time.Hour),
		domain.CartLine{ProductID: f.boxed.ID, Quantity: 1, SaleUnitType: domain.SaleUnitBox},
	)
	f.sell(t, at.AddDate(0, 0, 1), domain.CartLine{ProductID: f.boxed.ID, Quantity: 9})

	repriced := f.boxed
	repriced.UnitPrice = decimal.NewFromInt(99)
	repriced.BoxPrice = decimal.NewFromInt(500)
	repriced.UnitCost = decimal.NewFromInt(50)
	if _, err := f.repo.UpdateProduct(context.Background(), repriced); err != nil {
		t.Fatalf("update product: %v", err)
	}

	agg := newAggregator(f, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))
	top, err := agg.TopProducts(context.Background(), domain.PeriodDay, "2025-11-10")
	if err != nil {
		t.Fatalf("top products: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 products, got %d", len(top))
	}
	if top[0].ProductID != f.loose.ID || top[0].TotalQuantitySold != 5 {
		t.Fatalf("expected loose product first with 5 sold, got %+v", top[0])
	}
	boxed := top[1]
	if boxed.TotalQuantitySold != 4 || boxed.TotalMinimalUnits != 13 || boxed.QuantityLabel != "1 box, 3 units" {
		t.Fatalf("unexpected boxed ranking %+v", boxed)
	}
	if !boxed.TotalRevenue.Equal(decimal.RequireFromString("31.5")) {
		t.Fatalf("expected revenue 31.5, got %s", boxed.TotalRevenue)
	}

	month, err := agg.TopProducts(context.Background(), domain.PeriodMonth, "")
	if err != nil {
		t.Fatalf("top products month: %v", err)
	}
	if month[0].ProductID != f.boxed.ID || month[0].TotalQuantitySold != 13 {
		t.Fatalf("expected boxed product to lead the month, got %+v", month[0])
	}
	if !month[0].TotalRevenue.Equal(decimal.RequireFromString("54")) {
		t.Fatalf("expected month revenue from sale-time prices 54, got %s", month[0].TotalRevenue)
	}
}

func TestTopProductsCapsAtTen(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	at := time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC)
	engine := sale.NewEngine(repo, zap.NewNop(), sale.WithClock(func() time.Time { return at }))
	for i := 1; i <= 12; i++ {
		p, err := repo.CreateProduct(ctx, domain.Product{Name: "P", Stock: 100, UnitsPerBox: 1, UnitPrice: decimal.NewFromInt(1)})
		if err != nil {
			t.Fatalf("create product: %v", err)
		}
		if _, err := engine.CreateSale(ctx, []domain.CartLine{{ProductID: p.ID, Quantity: int64(i)}}); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}

	agg := NewAggregator(repo, lima, zap.NewNop(), WithClock(func() time.Time { return at }))
	top, err := agg.TopProducts(ctx, domain.PeriodDay, "2025-11-10")
	if err != nil {
		t.Fatalf("top products: %v", err)
	}
	if len(top) != 10 {
		t.Fatalf("expected 10 products, got %d", len(top))
	}
	if top[0].TotalQuantitySold != 12 || top[9].TotalQuantitySold != 3 {
		t.Fatalf("expected descending quantities 12..3, got first %d last %d", top[0].TotalQuantitySold, top[9].TotalQuantitySold)
	}
}

func TestDeletedProductStaysInHistory(t *testing.T) {
	f := newFixture(t)
	f.sell(t, time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC), domain.CartLine{ProductID: f.loose.ID, Quantity: 2})
	if err := f.repo.DeleteProduct(context.Background(), f.loose.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	agg := newAggregator(f, time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC))
	closing, err := agg.DailyClosing(context.Background(), "2025-11-10")
	if err != nil {
		t.Fatalf("daily closing: %v", err)
	}
	if !closing.TotalRevenue.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected revenue 2 after deletion, got %s", closing.TotalRevenue)
	}

	top, err := agg.TopProducts(context.Background(), domain.PeriodDay, "2025-11-10")
	if err != nil {
		t.Fatalf("top products: %v", err)
	}
	if len(top) != 1 || top[0].Name == "" || top[0].Name == "Venda" {
		t.Fatalf("expected placeholder name for deleted product, got %+v", top)
	}
}

func TestInvalidInputsAreValidationErrors(t *testing.T) {
	f := newFixture(t)
	agg := newAggregator(f, time.Now())

	if _, err := agg.DailyClosing(context.Background(), "10/11/2025"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
	if _, err := agg.TopProducts(context.Background(), domain.ReportPeriod("year"), ""); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for bad period, got %v", err)
	}
}

type mapCache struct {
	entries map[string][]byte
	sets    int
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.sets++
	return nil
}

func TestClosedDaysAreCachedButTodayIsLive(t *testing.T) {
	f := newFixture(t)
	past := time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC)
	now := time.Date(2025, 11, 12, 15, 0, 0, 0, time.UTC)
	f.sell(t, past, domain.CartLine{ProductID: f.loose.ID, Quantity: 2})
	f.sell(t, now, domain.CartLine{ProductID: f.loose.ID, Quantity: 1})

	reportCache := &mapCache{entries: map[string][]byte{}}
	agg := newAggregator(f, now, WithCache(reportCache, time.Minute))
	ctx := context.Background()

	first, err := agg.DailyClosing(ctx, "2025-11-10")
	if err != nil {
		t.Fatalf("daily closing: %v", err)
	}
	if _, ok := reportCache.entries["closing:2025-11-10"]; !ok {
		t.Fatalf("expected closed day to be cached")
	}

	// A late write to the closed day is not visible until the entry expires.
	f.sell(t, past, domain.CartLine{ProductID: f.loose.ID, Quantity: 5})
	second, err := agg.DailyClosing(ctx, "2025-11-10")
	if err != nil {
		t.Fatalf("daily closing: %v", err)
	}
	if !second.TotalRevenue.Equal(first.TotalRevenue) {
		t.Fatalf("expected cached revenue %s, got %s", first.TotalRevenue, second.TotalRevenue)
	}

	setsBefore := reportCache.sets
	today, err := agg.DailyClosing(ctx, "")
	if err != nil {
		t.Fatalf("daily closing today: %v", err)
	}
	if reportCache.sets != setsBefore {
		t.Fatalf("expected today's closing not to be cached")
	}
	if !today.TotalRevenue.Equal(decimal.NewFromInt(1)) || today.Date != "2025-11-12" {
		t.Fatalf("unexpected live closing %+v", today)
	}
}

func TestFormatQuantity(t *testing.T) {
	cases := []struct {
		units, perBox int64
		want          string
	}{
		{23, 10, "2 boxes, 3 units"},
		{10, 10, "1 box"},
		{7, 10, "7 units"},
		{1, 1, "1 unit"},
		{0, 10, "0 units"},
	}
	for _, tc := range cases {
		if got := FormatQuantity(tc.units, tc.perBox); got != tc.want {
			t.Fatalf("FormatQuantity(%d, %d) = %q, want %q", tc.units, tc.perBox, got, tc.want)
		}
	}
}
