package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

// Resolve converts a submitted product form into the canonical record.
// Packaging and costs are recomputed from scratch on every call, so
// repeated edits never compound earlier derivations. The returned product
// carries no ID; callers assign it.
//
// With sachets the breakdown is authoritative: unitsPerBox is overwritten
// with sachetsPerBox * unitsPerSachet and the box cost is split per sachet,
// then per unit. Without sachets the box cost is split per unit directly.
// Stock passes through untouched since it is always in minimal units.
// A sachet breakdown too large for int64 has its units per sachet clamped.
func Resolve(in domain.ProductInput) domain.Product {
	p := domain.Product{
		Name:        strings.TrimSpace(in.Name),
		Barcode:     normalizeBarcode(in.Barcode),
		Stock:       IntOr(in.Stock, 0),
		HasSachets:  BoolOr(in.HasSachets, false),
		UnitPrice:   nonNegative(DecimalOr(in.UnitPrice, decimal.Zero)),
		BoxPrice:    nonNegative(DecimalOr(in.BoxPrice, decimal.Zero)),
		SachetPrice: nonNegative(DecimalOr(in.SachetPrice, decimal.Zero)),
		BoxCost:     nonNegative(DecimalOr(in.BoxCost, decimal.Zero)),
	}

	if p.HasSachets {
		p.SachetsPerBox = AtLeast(IntOr(in.SachetsPerBox, 0), 1)
		p.UnitsPerSachet = AtLeast(IntOr(in.UnitsPerSachet, 0), 1)
		if p.UnitsPerSachet > math.MaxInt64/p.SachetsPerBox {
			p.UnitsPerSachet = math.MaxInt64 / p.SachetsPerBox
		}
		p.UnitsPerBox = p.SachetsPerBox * p.UnitsPerSachet
		p.SachetCost = p.BoxCost.Div(decimal.NewFromInt(p.SachetsPerBox))
		p.UnitCost = p.SachetCost.Div(decimal.NewFromInt(p.UnitsPerSachet))
		return p
	}

	p.SachetsPerBox = nonNegativeInt(IntOr(in.SachetsPerBox, 0))
	p.UnitsPerSachet = nonNegativeInt(IntOr(in.UnitsPerSachet, 0))
	p.UnitsPerBox = AtLeast(IntOr(in.UnitsPerBox, 1), 1)
	p.SachetCost = decimal.Zero
	p.UnitCost = p.BoxCost.Div(decimal.NewFromInt(p.UnitsPerBox))
	return p
}

// normalizeBarcode accepts scanner input sent as a string or a JSON number.
func normalizeBarcode(raw any) *string {
	var code string
	switch v := raw.(type) {
	case string:
		code = v
	case json.Number:
		code = string(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		code = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		code = strconv.Itoa(v)
	case int64:
		code = strconv.FormatInt(v, 10)
	default:
		return nil
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return &code
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func nonNegativeInt(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
