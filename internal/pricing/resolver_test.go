package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

func TestResolveWithSachetsDerivesUnitsAndCosts(t *testing.T) {
	p := Resolve(domain.ProductInput{
		Name:           "  Sal de Frutas ",
		HasSachets:     true,
		SachetsPerBox:  10.0,
		UnitsPerSachet: 2.0,
		UnitsPerBox:    999.0,
		BoxCost:        20.0,
		Stock:          40.0,
	})

	if p.Name != "Sal de Frutas" {
		t.Fatalf("expected trimmed name, got %q", p.Name)
	}
	if p.UnitsPerBox != 20 {
		t.Fatalf("expected unitsPerBox 20, got %d", p.UnitsPerBox)
	}
	if !p.SachetCost.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected sachetCost 2, got %s", p.SachetCost)
	}
	if !p.UnitCost.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected unitCost 1, got %s", p.UnitCost)
	}
	if p.Stock != 40 {
		t.Fatalf("expected stock passthrough 40, got %d", p.Stock)
	}
}

func TestResolveWithoutSachetsSplitsBoxCostPerUnit(t *testing.T) {
	p := Resolve(domain.ProductInput{
		Name:        "Aspirina 500mg",
		Barcode:     "ASP001",
		UnitPrice:   "2.50",
		BoxPrice:    "24",
		UnitsPerBox: "10",
		BoxCost:     "8",
		Stock:       "100",
	})

	if p.HasSachets {
		t.Fatalf("expected hasSachets false")
	}
	if p.UnitsPerBox != 10 {
		t.Fatalf("expected unitsPerBox 10, got %d", p.UnitsPerBox)
	}
	if !p.SachetCost.IsZero() {
		t.Fatalf("expected sachetCost 0, got %s", p.SachetCost)
	}
	if !p.UnitCost.Equal(decimal.RequireFromString("0.8")) {
		t.Fatalf("expected unitCost 0.8, got %s", p.UnitCost)
	}
	if p.Barcode == nil || *p.Barcode != "ASP001" {
		t.Fatalf("expected barcode ASP001, got %v", p.Barcode)
	}
	if !p.UnitPrice.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected unitPrice 2.5, got %s", p.UnitPrice)
	}
}

func TestResolveAppliesFloorsAndDefaults(t *testing.T) {
	p := Resolve(domain.ProductInput{
		Name:        "Suelto",
		Barcode:     "   ",
		UnitPrice:   "abc",
		UnitsPerBox: 0.0,
		BoxCost:     5.0,
	})

	if p.UnitsPerBox != 1 {
		t.Fatalf("expected unitsPerBox floor 1, got %d", p.UnitsPerBox)
	}
	if !p.UnitCost.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected unitCost 5, got %s", p.UnitCost)
	}
	if !p.UnitPrice.IsZero() {
		t.Fatalf("expected unparsable price to default to 0, got %s", p.UnitPrice)
	}
	if p.Barcode != nil {
		t.Fatalf("expected blank barcode to become nil, got %q", *p.Barcode)
	}
	if p.Stock != 0 {
		t.Fatalf("expected missing stock to default to 0, got %d", p.Stock)
	}

	sachets := Resolve(domain.ProductInput{Name: "X", HasSachets: "true", SachetsPerBox: "0", BoxCost: 3.0})
	if sachets.SachetsPerBox != 1 || sachets.UnitsPerSachet != 1 || sachets.UnitsPerBox != 1 {
		t.Fatalf("expected sachet floors of 1, got %+v", sachets)
	}
	if !sachets.UnitCost.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected unitCost 3, got %s", sachets.UnitCost)
	}

	huge := Resolve(domain.ProductInput{Name: "Y", Stock: "1e19", UnitsPerBox: "-1e30"})
	if huge.Stock != 0 || huge.UnitsPerBox != 1 {
		t.Fatalf("expected out-of-range counts to default, got stock=%d unitsPerBox=%d", huge.Stock, huge.UnitsPerBox)
	}

	wide := Resolve(domain.ProductInput{
		Name: "Z", HasSachets: true, SachetsPerBox: "4294967296", UnitsPerSachet: "4294967296", BoxCost: 10.0,
	})
	if wide.SachetsPerBox != 4294967296 || wide.UnitsPerSachet != math.MaxInt64/4294967296 {
		t.Fatalf("expected units per sachet clamped, got %+v", wide)
	}
	if wide.UnitsPerBox < 1 || wide.UnitsPerBox != wide.SachetsPerBox*wide.UnitsPerSachet {
		t.Fatalf("expected positive unitsPerBox matching the breakdown, got %d", wide.UnitsPerBox)
	}
}

func TestResolveAcceptsNumericBarcode(t *testing.T) {
	var in domain.ProductInput
	if err := json.Unmarshal([]byte(`{"name":"Loratadina","barcode":7501234567890}`), &in); err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := Resolve(in)
	if p.Barcode == nil || *p.Barcode != "7501234567890" {
		t.Fatalf("expected numeric barcode as text, got %v", p.Barcode)
	}

	if p := Resolve(domain.ProductInput{Name: "X", Barcode: json.Number("0042")}); p.Barcode == nil || *p.Barcode != "0042" {
		t.Fatalf("expected json.Number barcode to keep its digits, got %v", p.Barcode)
	}
	if p := Resolve(domain.ProductInput{Name: "X", Barcode: true}); p.Barcode != nil {
		t.Fatalf("expected unsupported barcode type to become nil, got %q", *p.Barcode)
	}
}

func TestResolveIsIdempotentOnResubmission(t *testing.T) {
	in := domain.ProductInput{Name: "A", HasSachets: true, SachetsPerBox: 5.0, UnitsPerSachet: 4.0, BoxCost: 40.0}
	first := Resolve(in)

	in.UnitsPerBox = float64(first.UnitsPerBox)
	second := Resolve(in)

	if first.UnitsPerBox != second.UnitsPerBox || !first.UnitCost.Equal(second.UnitCost) {
		t.Fatalf("expected stable derivation, got %+v then %+v", first, second)
	}
}

func TestResolveDecodedJSONForm(t *testing.T) {
	var in domain.ProductInput
	body := `{"name":"Ibupirac 200mg","unitsPerBox":10,"boxCost":"10","hasSachets":0,"stock":150}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("decode: %v", err)
	}

	p := Resolve(in)
	if p.UnitsPerBox != 10 || p.Stock != 150 || p.HasSachets {
		t.Fatalf("unexpected product %+v", p)
	}
	if !p.UnitCost.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected unitCost 1, got %s", p.UnitCost)
	}
}

func TestParseHelpers(t *testing.T) {
	if got := IntOr("7.9", 0); got != 7 {
		t.Fatalf("expected truncation to 7, got %d", got)
	}
	if got := IntOr("", 3); got != 3 {
		t.Fatalf("expected default 3, got %d", got)
	}
	if got := IntOr(json.Number("12"), 0); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := IntOr("1e19", 5); got != 5 {
		t.Fatalf("expected default for value above int64, got %d", got)
	}
	if got := IntOr(-1e19, 5); got != 5 {
		t.Fatalf("expected default for value below int64, got %d", got)
	}
	if got := IntOr("9223372036854775807.5", 0); got != math.MaxInt64 {
		t.Fatalf("expected max int64 after truncation, got %d", got)
	}
	if !BoolOr("1", false) || BoolOr("no", true) || !BoolOr(nil, true) {
		t.Fatalf("unexpected bool coercion")
	}
	if got := DecimalOr(map[string]any{}, decimal.NewFromInt(9)); !got.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("expected default for unsupported type, got %s", got)
	}
}
