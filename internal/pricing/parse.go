package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Product forms are never rejected for bad numbers. Every numeric field goes
// through one of the helpers below, which return the given default whenever
// the value is missing, empty, unparsable or non-finite.

// DecimalOr coerces a raw form value into a decimal.
func DecimalOr(raw any, def decimal.Decimal) decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return def
	case decimal.Decimal:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return def
		}
		return decimal.NewFromFloat(v)
	case float32:
		return DecimalOr(float64(v), def)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case json.Number:
		return DecimalOr(string(v), def)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return def
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return def
		}
		return d
	case bool:
		if v {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	default:
		return def
	}
}

var (
	minInt = decimal.NewFromInt(math.MinInt64)
	maxInt = decimal.NewFromInt(math.MaxInt64)
)

// IntOr coerces a raw form value into a whole number, truncating fractions.
// Values outside the int64 range fall back to def.
func IntOr(raw any, def int64) int64 {
	if raw == nil {
		return def
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return def
	}

	d := DecimalOr(raw, minInt)
	if d.Equal(minInt) {
		return def
	}
	d = d.Truncate(0)
	if d.LessThan(minInt) || d.GreaterThan(maxInt) {
		return def
	}
	return d.IntPart()
}

// AtLeast clamps n to min.
func AtLeast(n int64, min int64) int64 {
	if n < min {
		return min
	}
	return n
}

// BoolOr accepts JSON booleans, 0/1 numbers and the usual string spellings.
func BoolOr(raw any, def bool) bool {
	switch v := raw.(type) {
	case nil:
		return def
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		return BoolOr(string(v), def)
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "":
			return def
		case "on", "yes", "si", "sí":
			return true
		case "off", "no":
			return false
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}
