package report

import (
	"fmt"
	"strings"

	"pharmapos/backend/internal/domain"
)

// FormatQuantity renders a minimal-unit count as whole boxes plus loose
// units, e.g. "2 boxes, 3 units". Products sold only by the unit render as
// a plain unit count.
func FormatQuantity(minimalUnits int64, unitsPerBox int64) string {
	if minimalUnits <= 0 {
		return "0 units"
	}
	if unitsPerBox <= 1 {
		return plural(minimalUnits, "unit", "units")
	}

	boxes := minimalUnits / unitsPerBox
	loose := minimalUnits % unitsPerBox
	parts := make([]string, 0, 2)
	if boxes > 0 {
		parts = append(parts, plural(boxes, "box", "boxes"))
	}
	if loose > 0 {
		parts = append(parts, plural(loose, "unit", "units"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int64, one string, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// DisplayName tags non-unit lines with the granularity they were sold at.
func DisplayName(name string, unitType domain.SaleUnitType) string {
	switch unitType {
	case domain.SaleUnitBox:
		return name + " (box)"
	case domain.SaleUnitSachet:
		return name + " (sachet)"
	default:
		return name
	}
}

func productName(line domain.SaleLine) string {
	if line.ProductExists {
		return line.ProductName
	}
	return fmt.Sprintf("Deleted product #%d", line.ProductID)
}

// minimalUnitsPerItem uses the product's current packaging; lines of deleted
// products count as single units.
func minimalUnitsPerItem(line domain.SaleLine) int64 {
	switch line.SaleUnitType {
	case domain.SaleUnitBox:
		if line.UnitsPerBox > 1 {
			return line.UnitsPerBox
		}
	case domain.SaleUnitSachet:
		if line.UnitsPerSachet > 1 {
			return line.UnitsPerSachet
		}
	}
	return 1
}
