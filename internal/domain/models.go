package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleUnitType string

const (
	SaleUnitUnit   SaleUnitType = "unit"
	SaleUnitSachet SaleUnitType = "sachet"
	SaleUnitBox    SaleUnitType = "box"
)

// ParseSaleUnitType maps anything unrecognised to unit, the fallback sale granularity.
func ParseSaleUnitType(raw string) SaleUnitType {
	switch SaleUnitType(raw) {
	case SaleUnitBox:
		return SaleUnitBox
	case SaleUnitSachet:
		return SaleUnitSachet
	default:
		return SaleUnitUnit
	}
}

// Product is the canonical stored record. Stock is always in minimal units.
type Product struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Barcode        *string         `json:"barcode" db:"barcode"`
	Stock          int64           `json:"stock" db:"stock"`
	UnitsPerBox    int64           `json:"unitsPerBox" db:"units_per_box"`
	HasSachets     bool            `json:"hasSachets" db:"has_sachets"`
	SachetsPerBox  int64           `json:"sachetsPerBox" db:"sachets_per_box"`
	UnitsPerSachet int64           `json:"unitsPerSachet" db:"units_per_sachet"`
	UnitPrice      decimal.Decimal `json:"unitPrice" db:"unit_price"`
	BoxPrice       decimal.Decimal `json:"boxPrice" db:"box_price"`
	SachetPrice    decimal.Decimal `json:"sachetPrice" db:"sachet_price"`
	UnitCost       decimal.Decimal `json:"unitCost" db:"unit_cost"`
	BoxCost        decimal.Decimal `json:"boxCost" db:"box_cost"`
	SachetCost     decimal.Decimal `json:"sachetCost" db:"sachet_cost"`
}

// ProductInput is the raw submitted product form. Numeric fields stay
// untyped so they can arrive as JSON numbers, strings or be absent.
type ProductInput struct {
	Name           string `json:"name"`
	Barcode        any    `json:"barcode"`
	UnitPrice      any    `json:"unitPrice"`
	BoxPrice       any    `json:"boxPrice"`
	SachetPrice    any    `json:"sachetPrice"`
	HasSachets     any    `json:"hasSachets"`
	SachetsPerBox  any    `json:"sachetsPerBox"`
	UnitsPerSachet any    `json:"unitsPerSachet"`
	UnitsPerBox    any    `json:"unitsPerBox"`
	BoxCost        any    `json:"boxCost"`
	Stock          any    `json:"stock"`
}

type CartLine struct {
	ProductID    int64        `json:"productId"`
	Quantity     int64        `json:"quantity"`
	SaleUnitType SaleUnitType `json:"saleUnitType"`
}

type SaleRequest struct {
	Items []CartLine `json:"items"`
}

type SaleResult struct {
	SaleID int64           `json:"saleId"`
	Total  decimal.Decimal `json:"total"`
}

type Sale struct {
	ID        int64           `json:"id"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"timestamp"`
}

// SaleItem snapshots price and cost at sale time; they are never recomputed.
type SaleItem struct {
	ID              int64           `json:"id"`
	SaleID          int64           `json:"saleId"`
	ProductID       int64           `json:"productId"`
	Quantity        int64           `json:"quantity"`
	SaleUnitType    SaleUnitType    `json:"saleUnitType"`
	UnitPriceAtSale decimal.Decimal `json:"unitPriceAtSale"`
	UnitCostAtSale  decimal.Decimal `json:"unitCostAtSale"`
}

// SaleLine is one persisted sale item joined with its sale header and the
// product's current display metadata. Product fields are zero when the
// product has been deleted since the sale.
type SaleLine struct {
	SaleID          int64
	SaleTotal       decimal.Decimal
	SaleCreatedAt   time.Time
	ProductID       int64
	Quantity        int64
	SaleUnitType    SaleUnitType
	UnitPriceAtSale decimal.Decimal
	UnitCostAtSale  decimal.Decimal
	ProductExists   bool
	ProductName     string
	UnitsPerBox     int64
	UnitsPerSachet  int64
}

type SaleView struct {
	SaleID    int64           `json:"saleId"`
	Timestamp string          `json:"timestamp"`
	Total     decimal.Decimal `json:"total"`
	Items     []SaleItemView  `json:"items"`
}

type SaleItemView struct {
	ProductID       int64           `json:"productId"`
	Name            string          `json:"name"`
	DisplayName     string          `json:"displayName"`
	SaleUnitType    SaleUnitType    `json:"saleUnitType"`
	Quantity        int64           `json:"quantity"`
	UnitPriceAtSale decimal.Decimal `json:"unitPriceAtSale"`
	UnitCostAtSale  decimal.Decimal `json:"unitCostAtSale"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Profit          decimal.Decimal `json:"profit"`
}

type MonthlySales struct {
	Month      string          `json:"month"`
	Sales      []SaleView      `json:"sales"`
	TotalMonth decimal.Decimal `json:"totalMonth"`
}

type DailySales struct {
	Date     string          `json:"date"`
	Sales    []SaleView      `json:"sales"`
	TotalDay decimal.Decimal `json:"totalDay"`
}

type DailyClosing struct {
	Date         string          `json:"date"`
	SaleCount    int64           `json:"saleCount"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	NetProfit    decimal.Decimal `json:"netProfit"`
}

type TopProduct struct {
	ProductID         int64           `json:"productId"`
	Name              string          `json:"name"`
	UnitsPerBox       int64           `json:"unitsPerBox"`
	TotalQuantitySold int64           `json:"totalQuantitySold"`
	TotalMinimalUnits int64           `json:"totalMinimalUnits"`
	QuantityLabel     string          `json:"quantityLabel"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
}

type ReportPeriod string

const (
	PeriodDay   ReportPeriod = "day"
	PeriodMonth ReportPeriod = "month"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ProfileUpdateRequest renames the caller, changes their password, or both.
// Empty fields are left unchanged.
type ProfileUpdateRequest struct {
	CurrentPassword string `json:"current_password"`
	NewUsername     string `json:"new_username"`
	NewPassword     string `json:"new_password"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string    `db:"username"`
	Password  string    `db:"password"`
	Role      string    `db:"role"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
