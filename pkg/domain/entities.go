// Package domain defines the inventory entities, value types, change records
// and rule evaluation primitives used by stockledger.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record held by the store.
type EntityType string

// Supported entity type identifiers used in Change records and journal buckets.
const (
	// EntityProduct identifies a catalog product record.
	EntityProduct EntityType = "product"
	// EntitySupplier identifies a supplier record.
	EntitySupplier EntityType = "supplier"
	// EntityStockMovement identifies a ledger entry.
	EntityStockMovement EntityType = "stock_movement"
	// EntitySalesOrder identifies a sales order record.
	EntitySalesOrder EntityType = "sales_order"
)

// MovementType tells whether a ledger entry adds or removes stock.
type MovementType string

// Ledger directions.
const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// Sign returns +1 for IN, -1 for OUT and 0 for anything else.
func (t MovementType) Sign() int {
	switch t {
	case MovementIn:
		return 1
	case MovementOut:
		return -1
	default:
		return 0
	}
}

// Valid reports whether t is one of the known directions.
func (t MovementType) Valid() bool { return t.Sign() != 0 }

// OrderStatus enumerates the sales order lifecycle.
//
//	PENDING → COMPLETED
//	PENDING → CANCELLED
type OrderStatus string

// Canonical sales order statuses.
const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return s == OrderPending || s.Terminal()
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock rejects the transition.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Product is a catalog entry. CurrentStock is the cached aggregate of the
// movement ledger and only changes when a movement is applied.
type Product struct {
	ID            string          `json:"id" yaml:"id"`
	SKU           string          `json:"sku" yaml:"sku"`
	Name          string          `json:"name" yaml:"name"`
	Description   string          `json:"description,omitempty" yaml:"description,omitempty"`
	SupplierID    *string         `json:"supplier_id,omitempty" yaml:"supplier_id,omitempty"`
	Price         decimal.Decimal `json:"price" yaml:"price"`
	CurrentStock  int             `json:"current_stock" yaml:"current_stock"`
	MinStockLevel int             `json:"min_stock_level" yaml:"min_stock_level"`
	OpeningStock  int             `json:"opening_stock" yaml:"opening_stock"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Supplier is a vendor directory entry with no invariant coupling to stock.
type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StockMovement is an immutable ledger entry.
type StockMovement struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	Type      MovementType `json:"type"`
	Quantity  int          `json:"quantity"`
	Notes     string       `json:"notes,omitempty"`
	OrderID   *string      `json:"order_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Delta returns the signed stock adjustment the movement applies.
func (m StockMovement) Delta() int { return m.Type.Sign() * m.Quantity }

// SalesOrder is a customer order header with its ordered line items.
type SalesOrder struct {
	ID          string          `json:"id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItem     `json:"items"`
}

// OrderItem is a sales order line. UnitPrice is captured at creation and
// never follows later catalog price changes.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// LineTotal returns UnitPrice × Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderTotal sums the line totals of items.
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// StampOrderID returns a copy of items with OrderID set to orderID. Items are
// built before the order id is minted and stamped afterwards.
func StampOrderID(items []OrderItem, orderID string) []OrderItem {
	out := make([]OrderItem, len(items))
	for i, item := range items {
		item.OrderID = orderID
		out[i] = item
	}
	return out
}
