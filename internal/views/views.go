// Package views computes read-side projections of the store state. Every
// function recomputes from the state it is given; nothing is cached.
package views

import (
	"sort"

	"stockledger/internal/core"
	"stockledger/pkg/domain"
)

// DefaultRecentOrders is the number of orders shown on the dashboard.
const DefaultRecentOrders = 5

// UnknownProductName labels lines whose product id does not resolve.
const UnknownProductName = "Unknown Product"

// HistoryOrder selects the ordering of MovementHistory.
type HistoryOrder int

const (
	// LedgerOrder keeps append order (oldest first).
	LedgerOrder HistoryOrder = iota
	// NewestFirst sorts by CreatedAt descending, ties in reverse append order.
	NewestFirst
)

// LowStock returns products whose stock is at or below their minimum level,
// in catalog order.
func LowStock(state core.State) []domain.Product {
	var out []domain.Product
	for _, p := range state.Products {
		if p.CurrentStock <= p.MinStockLevel {
			out = append(out, p)
		}
	}
	return out
}

// RecentOrders returns at most n orders sorted by CreatedAt descending.
// Orders created at the same instant keep insertion order.
func RecentOrders(state core.State, n int) []domain.SalesOrder {
	if n <= 0 || len(state.SalesOrders) == 0 {
		return nil
	}
	orders := state.ListSalesOrders()
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if len(orders) > n {
		orders = orders[:n]
	}
	return orders
}

// MovementHistory returns the ledger entries for productID.
func MovementHistory(state core.State, productID string, order HistoryOrder) []domain.StockMovement {
	var out []domain.StockMovement
	for _, m := range state.StockMovements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	if order == NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

// RunningStock recomputes a product's stock from its opening balance and the
// ledger. The second result is false when the product does not exist.
func RunningStock(state core.State, productID string) (int, bool) {
	p, ok := state.FindProduct(productID)
	if !ok {
		return 0, false
	}
	total := p.OpeningStock
	for _, m := range state.StockMovements {
		if m.ProductID == productID {
			total += m.Delta()
		}
	}
	return total, true
}

// Drift describes a product whose cached stock disagrees with the ledger.
type Drift struct {
	ProductID string
	Cached    int
	Ledger    int
}

// LedgerDrift lists every product whose CurrentStock differs from its
// running ledger total. It is empty whenever the store invariants hold.
func LedgerDrift(state core.State) []Drift {
	sums := make(map[string]int, len(state.Products))
	for _, m := range state.StockMovements {
		sums[m.ProductID] += m.Delta()
	}
	var out []Drift
	for _, p := range state.Products {
		ledger := p.OpeningStock + sums[p.ID]
		if ledger != p.CurrentStock {
			out = append(out, Drift{ProductID: p.ID, Cached: p.CurrentStock, Ledger: ledger})
		}
	}
	return out
}

// OrderLine is an order item joined with its product name for display.
type OrderLine struct {
	domain.OrderItem
	ProductName string
}

// OrderLines returns the items of orderID with product names resolved.
func OrderLines(state core.State, orderID string) ([]OrderLine, bool) {
	order, ok := state.FindSalesOrder(orderID)
	if !ok {
		return nil, false
	}
	out := make([]OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		name := UnknownProductName
		if p, found := state.FindProduct(item.ProductID); found {
			name = p.Name
		}
		out = append(out, OrderLine{OrderItem: item, ProductName: name})
	}
	return out, true
}

// Summary is the dashboard projection.
type Summary struct {
	TotalProducts       int                 `json:"total_products"`
	TotalSuppliers      int                 `json:"total_suppliers"`
	TotalStockMovements int                 `json:"total_stock_movements"`
	TotalSalesOrders    int                 `json:"total_sales_orders"`
	LowStock            []domain.Product    `json:"low_stock"`
	RecentOrders        []domain.SalesOrder `json:"recent_orders"`
}

// Dashboard computes the summary with up to recent orders listed.
func Dashboard(state core.State, recent int) Summary {
	return Summary{
		TotalProducts:       len(state.Products),
		TotalSuppliers:      len(state.Suppliers),
		TotalStockMovements: len(state.StockMovements),
		TotalSalesOrders:    len(state.SalesOrders),
		LowStock:            LowStock(state),
		RecentOrders:        RecentOrders(state, recent),
	}
}
