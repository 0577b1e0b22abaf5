// Package printer renders CLI output with colour.
package printer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"stockledger/internal/core"
	"stockledger/internal/views"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
)

// Success prints a green line prefixed with a check mark.
func Success(w io.Writer, format string, a ...any) {
	green.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a yellow line.
func Warning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "! %s\n", fmt.Sprintf(format, a...))
}

// Error prints a red title with an explanation to w and returns a plain
// error carrying the title for cobra.
func Error(w io.Writer, title, explanation string) error {
	red.Fprintf(w, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(w, "%s\n", explanation)
	}
	return fmt.Errorf("%s", title)
}

// Dashboard prints summary counts, low-stock products and recent orders.
func Dashboard(w io.Writer, state core.State, summary views.Summary) {
	cyan.Fprintln(w, "Dashboard")
	fmt.Fprintf(w, "  products:        %d\n", summary.TotalProducts)
	fmt.Fprintf(w, "  suppliers:       %d\n", summary.TotalSuppliers)
	fmt.Fprintf(w, "  stock movements: %d\n", summary.TotalStockMovements)
	fmt.Fprintf(w, "  sales orders:    %d\n", summary.TotalSalesOrders)

	fmt.Fprintln(w)
	if len(summary.LowStock) == 0 {
		green.Fprintln(w, "No low stock products")
	} else {
		yellow.Fprintf(w, "Low stock (%d)\n", len(summary.LowStock))
		for _, p := range summary.LowStock {
			line := fmt.Sprintf("  %-12s %-24s %4d / min %d", p.SKU, p.Name, p.CurrentStock, p.MinStockLevel)
			if p.CurrentStock < 0 {
				red.Fprintln(w, line)
				continue
			}
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w)
	cyan.Fprintln(w, "Recent orders")
	if len(summary.RecentOrders) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, o := range summary.RecentOrders {
		fmt.Fprintf(w, "  %-36s %-10s %10s\n", o.ID, statusColor(o.Status).Sprint(o.Status), o.TotalAmount.StringFixed(2))
		lines, _ := views.OrderLines(state, o.ID)
		for _, l := range lines {
			fmt.Fprintf(w, "      %3d x %-24s @ %s\n", l.Quantity, l.ProductName, l.UnitPrice.StringFixed(2))
		}
	}

	if drift := views.LedgerDrift(state); len(drift) > 0 {
		fmt.Fprintln(w)
		parts := make([]string, 0, len(drift))
		for _, d := range drift {
			parts = append(parts, fmt.Sprintf("%s cached=%d ledger=%d", d.ProductID, d.Cached, d.Ledger))
		}
		red.Fprintf(w, "Ledger drift: %s\n", strings.Join(parts, "; "))
	}
}

func statusColor(s core.OrderStatus) *color.Color {
	switch s {
	case core.OrderCompleted:
		return green
	case core.OrderCancelled:
		return red
	default:
		return yellow
	}
}
