// Package report renders inventory snapshots as JSON or CSV documents and
// stores them in an archive.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockledger/internal/archive"
	"stockledger/internal/core"
	"stockledger/internal/views"
)

// Format identifies a rendered report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// ProductRow is one line of the stock sheet.
type ProductRow struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	CurrentStock  int    `json:"current_stock"`
	MinStockLevel int    `json:"min_stock_level"`
	LedgerStock   int    `json:"ledger_stock"`
	LowStock      bool   `json:"low_stock"`
}

// Document is the full report payload.
type Document struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     views.Summary `json:"summary"`
	Products    []ProductRow  `json:"products"`
	Drift       []views.Drift `json:"drift,omitempty"`
}

// Build computes the report document for state.
func Build(state core.State, recent int, at time.Time) Document {
	rows := make([]ProductRow, 0, len(state.Products))
	for _, p := range state.Products {
		ledger, _ := views.RunningStock(state, p.ID)
		rows = append(rows, ProductRow{
			ID:            p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			Price:         p.Price.StringFixed(2),
			CurrentStock:  p.CurrentStock,
			MinStockLevel: p.MinStockLevel,
			LedgerStock:   ledger,
			LowStock:      p.CurrentStock <= p.MinStockLevel,
		})
	}
	return Document{
		GeneratedAt: at.UTC(),
		Summary:     views.Dashboard(state, recent),
		Products:    rows,
		Drift:       views.LedgerDrift(state),
	}
}

var csvHeader = []string{"id", "sku", "name", "price", "current_stock", "min_stock_level", "ledger_stock", "low_stock"}

// Render encodes doc. CSV carries the stock sheet only.
func Render(doc Document, format Format) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(csvHeader); err != nil {
			return nil, "", err
		}
		for _, row := range doc.Products {
			record := []string{
				row.ID,
				row.SKU,
				row.Name,
				row.Price,
				strconv.Itoa(row.CurrentStock),
				strconv.Itoa(row.MinStockLevel),
				strconv.Itoa(row.LedgerStock),
				strconv.FormatBool(row.LowStock),
			}
			if err := writer.Write(record); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", format)
	}
}

// Exporter renders reports and writes them to an archive.
type Exporter struct {
	store  archive.Store
	prefix string
	recent int
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPrefix sets the key prefix (default "reports/").
func WithPrefix(prefix string) Option {
	return func(e *Exporter) { e.prefix = prefix }
}

// WithRecentOrders sets how many recent orders the summary lists.
func WithRecentOrders(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.recent = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(e *Exporter) { e.now = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter returns an exporter writing to store.
func NewExporter(store archive.Store, opts ...Option) *Exporter {
	e := &Exporter{
		store:  store,
		prefix: "reports/",
		recent: views.DefaultRecentOrders,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders state once per format and stores each rendering under
// <prefix><yyyy>/<mm>/<timestamp>-<id>.<format>. Duplicate formats are
// collapsed; no formats means JSON and CSV.
func (e *Exporter) Export(ctx context.Context, state core.State, formats ...Format) ([]archive.Info, error) {
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	at := e.now().UTC()
	doc := Build(state, e.recent, at)
	id := e.newID()
	base := fmt.Sprintf("%s%s/%s-%s", e.prefix, at.Format("2006/01"), at.Format("20060102T150405Z"), id)

	seen := make(map[Format]struct{}, len(formats))
	infos := make([]archive.Info, 0, len(formats))
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		payload, contentType, err := Render(doc, format)
		if err != nil {
			return infos, err
		}
		key := base + "." + string(format)
		info, err := e.store.Put(ctx, key, bytes.NewReader(payload), archive.PutOptions{
			ContentType: contentType,
			Metadata: map[string]string{
				"report_id": id,
				"format":    string(format),
				"products":  strconv.Itoa(len(doc.Products)),
			},
		})
		if err != nil {
			return infos, fmt.Errorf("store report %s: %w", key, err)
		}
		e.logger.Info("report archived",
			zap.String("key", info.Key),
			zap.String("format", string(format)),
			zap.Int64("size_bytes", info.Size),
		)
		infos = append(infos, info)
	}
	return infos, nil
}
