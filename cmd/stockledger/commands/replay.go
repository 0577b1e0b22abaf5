package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stockledger/internal/app"
	"stockledger/internal/printer"
	"stockledger/internal/report"
	"stockledger/internal/script"
	"stockledger/internal/views"
)

var (
	replayJSON    bool
	replayExport  []string
	reportFormats []string
)

var replayCmd = &cobra.Command{
	Use:   "replay SCRIPT",
	Short: "Replay a YAML session script and print the dashboard",
	Long: `Replay runs every step of a session script against a fresh store and
prints the resulting dashboard.

Script format:
  name: morning shift
  steps:
    - op: add_supplier
      ref: acme
      name: Acme Fasteners
    - op: add_product
      ref: bolt
      name: Bolt M10
      supplier: acme
      price: "0.40"
      stock: 100
      min_stock: 20
    - op: create_order
      ref: o1
      lines:
        - product: bolt
          quantity: 3
    - op: complete_order
      order: o1

Supported ops: add_supplier, update_supplier, add_product, update_product,
record_movement, create_order (two_phase: true for the legacy flow),
complete_order, cancel_order.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var reportCmd = &cobra.Command{
	Use:   "report SCRIPT",
	Short: "Replay a session script and archive the inventory report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print the dashboard summary as JSON")
	replayCmd.Flags().StringSliceVar(&replayExport, "export", nil, "Also archive a report in these formats (json,csv)")
	reportCmd.Flags().StringSliceVarP(&reportFormats, "format", "f", []string{"json", "csv"}, "Report formats to archive")
	rootCmd.AddCommand(replayCmd, reportCmd)
}

func replay(cmd *cobra.Command, a *app.App, path string) error {
	s, err := script.Load(path)
	if err != nil {
		return printer.Error(cmd.ErrOrStderr(), "Cannot read script", err.Error())
	}
	results, err := script.NewRunner(a.Service).Run(cmd.Context(), s)
	if err != nil {
		return printer.Error(cmd.ErrOrStderr(), "Replay failed", err.Error())
	}
	a.Logger.Info("script replayed", zap.String("script", path), zap.Int("steps", len(results)))
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	formats, err := parseFormats(cmd, replayExport)
	if err != nil {
		return err
	}
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if err := replay(cmd, a, args[0]); err != nil {
		return err
	}
	state := a.Store.State()
	summary := views.Dashboard(state, a.Config.Views.RecentOrders)
	out := cmd.OutOrStdout()
	if replayJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	} else {
		printer.Dashboard(out, state, summary)
	}
	if len(formats) > 0 {
		return export(cmd, a, formats)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	formats, err := parseFormats(cmd, reportFormats)
	if err != nil {
		return err
	}
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer shutdown(a)

	if err := replay(cmd, a, args[0]); err != nil {
		return err
	}
	return export(cmd, a, formats)
}

func export(cmd *cobra.Command, a *app.App, formats []report.Format) error {
	infos, err := a.Exporter.Export(cmd.Context(), a.Store.State(), formats...)
	if err != nil {
		return printer.Error(cmd.ErrOrStderr(), "Report export failed", err.Error())
	}
	for _, info := range infos {
		printer.Success(cmd.OutOrStdout(), "%s (%d bytes, %s)", info.Key, info.Size, a.Archive.Driver())
	}
	return nil
}

func parseFormats(cmd *cobra.Command, raw []string) ([]report.Format, error) {
	formats := make([]report.Format, 0, len(raw))
	for _, r := range raw {
		f, err := report.ParseFormat(r)
		if err != nil {
			return nil, printer.Error(cmd.ErrOrStderr(), "Invalid report format", err.Error())
		}
		formats = append(formats, f)
	}
	return formats, nil
}
