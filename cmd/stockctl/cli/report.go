package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bleu-ims/stockledger/internal/stock"
)

// ReportSource reads ledger summaries.
type ReportSource interface {
	Reconcile(ctx context.Context, category stock.Category) ([]stock.ReconcileRow, error)
	LowStock(ctx context.Context, category stock.Category) ([]stock.LowStockAlert, error)
}

// ReportOptions selects what a report command prints and where.
type ReportOptions struct {
	Categories []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReportCLI prints ledger reports for operators.
type ReportCLI struct {
	source ReportSource
}

// NewReportCLI constructs a ReportCLI.
func NewReportCLI(source ReportSource) *ReportCLI {
	return &ReportCLI{source: source}
}

// DriftCommand prints items whose aggregate disagrees with their batches.
// It exits 0 when nothing drifted, 1 on drift and 2 on error.
func (c *ReportCLI) DriftCommand(ctx context.Context, opts ReportOptions) int {
	categories, err := resolveCategories(opts.Categories)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 2
	}
	var rows []stock.ReconcileRow
	for _, category := range categories {
		found, err := c.source.Reconcile(ctx, category)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "reconcile %s: %v\n", category, err)
			return 2
		}
		rows = append(rows, found...)
	}
	if opts.JSONOutput {
		if rows == nil {
			rows = []stock.ReconcileRow{}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(rows); err != nil {
			fmt.Fprintln(opts.Stderr, err)
			return 2
		}
	} else {
		tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tITEM\tNAME\tAGGREGATE\tBATCHES\tDRIFT")
		for _, row := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
				row.Category, row.ItemID, row.Name, row.Aggregate, row.BatchTotal, row.Drift)
		}
		_ = tw.Flush()
	}
	if len(rows) > 0 {
		return 1
	}
	return 0
}

// LowStockCommand prints items currently in Low Stock.
func (c *ReportCLI) LowStockCommand(ctx context.Context, opts ReportOptions) int {
	categories, err := resolveCategories(opts.Categories)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 2
	}
	var alerts []stock.LowStockAlert
	for _, category := range categories {
		found, err := c.source.LowStock(ctx, category)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "low stock %s: %v\n", category, err)
			return 2
		}
		alerts = append(alerts, found...)
	}
	if opts.JSONOutput {
		if alerts == nil {
			alerts = []stock.LowStockAlert{}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(alerts); err != nil {
			fmt.Fprintln(opts.Stderr, err)
			return 2
		}
		return 0
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tITEM\tNAME\tIN STOCK\tUNIT\tREORDER AT")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", a.Category, a.ItemID, a.Name, a.InStock, a.Unit, a.ReorderLevel)
	}
	_ = tw.Flush()
	return 0
}

func resolveCategories(raw []string) ([]stock.Category, error) {
	if len(raw) == 0 {
		return stock.Categories, nil
	}
	out := make([]stock.Category, 0, len(raw))
	for _, r := range raw {
		c, err := stock.ParseCategory(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
