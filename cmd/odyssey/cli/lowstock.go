package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-retail/jobs"
)

// ExitLowStock is returned when at least one product is under its minimum.
const ExitLowStock = 10

// LowStockCLI prints the catalog low-stock report.
type LowStockCLI struct {
	catalog jobs.LowStockLister
}

// NewLowStockCLI constructs the report helper.
func NewLowStockCLI(catalog jobs.LowStockLister) (*LowStockCLI, error) {
	if catalog == nil {
		return nil, errors.New("low stock cli: catalog not configured")
	}
	return &LowStockCLI{catalog: catalog}, nil
}

// LowStockOptions defines available flags for the low-stock command.
type LowStockOptions struct {
	Limit      int
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// LowStockSummary describes the JSON response for the low-stock command.
type LowStockSummary struct {
	OK       bool           `json:"ok"`
	Total    int            `json:"total"`
	Products []LowStockLine `json:"products"`
}

// LowStockLine is one product in the report.
type LowStockLine struct {
	ID       string `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	StockQty int    `json:"stock_qty"`
	MinStock int    `json:"min_stock"`
}

// ReportCommand runs the report and returns the process exit code.
func (c *LowStockCLI) ReportCommand(ctx context.Context, opts LowStockOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Limit < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "low-stock: --limit must not be negative")
		return 1
	}
	res, err := c.catalog.LowStock(ctx, opts.Limit)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "low-stock: %v\n", err)
		return 1
	}

	summary := LowStockSummary{OK: res.Total == 0, Total: res.Total, Products: make([]LowStockLine, 0, len(res.Items))}
	for _, p := range res.Items {
		summary.Products = append(summary.Products, LowStockLine{
			ID:       p.ID.String(),
			SKU:      p.SKU,
			Name:     p.Name,
			StockQty: p.StockQty,
			MinStock: p.MinStock,
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "low-stock: encode json: %v\n", err)
			return 1
		}
	} else {
		renderLowStockHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitLowStock
	}
	return 0
}

func renderLowStockHuman(out io.Writer, summary LowStockSummary) {
	if summary.OK {
		_, _ = fmt.Fprintln(out, "No products under minimum stock.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d product(s) under minimum stock", summary.Total)
	if len(summary.Products) < summary.Total {
		_, _ = fmt.Fprintf(out, ", showing %d", len(summary.Products))
	}
	_, _ = fmt.Fprintln(out, ":")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SKU\tNAME\tSTOCK\tMIN")
	for _, p := range summary.Products {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", p.SKU, p.Name, p.StockQty, p.MinStock)
	}
	_ = tw.Flush()
}
