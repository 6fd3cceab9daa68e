package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-retail/internal/catalog"
	"github.com/odyssey-erp/odyssey-retail/jobs"
)

type stubCatalog struct {
	res catalog.LowStockResult
	err error
}

func (s stubCatalog) LowStock(ctx context.Context, limit int) (catalog.LowStockResult, error) {
	return s.res, s.err
}

func TestReportCommandJSONLowStock(t *testing.T) {
	lister := stubCatalog{res: catalog.LowStockResult{
		Items: []catalog.Product{{ID: uuid.New(), SKU: "YER-500", Name: "Yerba 500g", StockQty: 1, MinStock: 6}},
		Total: 3,
	}}
	cli, err := NewLowStockCLI(lister)
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	exitCode := cli.ReportCommand(context.Background(), LowStockOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, ExitLowStock, exitCode)
	require.Empty(t, stderr.String())

	var summary LowStockSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, 3, summary.Total)
	require.Len(t, summary.Products, 1)
	require.Equal(t, "YER-500", summary.Products[0].SKU)
}

func TestReportCommandHuman(t *testing.T) {
	cli, err := NewLowStockCLI(stubCatalog{res: catalog.LowStockResult{Items: []catalog.Product{}}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	require.Zero(t, cli.ReportCommand(context.Background(), LowStockOptions{Stdout: stdout}))
	require.Contains(t, stdout.String(), "No products under minimum stock")

	cli, err = NewLowStockCLI(stubCatalog{res: catalog.LowStockResult{
		Items: []catalog.Product{{SKU: "SAL-1", Name: "Sal", StockQty: 0, MinStock: 2}},
		Total: 2,
	}})
	require.NoError(t, err)
	stdout.Reset()
	require.Equal(t, ExitLowStock, cli.ReportCommand(context.Background(), LowStockOptions{Stdout: stdout}))
	require.Contains(t, stdout.String(), "2 product(s) under minimum stock, showing 1")
	require.Contains(t, stdout.String(), "SAL-1")
}

func TestReportCommandErrors(t *testing.T) {
	_, err := NewLowStockCLI(nil)
	require.Error(t, err)

	cli, err := NewLowStockCLI(stubCatalog{err: errors.New("connection refused")})
	require.NoError(t, err)
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.ReportCommand(context.Background(), LowStockOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "connection refused")

	stderr.Reset()
	require.Equal(t, 1, cli.ReportCommand(context.Background(), LowStockOptions{Limit: -1, Stderr: stderr}))
	require.Contains(t, stderr.String(), "--limit")
}

func TestManualTask(t *testing.T) {
	task, err := manualTask(jobs.TaskLowStockScan, time.Now())
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLowStockScan, task.Type())

	_, err = manualTask(jobs.TaskLowStockAlert, time.Now())
	require.Error(t, err)

	var nilCLI *JobsCLI
	_, err = nilCLI.Trigger(context.Background(), jobs.TaskLowStockScan)
	require.Error(t, err)
}
