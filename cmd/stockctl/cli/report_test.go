package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bleu-ims/stockledger/internal/stock"
	"github.com/bleu-ims/stockledger/jobs"
)

type stubReportSource struct {
	drift map[stock.Category][]stock.ReconcileRow
	low   map[stock.Category][]stock.LowStockAlert
	err   error
}

func (s stubReportSource) Reconcile(ctx context.Context, category stock.Category) ([]stock.ReconcileRow, error) {
	return s.drift[category], s.err
}

func (s stubReportSource) LowStock(ctx context.Context, category stock.Category) ([]stock.LowStockAlert, error) {
	return s.low[category], s.err
}

func TestDriftCommandJSON(t *testing.T) {
	source := stubReportSource{drift: map[stock.Category][]stock.ReconcileRow{
		stock.CategoryMaterial: {{
			ItemID:     3,
			Name:       "Cups",
			Category:   stock.CategoryMaterial,
			Aggregate:  decimal.NewFromInt(10),
			BatchTotal: decimal.NewFromInt(12),
			Drift:      decimal.NewFromInt(-2),
		}},
	}}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := NewReportCLI(source).DriftCommand(context.Background(), ReportOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Empty(t, stderr.String())

	var rows []stock.ReconcileRow
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "Cups", rows[0].Name)
	require.True(t, rows[0].Drift.Equal(decimal.NewFromInt(-2)))
}

func TestDriftCommandCleanAndErrors(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cli := NewReportCLI(stubReportSource{})

	require.Equal(t, 0, cli.DriftCommand(context.Background(), ReportOptions{Categories: []string{"ingredients"}, Stdout: stdout, Stderr: stderr}))
	require.Contains(t, stdout.String(), "CATEGORY")

	require.Equal(t, 2, cli.DriftCommand(context.Background(), ReportOptions{Categories: []string{"gadgets"}, Stdout: stdout, Stderr: stderr}))
	require.Contains(t, stderr.String(), "unknown category")

	failing := NewReportCLI(stubReportSource{err: errors.New("db down")})
	require.Equal(t, 2, failing.DriftCommand(context.Background(), ReportOptions{Stdout: stdout, Stderr: stderr}))
}

func TestLowStockCommandTable(t *testing.T) {
	source := stubReportSource{low: map[stock.Category][]stock.LowStockAlert{
		stock.CategoryIngredient: {{
			ItemID:       1,
			Name:         "Milk",
			Category:     stock.CategoryIngredient,
			InStock:      decimal.RequireFromString("0.5"),
			Unit:         "l",
			ReorderLevel: stock.ReorderLevel,
			Status:       stock.StatusLowStock,
		}},
	}}
	stdout := new(bytes.Buffer)

	code := NewReportCLI(source).LowStockCommand(context.Background(), ReportOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "Milk")
	require.Contains(t, stdout.String(), "0.5")
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask("reconcile", []string{"material"}, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskReconcile, task.Type())

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, nil, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = BuildTask("gl:integrity", nil, 0)
	require.Error(t, err)
}
