package load

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
	"github.com/meridianlabs/flowline/pkg/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func loaderSettings(outputURI string) settings.Settings {
	return settings.Settings{
		PipelineKind:    settings.KindData,
		Entity:          "orders",
		SourceKind:      settings.SourceFile,
		InputDir:        "data",
		OutputURI:       outputURI,
		BatchSize:       2,
		MaxConcurrency:  4,
		AtRiskAfterDays: 90,
		APIKey:          "test-key",
	}
}

func ordersOut(t *testing.T) dataset.Dataset {
	t.Helper()
	d := dataset.New(schema.Orders)
	d.Rows = []dataset.Row{
		{"order_id": "O-1", "customer_id": "C-1", "order_date": time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "amount": 120.0},
		{"order_id": "O-2", "customer_id": "C-2", "order_date": time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "amount": 50.0},
		{"order_id": "O-3", "customer_id": "C-2", "order_date": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "amount": 75.0},
	}
	require.NoError(t, d.Validate())
	return d
}

func TestFileLoader(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("writes_csv_to_output_directory", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		l, err := New(Config{Logger: testLogger(), Settings: loaderSettings("file://" + dir)})
		require.NoError(t, err)

		require.NoError(t, l.Load(ctx, ordersOut(t)))

		data, err := os.ReadFile(filepath.Join(dir, "orders.csv"))
		require.NoError(t, err)
		require.Contains(t, string(data), "order_id,customer_id,order_date,amount")
		require.Contains(t, string(data), "O-1,C-1,2024-01-10T00:00:00Z,120")
	})

	t.Run("rerun_overwrites_cleanly", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		l, err := New(Config{Logger: testLogger(), Settings: loaderSettings("file://" + dir)})
		require.NoError(t, err)

		d := ordersOut(t)
		require.NoError(t, l.Load(ctx, d))
		first, err := os.ReadFile(filepath.Join(dir, "orders.csv"))
		require.NoError(t, err)

		require.NoError(t, l.Load(ctx, d))
		second, err := os.ReadFile(filepath.Join(dir, "orders.csv"))
		require.NoError(t, err)
		require.Equal(t, string(first), string(second))
	})

	t.Run("invalid_dataset_is_rejected_before_write", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		l, err := New(Config{Logger: testLogger(), Settings: loaderSettings("file://" + dir)})
		require.NoError(t, err)

		d := dataset.New(schema.Orders)
		d.Rows = []dataset.Row{{"order_id": "O-1"}}
		require.Error(t, l.Load(ctx, d))

		_, err = os.Stat(filepath.Join(dir, "orders.csv"))
		require.True(t, os.IsNotExist(err), "no partial file may be left behind")
	})
}

func TestNewLoader(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Logger: testLogger(), Settings: loaderSettings("ftp://nope")})
	require.Error(t, err)

	_, err = New(Config{Logger: testLogger(), Settings: loaderSettings("file://")})
	require.Error(t, err)

	_, err = New(Config{Logger: testLogger(), Settings: loaderSettings("duckdb://")})
	require.Error(t, err)
}
