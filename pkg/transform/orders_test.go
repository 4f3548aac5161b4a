package transform

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
	"github.com/meridianlabs/flowline/pkg/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func ordersDataset(t *testing.T) dataset.Dataset {
	t.Helper()
	d, err := dataset.FromRecords(schema.Orders,
		[]string{"order_id", "customer_id", "order_date", "amount"},
		[][]string{
			{"O-1", "C-001", "2024-01-10", "120.00"},
			{"O-2", "C-001", "2024-03-05", "80.50"},
			{"O-3", "C-002", "2024-05-20", "200.00"},
		},
	)
	require.NoError(t, err)
	return d
}

func ordersTransformerConfig(atRiskDays int) Config {
	return Config{
		Logger: testLogger(),
		Settings: settings.Settings{
			Entity:          "orders",
			AtRiskAfterDays: atRiskDays,
			ReferenceDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestOrdersTransform(t *testing.T) {
	t.Parallel()

	t.Run("aggregates_per_customer", func(t *testing.T) {
		t.Parallel()
		tr, err := New(ordersTransformerConfig(90))
		require.NoError(t, err)

		out, err := tr.Transform(ordersDataset(t))
		require.NoError(t, err)
		require.Equal(t, schema.CustomerMetrics.Name, out.Schema.Name)
		require.Equal(t, 2, out.NumRows())

		// Output is sorted by customer ID.
		c1 := out.Rows[0]
		require.Equal(t, dataset.Row{
			"customer_id":               "C-001",
			"order_count":               int64(2),
			"total_spent":               200.50,
			"avg_order_value":           100.25,
			"days_since_first_purchase": int64(143),
			"at_risk":                   false,
		}, c1)

		c2 := out.Rows[1]
		require.Equal(t, int64(1), c2["order_count"])
		require.Equal(t, 200.0, c2["total_spent"])
		require.Equal(t, 200.0, c2["avg_order_value"])
		require.Equal(t, int64(12), c2["days_since_first_purchase"])
		require.Equal(t, false, c2["at_risk"])
	})

	t.Run("at_risk_threshold_is_configurable", func(t *testing.T) {
		t.Parallel()
		// C-001's last purchase is 88 days before the reference date.
		tr, err := New(ordersTransformerConfig(80))
		require.NoError(t, err)

		out, err := tr.Transform(ordersDataset(t))
		require.NoError(t, err)
		require.Equal(t, true, out.Rows[0]["at_risk"])
		require.Equal(t, false, out.Rows[1]["at_risk"])
	})

	t.Run("is_pure_and_deterministic", func(t *testing.T) {
		t.Parallel()
		tr, err := New(ordersTransformerConfig(90))
		require.NoError(t, err)

		in := ordersDataset(t)
		before := in.Clone()

		out1, err := tr.Transform(in)
		require.NoError(t, err)
		out2, err := tr.Transform(in)
		require.NoError(t, err)

		require.Empty(t, cmp.Diff(out1, out2))
		require.Empty(t, cmp.Diff(before, in), "transform must not mutate its input")
	})

	t.Run("rejects_wrong_schema", func(t *testing.T) {
		t.Parallel()
		tr, err := New(ordersTransformerConfig(90))
		require.NoError(t, err)

		_, err = tr.Transform(dataset.New(schema.Campaigns))
		require.Error(t, err)
	})

	t.Run("requires_reference_date", func(t *testing.T) {
		t.Parallel()
		cfg := ordersTransformerConfig(90)
		cfg.Settings.ReferenceDate = time.Time{}
		_, err := New(cfg)
		require.Error(t, err)
	})
}

func TestDaysBetween(t *testing.T) {
	t.Parallel()

	// 2024 is a leap year; the span crosses Feb 29.
	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, int64(143), daysBetween(from, to))
	require.Equal(t, int64(0), daysBetween(to, from))
}

func TestCampaignsTransform(t *testing.T) {
	t.Parallel()

	tr, err := New(Config{
		Logger: testLogger(),
		Settings: settings.Settings{
			Entity:          "campaigns",
			AtRiskAfterDays: 90,
			ReferenceDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	d, err := dataset.FromRecords(schema.Campaigns,
		[]string{"campaign_id", "name", "channel", "budget"},
		[][]string{{"CMP-1", "  Summer Sale  ", "email", "1000.00"}},
	)
	require.NoError(t, err)

	out, err := tr.Transform(d)
	require.NoError(t, err)

	name, err := out.Rows[0].String("name")
	require.NoError(t, err)
	require.Equal(t, "Summer Sale", name)
}
