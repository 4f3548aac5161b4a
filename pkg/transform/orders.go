package transform

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
)

// ordersTransformer aggregates raw orders into per-customer metrics:
// order count, total spent, average order value, days since first purchase
// and an at-risk flag. Date-relative fields are anchored on the run's
// reference date, and the at-risk threshold is a configured business-rule
// parameter, so the output is fully determined by input plus settings.
type ordersTransformer struct {
	log             *slog.Logger
	referenceDate   time.Time
	atRiskAfterDays int
}

type customerAgg struct {
	customerID string
	orderCount int64
	totalSpent float64
	firstOrder time.Time
	lastOrder  time.Time
}

func (t *ordersTransformer) Transform(d dataset.Dataset) (dataset.Dataset, error) {
	if d.Schema.Name != schema.Orders.Name {
		return dataset.Dataset{}, fmt.Errorf("expected %s dataset, got %s", schema.Orders.Name, d.Schema.Name)
	}

	cleaned := cleanStrings(d)

	aggs := make(map[string]*customerAgg)
	for i, row := range cleaned.Rows {
		customerID, err := row.String("customer_id")
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		orderDate, err := row.Time("order_date")
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		amount, err := row.Float("amount")
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("row %d: %w", i+1, err)
		}

		agg, ok := aggs[customerID]
		if !ok {
			agg = &customerAgg{customerID: customerID, firstOrder: orderDate, lastOrder: orderDate}
			aggs[customerID] = agg
		}
		agg.orderCount++
		agg.totalSpent += amount
		if orderDate.Before(agg.firstOrder) {
			agg.firstOrder = orderDate
		}
		if orderDate.After(agg.lastOrder) {
			agg.lastOrder = orderDate
		}
	}

	// Sort by customer ID so output order does not depend on map iteration.
	ids := make([]string, 0, len(aggs))
	for id := range aggs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := dataset.New(schema.CustomerMetrics)
	for _, id := range ids {
		agg := aggs[id]
		out.Rows = append(out.Rows, dataset.Row{
			"customer_id":               agg.customerID,
			"order_count":               agg.orderCount,
			"total_spent":               round2(agg.totalSpent),
			"avg_order_value":           round2(agg.totalSpent / float64(agg.orderCount)),
			"days_since_first_purchase": daysBetween(agg.firstOrder, t.referenceDate),
			"at_risk":                   daysBetween(agg.lastOrder, t.referenceDate) > int64(t.atRiskAfterDays),
		})
	}

	if err := out.Validate(); err != nil {
		return dataset.Dataset{}, fmt.Errorf("derived dataset invalid: %w", err)
	}

	t.log.Info("aggregated orders into customer metrics", "orders", d.NumRows(), "customers", out.NumRows())
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func daysBetween(from, to time.Time) int64 {
	d := to.UTC().Sub(from.UTC())
	if d < 0 {
		return 0
	}
	return int64(d.Hours() / 24)
}
