package schema

import "fmt"

// Built-in entity schemas. Extraction validates against these before a
// dataset leaves the stage, and loading validates again before persistence.
var (
	Orders = Schema{
		Name: "orders",
		Fields: []Field{
			{Name: "order_id", Type: TypeString, Required: true},
			{Name: "customer_id", Type: TypeString, Required: true},
			{Name: "order_date", Type: TypeTimestamp, Required: true},
			{Name: "amount", Type: TypeFloat, Required: true},
		},
	}

	Customers = Schema{
		Name: "customers",
		Fields: []Field{
			{Name: "customer_id", Type: TypeString, Required: true},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "signup_date", Type: TypeTimestamp, Required: false},
		},
	}

	Campaigns = Schema{
		Name: "campaigns",
		Fields: []Field{
			{Name: "campaign_id", Type: TypeString, Required: true},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "channel", Type: TypeString, Required: false},
			{Name: "budget", Type: TypeFloat, Required: false},
		},
	}

	CustomerMetrics = Schema{
		Name: "customer_metrics",
		Fields: []Field{
			{Name: "customer_id", Type: TypeString, Required: true},
			{Name: "order_count", Type: TypeInt, Required: true},
			{Name: "total_spent", Type: TypeFloat, Required: true},
			{Name: "avg_order_value", Type: TypeFloat, Required: true},
			{Name: "days_since_first_purchase", Type: TypeInt, Required: true},
			{Name: "at_risk", Type: TypeBool, Required: true},
		},
	}

	EnrichedCampaigns = Schema{
		Name: "enriched_campaigns",
		Fields: []Field{
			{Name: "campaign_id", Type: TypeString, Required: true},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "channel", Type: TypeString, Required: false},
			{Name: "budget", Type: TypeFloat, Required: false},
			{Name: "audience", Type: TypeString, Required: false},
			{Name: "theme", Type: TypeString, Required: false},
			{Name: "enrichment_error", Type: TypeString, Required: false},
		},
	}
)

var registry = map[string]Schema{
	Orders.Name:            Orders,
	Customers.Name:         Customers,
	Campaigns.Name:         Campaigns,
	CustomerMetrics.Name:   CustomerMetrics,
	EnrichedCampaigns.Name: EnrichedCampaigns,
}

// ForEntity returns the schema registered for the given entity name.
func ForEntity(name string) (Schema, error) {
	s, ok := registry[name]
	if !ok {
		return Schema{}, fmt.Errorf("no schema registered for entity %q", name)
	}
	return s, nil
}
