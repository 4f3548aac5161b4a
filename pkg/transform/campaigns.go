package transform

import (
	"fmt"
	"log/slog"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
)

// campaignsTransformer normalizes campaign records ahead of generative
// enrichment. It keeps the campaigns schema; the enrichment stage widens it.
type campaignsTransformer struct {
	log *slog.Logger
}

func (t *campaignsTransformer) Transform(d dataset.Dataset) (dataset.Dataset, error) {
	if d.Schema.Name != schema.Campaigns.Name {
		return dataset.Dataset{}, fmt.Errorf("expected %s dataset, got %s", schema.Campaigns.Name, d.Schema.Name)
	}

	out := cleanStrings(d)
	if err := out.Validate(); err != nil {
		return dataset.Dataset{}, fmt.Errorf("cleaned dataset invalid: %w", err)
	}

	t.log.Info("cleaned campaign records", "rows", out.NumRows())
	return out, nil
}
