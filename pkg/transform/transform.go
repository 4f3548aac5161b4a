// Package transform applies pure, deterministic operations to a validated
// dataset. Transformers perform no I/O and read nothing but their input and
// the run's immutable settings, so identical input always yields identical
// output. Any error here indicates a schema contract violation upstream and
// is fatal.
package transform

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/settings"
)

// Transformer produces a new dataset from a validated input dataset.
type Transformer interface {
	Transform(d dataset.Dataset) (dataset.Dataset, error)
}

type Config struct {
	Logger   *slog.Logger
	Settings settings.Settings
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Settings.ReferenceDate.IsZero() {
		return errors.New("reference date is required")
	}
	return nil
}

// New returns the transformer registered for the configured entity.
// Entities without domain-specific derivation get cleaning only.
func New(cfg Config) (Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Settings.Entity {
	case "orders":
		return &ordersTransformer{
			log:             cfg.Logger,
			referenceDate:   cfg.Settings.ReferenceDate,
			atRiskAfterDays: cfg.Settings.AtRiskAfterDays,
		}, nil
	case "campaigns":
		return &campaignsTransformer{log: cfg.Logger}, nil
	default:
		return &cleanTransformer{log: cfg.Logger}, nil
	}
}

// cleanTransformer normalizes string fields and revalidates; it derives
// nothing.
type cleanTransformer struct {
	log *slog.Logger
}

func (t *cleanTransformer) Transform(d dataset.Dataset) (dataset.Dataset, error) {
	out := cleanStrings(d)
	if err := out.Validate(); err != nil {
		return dataset.Dataset{}, err
	}
	return out, nil
}

// cleanStrings trims surrounding whitespace from every string value,
// producing a new dataset.
func cleanStrings(d dataset.Dataset) dataset.Dataset {
	out := d.Clone()
	for _, row := range out.Rows {
		for col, v := range row {
			if s, ok := v.(string); ok {
				row[col] = strings.TrimSpace(s)
			}
		}
	}
	return out
}
