// Package extract produces schema-validated datasets from a configured
// source. It is the only stage that differs between development (file
// fixtures) and production (remote API); both strategies validate against
// the same entity schema, so downstream stages never know which produced
// the dataset.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/settings"
)

// Extractor produces a validated dataset for a run. Any failure is terminal:
// no partial dataset is ever returned.
type Extractor interface {
	Extract(ctx context.Context) (dataset.Dataset, error)
}

type Config struct {
	Logger   *slog.Logger
	Settings settings.Settings

	// HTTPClient is used by the api source. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return nil
}

// New selects the extraction strategy for the configured source kind.
func New(cfg Config) (Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Settings.SourceKind {
	case settings.SourceFile:
		return newFileExtractor(cfg)
	case settings.SourceAPI:
		return newAPIExtractor(cfg)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Settings.SourceKind)
	}
}
