// Package load persists the final dataset to the configured destination.
// Loads are all-or-nothing: a loader either persists the full dataset or
// returns an error, and re-running a load is idempotent.
package load

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/settings"
)

// Loader persists a final dataset. It must never report success when
// persistence failed.
type Loader interface {
	Load(ctx context.Context, d dataset.Dataset) error
}

type Config struct {
	Logger   *slog.Logger
	Settings settings.Settings

	// HTTPClient is used by the api destination. Defaults to
	// http.DefaultClient.
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

// New selects a loader from the output URI scheme: file:// writes CSV,
// duckdb:// lands rows in a DuckDB database, http(s):// posts JSON batches.
func New(cfg Config) (Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	uri := cfg.Settings.OutputURI
	switch {
	case strings.HasPrefix(uri, "file://"):
		return newFileLoader(cfg, strings.TrimPrefix(uri, "file://"))
	case strings.HasPrefix(uri, "duckdb://"):
		return newDuckLoader(cfg, strings.TrimPrefix(uri, "duckdb://"))
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return newAPILoader(cfg, uri)
	default:
		return nil, fmt.Errorf("output URI must be file://, duckdb://, http:// or https:// (got %q)", uri)
	}
}
