package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
)

const apiRequestMaxTries = 5

// apiExtractor retrieves the entity dataset from a remote API and validates
// the response against the same schema used for file fixtures. Transient
// failures are retried with exponential backoff; authentication and client
// errors are not.
type apiExtractor struct {
	log     *slog.Logger
	client  *http.Client
	baseURL string
	apiKey  string
	entity  string
	schema  schema.Schema
}

func newAPIExtractor(cfg Config) (*apiExtractor, error) {
	s, err := schema.ForEntity(cfg.Settings.Entity)
	if err != nil {
		return nil, err
	}
	return &apiExtractor{
		log:     cfg.Logger,
		client:  cfg.HTTPClient,
		baseURL: strings.TrimSuffix(cfg.Settings.APIBaseURL, "/"),
		apiKey:  cfg.Settings.APIKey,
		entity:  cfg.Settings.Entity,
		schema:  s,
	}, nil
}

func (e *apiExtractor) Extract(ctx context.Context) (dataset.Dataset, error) {
	url := fmt.Sprintf("%s/%s", e.baseURL, e.entity)

	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		if attempt > 1 {
			e.log.Warn("retrying API extraction", "url", url, "attempt", attempt)
		}
		return e.fetch(ctx, url)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(apiRequestMaxTries))
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return dataset.Dataset{}, fmt.Errorf("failed to decode API response: %w", err)
	}

	d, err := e.toDataset(records)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("API response for %s: %w", e.entity, err)
	}

	e.log.Info("extracted dataset from API", "entity", e.entity, "rows", d.NumRows())
	return d, nil
}

func (e *apiExtractor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("authentication failed: %s", resp.Status))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(fmt.Errorf("request rejected: %s", resp.Status))
	default:
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// toDataset converts decoded JSON records to canonical text and parses them
// through the same path as CSV fixtures, so both sources are validated
// identically and produce schema-identical datasets.
func (e *apiExtractor) toDataset(records []map[string]any) (dataset.Dataset, error) {
	header := e.schema.Columns()
	rows := make([][]string, len(records))
	for i, rec := range records {
		for key := range rec {
			if _, ok := e.schema.Field(key); !ok {
				return dataset.Dataset{}, fmt.Errorf("record %d: undeclared field %q", i+1, key)
			}
		}
		row := make([]string, len(header))
		for j, col := range header {
			v, ok := rec[col]
			if !ok || v == nil {
				continue
			}
			row[j] = jsonValueToText(v)
		}
		rows[i] = row
	}
	return dataset.FromRecords(e.schema, header, rows)
}

func jsonValueToText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
