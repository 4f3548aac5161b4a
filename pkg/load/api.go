package load

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/meridianlabs/flowline/pkg/dataset"
)

// apiLoader posts the dataset to an external endpoint in batches. Batches
// carry the entity name and a run-stable batch index so the receiving side
// can deduplicate re-runs.
type apiLoader struct {
	log       *slog.Logger
	client    *http.Client
	endpoint  string
	apiKey    string
	batchSize int
}

type loadBatch struct {
	Entity  string        `json:"entity"`
	Batch   int           `json:"batch"`
	Records []dataset.Row `json:"records"`
}

func newAPILoader(cfg Config, endpoint string) (*apiLoader, error) {
	return &apiLoader{
		log:       cfg.Logger,
		client:    cfg.HTTPClient,
		endpoint:  endpoint,
		apiKey:    cfg.Settings.APIKey,
		batchSize: cfg.Settings.BatchSize,
	}, nil
}

func (l *apiLoader) Load(ctx context.Context, d dataset.Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("dataset invalid before load: %w", err)
	}

	for batch := 0; batch*l.batchSize < len(d.Rows); batch++ {
		start := batch * l.batchSize
		end := min(start+l.batchSize, len(d.Rows))

		payload := loadBatch{Entity: d.Schema.Name, Batch: batch, Records: d.Rows[start:end]}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode batch %d: %w", batch, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request for batch %d: %w", batch, err)
		}
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := l.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to post batch %d: %w", batch, err)
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("batch %d rejected: %s", batch, resp.Status)
		}

		l.log.Debug("posted batch", "batch", batch, "records", end-start)
	}

	l.log.Info("loaded dataset to API", "endpoint", l.endpoint, "rows", d.NumRows())
	return nil
}
