package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
	"github.com/meridianlabs/flowline/pkg/settings"
)

// modelColumns maps a dataset schema to the feature and label columns its
// model is fitted over.
var modelColumns = map[string]struct{ feature, label string }{
	schema.CustomerMetrics.Name: {feature: "order_count", label: "total_spent"},
}

// Model is the persisted artifact of a training run: a least-squares linear
// fit of label over feature.
type Model struct {
	Schema      string  `json:"schema"`
	Feature     string  `json:"feature"`
	Label       string  `json:"label"`
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	TrainedRows int     `json:"trained_rows"`
}

// modelStage trains a model from a labeled dataset or applies a persisted
// model to append predictions. Either way, any failure is fatal: a broken
// artifact must not silently propagate into predictions.
type modelStage struct {
	log  *slog.Logger
	mode string
	path string
}

func newModelStage(cfg Config) (*modelStage, error) {
	return &modelStage{
		log:  cfg.Logger,
		mode: cfg.Settings.MLMode,
		path: cfg.Settings.ModelPath,
	}, nil
}

func (s *modelStage) Run(ctx context.Context, d dataset.Dataset) (dataset.Dataset, error) {
	select {
	case <-ctx.Done():
		return dataset.Dataset{}, fmt.Errorf("stage cancelled: %w", ctx.Err())
	default:
	}
	switch s.mode {
	case settings.MLTrain:
		return s.train(d)
	case settings.MLPredict:
		return s.predict(d)
	default:
		return dataset.Dataset{}, fmt.Errorf("unknown ml mode %q", s.mode)
	}
}

func (s *modelStage) Flagged() int { return 0 }

func (s *modelStage) train(d dataset.Dataset) (dataset.Dataset, error) {
	cols, ok := modelColumns[d.Schema.Name]
	if !ok {
		return dataset.Dataset{}, fmt.Errorf("no model columns declared for schema %s", d.Schema.Name)
	}
	if d.NumRows() < 2 {
		return dataset.Dataset{}, fmt.Errorf("need at least 2 rows to fit a model, got %d", d.NumRows())
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, row := range d.Rows {
		x, err := numericValue(row, cols.feature)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		y, err := numericValue(row, cols.label)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	n := float64(d.NumRows())
	denom := n*sumXX - sumX*sumX
	if math.Abs(denom) < 1e-12 {
		return dataset.Dataset{}, fmt.Errorf("feature %q has no variance, cannot fit model", cols.feature)
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	model := Model{
		Schema:      d.Schema.Name,
		Feature:     cols.feature,
		Label:       cols.label,
		Slope:       slope,
		Intercept:   intercept,
		TrainedRows: d.NumRows(),
	}
	if err := saveModel(s.path, model); err != nil {
		return dataset.Dataset{}, err
	}

	s.log.Info("trained model", "path", s.path, "feature", cols.feature, "label", cols.label, "rows", d.NumRows())
	return d, nil
}

func (s *modelStage) predict(d dataset.Dataset) (dataset.Dataset, error) {
	model, err := loadModel(s.path)
	if err != nil {
		return dataset.Dataset{}, err
	}
	if model.Schema != d.Schema.Name {
		return dataset.Dataset{}, fmt.Errorf("model was trained on %s, dataset is %s", model.Schema, d.Schema.Name)
	}

	predictedCol := "predicted_" + model.Label
	out := dataset.Dataset{
		Schema: predictionSchema(d.Schema, predictedCol),
		Rows:   make([]dataset.Row, len(d.Rows)),
	}
	for i, row := range d.Rows {
		x, err := numericValue(row, model.Feature)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		cp := make(dataset.Row, len(row)+1)
		for k, v := range row {
			cp[k] = v
		}
		cp[predictedCol] = math.Round((model.Slope*x+model.Intercept)*100) / 100
		out.Rows[i] = cp
	}

	if err := out.Validate(); err != nil {
		return dataset.Dataset{}, fmt.Errorf("prediction dataset invalid: %w", err)
	}

	s.log.Info("appended predictions", "path", s.path, "column", predictedCol, "rows", out.NumRows())
	return out, nil
}

// predictionSchema widens the input schema with the predicted column.
func predictionSchema(s schema.Schema, predictedCol string) schema.Schema {
	fields := make([]schema.Field, 0, len(s.Fields)+1)
	fields = append(fields, s.Fields...)
	fields = append(fields, schema.Field{Name: predictedCol, Type: schema.TypeFloat, Required: true})
	return schema.Schema{Name: s.Name + "_predicted", Fields: fields}
}

func numericValue(row dataset.Row, col string) (float64, error) {
	switch v := row[col].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("field %q: value %v is not numeric", col, v)
	}
}

// saveModel writes the artifact atomically so a failed run cannot leave a
// truncated model behind.
func saveModel(path string, m Model) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace model file: %w", err)
	}
	return nil
}

func loadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("failed to read model artifact: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return Model{}, fmt.Errorf("failed to decode model artifact %s: %w", path, err)
	}
	if m.Feature == "" || m.Label == "" {
		return Model{}, fmt.Errorf("model artifact %s is incomplete", path)
	}
	return m, nil
}
