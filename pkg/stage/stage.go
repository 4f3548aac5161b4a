// Package stage implements the pipeline-kind-specific step between
// transform and load: identity for plain data pipelines, model training or
// prediction for ml pipelines, and generative enrichment for ai pipelines.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/settings"
)

// Stage consumes the transformed dataset and produces the dataset handed to
// load. Implementations report how many records they flagged as failed
// without aborting the run.
type Stage interface {
	Run(ctx context.Context, d dataset.Dataset) (dataset.Dataset, error)

	// Flagged returns the number of records that failed non-fatally during
	// the last Run. Zero for stages without per-record failure semantics.
	Flagged() int
}

type Config struct {
	Logger   *slog.Logger
	Settings settings.Settings

	// LLM overrides the text-generation client for ai pipelines. Defaults
	// to the Anthropic client built from settings.
	LLM LLMClient
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// New selects the stage for the configured pipeline kind.
func New(cfg Config) (Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Settings.PipelineKind {
	case settings.KindData:
		return &noneStage{}, nil
	case settings.KindML:
		return newModelStage(cfg)
	case settings.KindAI:
		return newGenerateStage(cfg)
	default:
		return nil, fmt.Errorf("unknown pipeline kind %q", cfg.Settings.PipelineKind)
	}
}

// noneStage is the identity passthrough for plain data pipelines.
type noneStage struct{}

func (s *noneStage) Run(_ context.Context, d dataset.Dataset) (dataset.Dataset, error) {
	return d, nil
}

func (s *noneStage) Flagged() int { return 0 }
