// Package pipeline sequences the four stages of a run in fixed order:
// extract, transform, optional stage, load. Each stage fully completes
// before the next begins; the first terminal failure short-circuits the run
// with the failing stage named in the error chain.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/extract"
	"github.com/meridianlabs/flowline/pkg/load"
	"github.com/meridianlabs/flowline/pkg/metrics"
	"github.com/meridianlabs/flowline/pkg/settings"
	"github.com/meridianlabs/flowline/pkg/stage"
	"github.com/meridianlabs/flowline/pkg/transform"
)

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Settings settings.Settings

	// LLM overrides the text-generation client for ai pipelines.
	LLM stage.LLMClient

	// HTTPClient is used by api extraction and loading. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// StageResult records one completed stage for the run report.
type StageResult struct {
	Name     string
	Duration time.Duration
	RowsIn   int
	RowsOut  int
}

// RunResult is the externally observable outcome of a run, rendered by the
// report package into the pipeline's plain-text output.
type RunResult struct {
	Entity   string
	Kind     string
	Stages   []StageResult
	Flagged  int
	Final    dataset.Dataset
	Duration time.Duration
}

// Pipeline wires the four stages for one configured run.
type Pipeline struct {
	log *slog.Logger
	cfg Config

	extractor   extract.Extractor
	transformer transform.Transformer
	stage       stage.Stage
	loader      load.Loader
}

// New builds the pipeline from settings. All stage construction happens
// here, so configuration errors surface before any stage runs.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	// Anchor date-relative derivations for runs that did not pin one.
	if cfg.Settings.ReferenceDate.IsZero() {
		cfg.Settings.ReferenceDate = cfg.Clock.Now().UTC()
	}

	extractor, err := extract.New(extract.Config{
		Logger:     cfg.Logger,
		Settings:   cfg.Settings,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	transformer, err := transform.New(transform.Config{
		Logger:   cfg.Logger,
		Settings: cfg.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transformer: %w", err)
	}

	st, err := stage.New(stage.Config{
		Logger:   cfg.Logger,
		Settings: cfg.Settings,
		LLM:      cfg.LLM,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}

	loader, err := load.New(load.Config{
		Logger:     cfg.Logger,
		Settings:   cfg.Settings,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %w", err)
	}

	return &Pipeline{
		log:         cfg.Logger,
		cfg:         cfg,
		extractor:   extractor,
		transformer: transformer,
		stage:       st,
		loader:      loader,
	}, nil
}

// Run executes the pipeline once. On failure the returned error names the
// stage that failed; the partial RunResult still carries completed stages.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	entity := p.cfg.Settings.Entity
	result := RunResult{Entity: entity, Kind: p.cfg.Settings.PipelineKind}
	runStart := p.cfg.Clock.Now()

	d, err := p.runStage(&result, "extract", 0, func() (dataset.Dataset, error) {
		return p.extractor.Extract(ctx)
	})
	if err != nil {
		return result, err
	}
	metrics.RowsExtracted.WithLabelValues(entity).Add(float64(d.NumRows()))

	d, err = p.runStage(&result, "transform", d.NumRows(), func() (dataset.Dataset, error) {
		return p.transformer.Transform(d)
	})
	if err != nil {
		return result, err
	}

	d, err = p.runStage(&result, "stage", d.NumRows(), func() (dataset.Dataset, error) {
		return p.stage.Run(ctx, d)
	})
	if err != nil {
		return result, err
	}
	result.Flagged = p.stage.Flagged()
	metrics.RecordsFlagged.WithLabelValues(entity).Add(float64(result.Flagged))

	_, err = p.runStage(&result, "load", d.NumRows(), func() (dataset.Dataset, error) {
		return d, p.loader.Load(ctx, d)
	})
	if err != nil {
		return result, err
	}
	metrics.RowsLoaded.WithLabelValues(entity).Add(float64(d.NumRows()))

	result.Final = d
	result.Duration = p.cfg.Clock.Now().Sub(runStart)

	p.log.Info("pipeline run completed",
		"entity", entity,
		"kind", result.Kind,
		"rows", d.NumRows(),
		"flagged", result.Flagged,
		"duration", result.Duration)
	return result, nil
}

func (p *Pipeline) runStage(result *RunResult, name string, rowsIn int, fn func() (dataset.Dataset, error)) (dataset.Dataset, error) {
	start := p.cfg.Clock.Now()
	d, err := fn()
	elapsed := p.cfg.Clock.Now().Sub(start)
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.RunsFailed.WithLabelValues(name).Inc()
		p.log.Error("stage failed", "stage", name, "duration", elapsed, "error", err)
		return dataset.Dataset{}, fmt.Errorf("%s: %w", name, err)
	}

	result.Stages = append(result.Stages, StageResult{
		Name:     name,
		Duration: elapsed,
		RowsIn:   rowsIn,
		RowsOut:  d.NumRows(),
	})
	p.log.Debug("stage completed", "stage", name, "duration", elapsed, "rows_out", d.NumRows())
	return d, nil
}
