package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
)

// fileExtractor reads all fixture files for the entity from the input
// directory and concatenates them into one dataset. Files are read in
// lexical order so repeated runs over unchanged fixtures are deterministic.
type fileExtractor struct {
	log    *slog.Logger
	dir    string
	entity string
	schema schema.Schema
}

func newFileExtractor(cfg Config) (*fileExtractor, error) {
	s, err := schema.ForEntity(cfg.Settings.Entity)
	if err != nil {
		return nil, err
	}
	return &fileExtractor{
		log:    cfg.Logger,
		dir:    cfg.Settings.InputDir,
		entity: cfg.Settings.Entity,
		schema: s,
	}, nil
}

func (e *fileExtractor) Extract(ctx context.Context) (dataset.Dataset, error) {
	pattern := filepath.Join(e.dir, e.entity+"*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("failed to glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return dataset.Dataset{}, fmt.Errorf("no fixture files matching %q", pattern)
	}
	sort.Strings(matches)

	out := dataset.New(e.schema)
	for _, path := range matches {
		select {
		case <-ctx.Done():
			return dataset.Dataset{}, fmt.Errorf("extraction cancelled: %w", ctx.Err())
		default:
		}

		f, err := os.Open(path)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("failed to open fixture %s: %w", path, err)
		}
		d, err := dataset.ReadCSV(e.schema, f)
		f.Close()
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("fixture %s: %w", path, err)
		}
		e.log.Debug("read fixture file", "path", path, "rows", d.NumRows())
		out.Rows = append(out.Rows, d.Rows...)
	}

	e.log.Info("extracted dataset from files", "entity", e.entity, "files", len(matches), "rows", out.NumRows())
	return out, nil
}
