package load

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meridianlabs/flowline/pkg/dataset"
)

// fileLoader writes the dataset as CSV into the output directory. The write
// goes through a temp file and rename, so a failed run never leaves a
// partial file and re-runs overwrite cleanly.
type fileLoader struct {
	log *slog.Logger
	dir string
}

func newFileLoader(cfg Config, dir string) (*fileLoader, error) {
	if dir == "" {
		return nil, fmt.Errorf("file:// output URI has no path")
	}
	return &fileLoader{log: cfg.Logger, dir: dir}, nil
}

func (l *fileLoader) Load(ctx context.Context, d dataset.Dataset) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("load cancelled: %w", ctx.Err())
	default:
	}

	if err := d.Validate(); err != nil {
		return fmt.Errorf("dataset invalid before load: %w", err)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	target := filepath.Join(l.dir, d.Schema.Name+".csv")
	tmp, err := os.CreateTemp(l.dir, "."+d.Schema.Name+"-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := dataset.WriteCSV(d, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to replace output file: %w", err)
	}

	l.log.Info("loaded dataset to file", "path", target, "rows", d.NumRows())
	return nil
}
