package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/meridianlabs/flowline/pkg/dataset"
	"github.com/meridianlabs/flowline/pkg/schema"
)

const (
	duckMaxRetries        = 8
	duckInitialRetryDelay = 50 * time.Millisecond
	duckMaxRetryDelay     = 5 * time.Second
)

// duckLoader lands the dataset in a DuckDB database file. Rows are staged
// through a CSV file and swapped in with a transactional delete-and-insert,
// so a run either persists everything or nothing and re-runs are idempotent.
type duckLoader struct {
	log  *slog.Logger
	path string
}

func newDuckLoader(cfg Config, path string) (*duckLoader, error) {
	if path == "" {
		return nil, fmt.Errorf("duckdb:// output URI has no path")
	}
	return &duckLoader{log: cfg.Logger, path: path}, nil
}

func (l *duckLoader) Load(ctx context.Context, d dataset.Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("dataset invalid before load: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("duckdb", l.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	table := d.Schema.Name
	if err := createTable(ctx, db, d.Schema); err != nil {
		return err
	}

	// Stage rows as CSV, the bulk path DuckDB ingests fastest.
	tmp, err := os.CreateTemp("", table+"_stage_*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	if err := dataset.WriteCSV(d, tmp); err != nil {
		return err
	}

	err = retryWithBackoff(ctx, l.log, fmt.Sprintf("load table %s", table), func() error {
		return l.replaceRows(ctx, db, d.Schema, tmp.Name())
	})
	if err != nil {
		return err
	}

	l.log.Info("loaded dataset to duckdb", "path", l.path, "table", table, "rows", d.NumRows())
	return nil
}

func (l *duckLoader) replaceRows(ctx context.Context, db *sql.DB, s schema.Schema, csvPath string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.log.Error("failed to rollback transaction", "table", s.Name, "error", err)
		}
	}()

	stage := s.Name + "_stage"
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT * FROM %s WHERE 1=0", stage, s.Name)); err != nil {
		return fmt.Errorf("failed to create stage table: %w", err)
	}
	copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER true)", stage, csvPath)
	if _, err := tx.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("failed to COPY FROM CSV: %w", err)
	}

	cols := strings.Join(s.Columns(), ", ")
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.Name)); err != nil {
		return fmt.Errorf("failed to clear table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", s.Name, cols, cols, stage)); err != nil {
		return fmt.Errorf("failed to insert from stage: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", stage)); err != nil {
		l.log.Error("failed to drop stage table", "error", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func createTable(ctx context.Context, db *sql.DB, s schema.Schema) error {
	colDefs := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		colDefs[i] = fmt.Sprintf("%s %s", f.Name, duckType(f.Type))
	}
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.Name, strings.Join(colDefs, ",\n\t"))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.Name, err)
	}
	return nil
}

func duckType(t schema.FieldType) string {
	switch t {
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE"
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func isTransactionConflictError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Transaction conflict")
}

// retryWithBackoff retries a function with exponential backoff when it
// returns a transaction conflict error.
func retryWithBackoff(ctx context.Context, log *slog.Logger, operation string, fn func() error) error {
	var lastErr error
	delay := duckInitialRetryDelay

	for attempt := 0; attempt < duckMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				log.Info("operation succeeded after retries", "operation", operation, "attempts", attempt+1)
			}
			return nil
		}
		if !isTransactionConflictError(err) {
			return err
		}

		lastErr = err
		if attempt < duckMaxRetries-1 {
			log.Warn("transaction conflict detected, retrying", "operation", operation, "attempt", attempt+1, "delay", delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-timer.C:
			}
			delay *= 2
			if delay > duckMaxRetryDelay {
				delay = duckMaxRetryDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", duckMaxRetries, lastErr)
}
