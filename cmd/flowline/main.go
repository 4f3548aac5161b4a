package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/meridianlabs/flowline/pkg/metrics"
	"github.com/meridianlabs/flowline/pkg/pipeline"
	"github.com/meridianlabs/flowline/pkg/report"
	"github.com/meridianlabs/flowline/pkg/settings"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	versionFlag := flag.Bool("version", false, "print version and exit")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to listen on for prometheus metrics (empty to disable)")

	// Pipeline configuration; every flag can also be set through the
	// corresponding FLOWLINE_* environment variable or a local .env file.
	kindFlag := flag.String("kind", "", "pipeline kind (data, ml, ai)")
	entityFlag := flag.String("entity", "", "logical dataset name (e.g. orders, campaigns)")
	sourceFlag := flag.String("source", "", "extraction source kind (file, api)")
	inputDirFlag := flag.String("input-dir", "", "directory holding fixture CSV files for the file source")
	outputURIFlag := flag.String("output-uri", "", "destination URI (file://dir, duckdb://path, https://endpoint)")
	batchSizeFlag := flag.Int("batch-size", 0, "records per batch for api loading")
	apiBaseURLFlag := flag.String("api-base-url", "", "base URL for the api source")
	generateModelFlag := flag.String("generate-model", "", "text-generation model for ai pipelines")
	generateMaxTokensFlag := flag.Int64("generate-max-tokens", 0, "response token limit for ai pipelines")
	maxConcurrencyFlag := flag.Int("max-concurrency", 0, "bound on in-flight text-generation calls")
	mlModeFlag := flag.String("ml-mode", "", "ml stage mode (train, predict)")
	modelPathFlag := flag.String("model-path", "", "path to the model artifact for ml pipelines")
	atRiskDaysFlag := flag.Int("at-risk-after-days", 0, "days without a purchase before a customer is flagged at risk")
	referenceDateFlag := flag.String("reference-date", "", "anchor date for derived fields (YYYY-MM-DD, defaults to today)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	// Development convenience; production injects the environment directly.
	_ = godotenv.Load()

	log := newLogger(*verboseFlag)

	ov := settings.Overrides{
		PipelineKind:      *kindFlag,
		Entity:            *entityFlag,
		SourceKind:        *sourceFlag,
		InputDir:          *inputDirFlag,
		OutputURI:         *outputURIFlag,
		BatchSize:         *batchSizeFlag,
		APIBaseURL:        *apiBaseURLFlag,
		GenerateModel:     *generateModelFlag,
		GenerateMaxTokens: *generateMaxTokensFlag,
		MaxConcurrency:    *maxConcurrencyFlag,
		MLMode:            *mlModeFlag,
		ModelPath:         *modelPathFlag,
		AtRiskAfterDays:   *atRiskDaysFlag,
	}
	if *referenceDateFlag != "" {
		t, err := time.Parse("2006-01-02", *referenceDateFlag)
		if err != nil {
			return fmt.Errorf("invalid --reference-date %q (want YYYY-MM-DD)", *referenceDateFlag)
		}
		ov.ReferenceDate = t.UTC()
	}

	cfg, err := settings.Load(ov)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("prometheus metrics server failed", "error", err)
			}
		}()
	}

	p, err := pipeline.New(pipeline.Config{
		Logger:   log,
		Settings: cfg,
	})
	if err != nil {
		return err
	}

	result, err := p.Run(ctx)
	if err != nil {
		return err
	}

	return report.Render(os.Stdout, result)
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevel,
	}))
}
