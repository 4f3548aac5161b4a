package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowline_build_info",
		Help: "Build information",
	}, []string{"version", "commit", "date"})

	RowsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_rows_extracted_total",
		Help: "Rows produced by the extract stage",
	}, []string{"entity"})

	RowsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_rows_loaded_total",
		Help: "Rows persisted by the load stage",
	}, []string{"entity"})

	RecordsFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_records_flagged_total",
		Help: "Records flagged as failed during the optional stage",
	}, []string{"entity"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowline_stage_duration_seconds",
		Help:    "Wall time per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"stage"})

	RunsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_runs_failed_total",
		Help: "Pipeline runs that ended in a terminal stage failure",
	}, []string{"stage"})
)
