package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oceanco2_intake_build_info",
			Help: "Build information of the dataset intake service",
		},
		[]string{"version", "commit", "date"},
	)

	ValidationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_validation_runs_total",
			Help: "Total number of dataset validation runs",
		},
		[]string{"outcome"},
	)

	ValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oceanco2_intake_validation_duration_seconds",
			Help:    "Duration of dataset validation runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		},
	)

	RecordsBuiltTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_records_built_total",
			Help: "Total number of sample records built from raw rows",
		},
	)

	RecordErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_record_errors_total",
			Help: "Total number of record build errors",
		},
		[]string{"kind"},
	)

	OverlapsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_overlaps_found_total",
			Help: "Total number of crossover overlaps found",
		},
		[]string{"scope"},
	)

	CrossoverScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oceanco2_intake_crossover_scan_duration_seconds",
			Help:    "Duration of crossover scans",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
	)

	MetadataConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_metadata_conflicts_total",
			Help: "Total number of conflicted metadata fields produced by merges",
		},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_status_transitions_total",
			Help: "Total number of QC status transitions",
		},
		[]string{"action", "status"},
	)

	CheckMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_check_messages_total",
			Help: "Total number of automated check result messages consumed",
		},
		[]string{"status"},
	)

	ArchiveExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_archive_exports_total",
			Help: "Total number of archive bundle exports",
		},
		[]string{"status"},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oceanco2_intake_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"store", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oceanco2_intake_database_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
		[]string{"store"},
	)
)
