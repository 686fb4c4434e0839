package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gifcut_jobs_processed_total",
		Help: "Total number of jobs processed, by operation and status",
	}, []string{"op", "status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gifcut_job_processing_duration_seconds",
		Help:    "Duration of GIF processing, by pipeline stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gifcut_frames_merged_total",
		Help: "Total number of duplicate frames merged away across all jobs",
	})

	FramesExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gifcut_frames_extracted_total",
		Help: "Total number of frame artifacts written, by extraction kind",
	}, []string{"kind"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gifcut_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	BytesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gifcut_bytes_saved_total",
		Help: "Total bytes removed from inputs by deduplication",
	})
)
