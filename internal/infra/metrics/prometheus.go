package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bootanim_jobs_processed_total",
		Help: "Total number of conversion jobs processed, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bootanim_stage_duration_seconds",
		Help:    "Duration of each conversion stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bootanim_frames_decoded_total",
		Help: "Total number of frames pulled from video decoders",
	})

	FramesKeptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bootanim_frames_kept_total",
		Help: "Total number of frames written as boot animation PNGs",
	})

	ConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bootanim_conversions_total",
		Help: "Total number of conversions, by outcome",
	}, []string{"outcome"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bootanim_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bootanim_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
