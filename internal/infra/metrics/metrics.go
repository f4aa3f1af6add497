// Package metrics provides Prometheus metrics for playback coordination and fragment merging.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Playback metrics
var (
	// playbackStartsTotal records handles started through the coordinator.
	playbackStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audiocore_playback_starts_total",
			Help: "Total number of playback starts through the coordinator",
		},
	)

	// playbackPreemptionsTotal records active handles paused because another one started.
	playbackPreemptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audiocore_playback_preemptions_total",
			Help: "Total number of active handles paused by a newer play request",
		},
	)

	// playbackSessionErrorsTotal records audio session reconfiguration failures.
	playbackSessionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audiocore_playback_session_errors_total",
			Help: "Total number of audio session reconfiguration failures",
		},
	)
)

// Merge metrics
var (
	// mergeJobsTotal records merge jobs by outcome.
	// Labels:
	//   - status: "success", "cancelled", "failed"
	mergeJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiocore_merge_jobs_total",
			Help: "Total number of fragment merge jobs by outcome",
		},
		[]string{"status"},
	)

	// mergeDuration records engine run time.
	// Buckets: 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s, 300s (5 minutes)
	mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audiocore_merge_duration_seconds",
			Help:    "Duration of merge engine runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// mergeFragments records how many fragments each job merged.
	mergeFragments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audiocore_merge_fragments",
			Help:    "Number of fragments per merge job",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
	)
)

func init() {
	prometheus.MustRegister(playbackStartsTotal)
	prometheus.MustRegister(playbackPreemptionsTotal)
	prometheus.MustRegister(playbackSessionErrorsTotal)
	prometheus.MustRegister(mergeJobsTotal)
	prometheus.MustRegister(mergeDuration)
	prometheus.MustRegister(mergeFragments)
}

// RecordPlaybackStart records a handle started through the coordinator.
func RecordPlaybackStart() {
	playbackStartsTotal.Inc()
}

// RecordPlaybackPreemption records an active handle paused by a newer play request.
func RecordPlaybackPreemption() {
	playbackPreemptionsTotal.Inc()
}

// RecordPlaybackSessionError records an audio session reconfiguration failure.
func RecordPlaybackSessionError() {
	playbackSessionErrorsTotal.Inc()
}

// RecordMerge records a finished merge job.
// Parameters:
//   - status: "success", "cancelled", "failed"
//   - fragments: number of input fragments
//   - durationSeconds: engine run time, 0 when the engine never ran
func RecordMerge(status string, fragments int, durationSeconds float64) {
	mergeJobsTotal.WithLabelValues(status).Inc()
	mergeFragments.Observe(float64(fragments))
	if durationSeconds > 0 {
		mergeDuration.Observe(durationSeconds)
	}
}
