// Package metrics exposes the Prometheus collectors of the media/OCR API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// External tool execution.
var (
	// Labels: command (ffmpeg/python/tesseract), mode (local/remote), status (success/failed/timeout)
	commandExecutionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_command_executions_total",
			Help: "Total number of external tool executions",
		},
		[]string{"command", "mode", "status"},
	)

	// Buckets: 0.1s .. 10min, diarization of long recordings lands in the upper buckets.
	commandExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_command_duration_seconds",
			Help:    "Duration of external tool executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"command", "mode"},
	)

	degradationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_degradation_events_total",
			Help: "Total number of execution mode degradation events (e.g., remote -> local)",
		},
		[]string{"from_mode", "to_mode"},
	)
)

// Task lifecycle.
var (
	// Labels: status (processing/completed/failed/cancelled)
	taskTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_task_transitions_total",
			Help: "Task registry transitions by resulting status",
		},
		[]string{"status"},
	)

	tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_tasks_in_flight",
			Help: "Number of background segmentation jobs currently running",
		},
	)

	tasksEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_tasks_evicted_total",
			Help: "Terminal task records removed after their TTL expired",
		},
	)

	taskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_task_duration_seconds",
			Help:    "Wall-clock duration of completed segmentation tasks",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// Synchronous OCR endpoints.
var (
	// Labels: engine (plate/trocr), outcome (found/not_found/bad_input/error)
	ocrRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_ocr_requests_total",
			Help: "OCR requests by engine and outcome",
		},
		[]string{"engine", "outcome"},
	)
)

// RecordCommandExecution records one external tool execution.
func RecordCommandExecution(command, mode, status string) {
	commandExecutionTotal.WithLabelValues(command, mode, status).Inc()
}

// RecordCommandDuration records the duration of an external tool execution.
func RecordCommandDuration(command, mode string, durationSeconds float64) {
	commandExecutionDuration.WithLabelValues(command, mode).Observe(durationSeconds)
}

// RecordDegradationEvent records a switch of execution mode.
func RecordDegradationEvent(fromMode, toMode string) {
	degradationEventsTotal.WithLabelValues(fromMode, toMode).Inc()
}

// RecordTaskTransition counts a registry transition into status.
func RecordTaskTransition(status string) {
	taskTransitionsTotal.WithLabelValues(status).Inc()
}

// TaskStarted and TaskFinished keep the in-flight gauge.
func TaskStarted()  { tasksInFlight.Inc() }
func TaskFinished() { tasksInFlight.Dec() }

// RecordTaskEvicted counts records dropped by the registry janitor.
func RecordTaskEvicted(n int) {
	tasksEvictedTotal.Add(float64(n))
}

// RecordTaskDuration observes the elapsed time of a completed task.
func RecordTaskDuration(seconds float64) {
	taskDuration.Observe(seconds)
}

// RecordOCRRequest counts one OCR request outcome.
func RecordOCRRequest(engine, outcome string) {
	ocrRequestsTotal.WithLabelValues(engine, outcome).Inc()
}
