package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry *prometheus.Registry

	// Step executions by outcome. Watch for: rising failed/skipped ratio.
	StepsTotal *prometheus.CounterVec

	// Wall time of each step. Watch for: slow linters or test suites creeping up.
	StepDuration *prometheus.HistogramVec

	// Target runs by result (passed/failed).
	TargetRunsTotal *prometheus.CounterVec

	// Exit code of the last run of each target; 0 is success.
	TargetLastExitCode *prometheus.GaugeVec

	// Mastodon API call rate by endpoint and status class.
	MastodonAPICallsTotal *prometheus.CounterVec

	// Mastodon API latency. Watch for: p95 near the client timeout.
	MastodonAPIDuration *prometheus.HistogramVec

	// Retry attempts against Mastodon. Watch for: high retries = unstable instance.
	MastodonAPIRetriesTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())

	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amalgamStepsTotal",
			Help: "Total number of target steps by status",
		},
		[]string{"target", "step", "status"},
	)
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amalgamStepDurationSeconds",
			Help:    "Step wall time in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"target", "step"},
	)
	TargetRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amalgamTargetRunsTotal",
			Help: "Total number of target runs by result",
		},
		[]string{"target", "result"},
	)
	TargetLastExitCode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amalgamTargetLastExitCode",
			Help: "Exit code of the most recent run of each target",
		},
		[]string{"target"},
	)
	MastodonAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mastodonApiCallsTotal",
			Help: "Total number of Mastodon API calls",
		},
		[]string{"endpoint", "status"},
	)
	MastodonAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mastodonApiDurationSeconds",
			Help:    "Mastodon API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
	MastodonAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mastodonApiRetriesTotal",
			Help: "Total number of retry attempts for Mastodon API calls",
		},
	)

	registry.MustRegister(
		StepsTotal,
		StepDuration,
		TargetRunsTotal,
		TargetLastExitCode,
		MastodonAPICallsTotal,
		MastodonAPIDuration,
		MastodonAPIRetriesTotal,
	)
}

// Registry returns the private registry holding every amalgam collector.
func Registry() *prometheus.Registry {
	return registry
}

// StatusLabel collapses an HTTP status code into a low-cardinality label.
func StatusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}

// WriteTextfile writes the registry in Prometheus text format for the node
// exporter textfile collector. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
