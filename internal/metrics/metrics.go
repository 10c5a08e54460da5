// Package metrics exports matrix results in the Prometheus text format.
//
// envmatrix is a short-lived process, so nothing is scraped. Instead
// `run --metrics-file` writes a textfile for node_exporter's textfile
// collector (or any tool reading the exposition format), which makes CI
// pass rates and environment durations graphable over time.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

const namespace = "envmatrix"

// Recorder holds the collectors for one run in a private registry.
type Recorder struct {
	registry *prometheus.Registry

	envDuration *prometheus.GaugeVec
	envStatus   *prometheus.GaugeVec
	envCommands *prometheus.GaugeVec

	runDuration  prometheus.Gauge
	runTimestamp prometheus.Gauge
	runFailed    prometheus.Gauge
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		envDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "environment_duration_seconds",
			Help:      "Wall time spent provisioning and running an environment.",
		}, []string{"env"}),
		envStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "environment_status",
			Help:      "1 for the status an environment ended with, 0 otherwise.",
		}, []string{"env", "status"}),
		envCommands: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "environment_commands",
			Help:      "Number of commands executed in an environment.",
		}, []string{"env"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the whole matrix run.",
		}),
		runTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_timestamp_seconds",
			Help:      "Unix time the matrix run started.",
		}),
		runFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_failed",
			Help:      "1 if any environment failed or the run was interrupted.",
		}),
	}
	r.registry.MustRegister(r.envDuration, r.envStatus, r.envCommands, r.runDuration, r.runTimestamp, r.runFailed)
	return r
}

// Registry returns the registry holding the run's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a finished matrix run.
func (r *Recorder) Observe(result *model.MatrixResult) {
	for _, res := range result.Results {
		r.envDuration.WithLabelValues(res.Name).Set(res.Duration.Seconds())
		r.envCommands.WithLabelValues(res.Name).Set(float64(len(res.Commands)))
		for _, s := range []model.EnvStatus{model.StatusPassed, model.StatusFailed, model.StatusSkipped} {
			v := 0.0
			if res.Status == s {
				v = 1
			}
			r.envStatus.WithLabelValues(res.Name, s.String()).Set(v)
		}
	}

	r.runDuration.Set(result.Duration.Seconds())
	if !result.Started.IsZero() {
		r.runTimestamp.Set(float64(result.Started.UnixNano()) / 1e9)
	}
	if result.Failed() {
		r.runFailed.Set(1)
	} else {
		r.runFailed.Set(0)
	}
}

// WriteFile writes the metrics to path atomically, as the textfile
// collector expects.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
