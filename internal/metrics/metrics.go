package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"proxmox-adaptive-exporter/internal/features"
)

// Metrics holds the exporter's fixed self-instrumentation families. These
// are registered unconditionally; per-subsystem families live in the sample
// registry instead, scoped to the detected feature set.
type Metrics struct {
	FeatureEnabled     *prometheus.GaugeVec
	CollectionErrors   *prometheus.CounterVec
	CollectionDuration *prometheus.GaugeVec
	CollectionSuccess  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FeatureEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "node_exporter_feature_enabled",
				Help: "Whether the capability was detected at startup (1) or not (0)",
			},
			[]string{"feature"},
		),
		CollectionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "node_exporter_collection_errors_total",
				Help: "Total number of failed collection attempts per collector",
			},
			[]string{"collector"},
		),
		CollectionDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "node_exporter_collection_duration_seconds",
				Help: "Duration of the most recent collection per collector",
			},
			[]string{"collector"},
		),
		CollectionSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "node_exporter_collection_success",
				Help: "Whether the most recent collection succeeded (1) or failed (0)",
			},
			[]string{"collector"},
		),
	}

	reg.MustRegister(
		m.FeatureEnabled,
		m.CollectionErrors,
		m.CollectionDuration,
		m.CollectionSuccess,
	)

	return m
}

// SetFeatures publishes the feature_enabled series, one per capability.
// Called once after detection.
func (m *Metrics) SetFeatures(fs *features.FeatureSet) {
	for _, c := range features.All() {
		value := 0.0
		if fs.Enabled(c) {
			value = 1.0
		}
		m.FeatureEnabled.WithLabelValues(string(c)).Set(value)
	}
}
