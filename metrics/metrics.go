package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "checkpoints"

	ResultMatched    = "matched"
	ResultMismatched = "mismatched"
	ResultSkipped    = "skipped"
)

type Metrics struct {
	validations          *prometheus.CounterVec
	verificationProgress prometheus.Gauge
	lastCheckpointHeight prometheus.Gauge
	nodeHeight           prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, network string) (*Metrics, error) {
	labels := prometheus.Labels{"network": network}
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "validations_total",
			Help:        "Checkpoint validations of node block hashes by result",
			ConstLabels: labels,
		}, []string{"result"}),
		verificationProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "verification_progress",
			Help:        "Estimated verification progress of the indexed tip, 0 to 1",
			ConstLabels: labels,
		}),
		lastCheckpointHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "last_checkpoint_height",
			Help:        "Height of the highest checkpoint present in the block index",
			ConstLabels: labels,
		}),
		nodeHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "node_height",
			Help:        "Block count reported by the audited node",
			ConstLabels: labels,
		}),
	}

	for _, c := range []prometheus.Collector{m.validations, m.verificationProgress, m.lastCheckpointHeight, m.nodeHeight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) IncValidation(result string) {
	m.validations.WithLabelValues(result).Inc()
}

func (m *Metrics) SetVerificationProgress(p float64) {
	m.verificationProgress.Set(p)
}

func (m *Metrics) SetLastCheckpointHeight(h int32) {
	m.lastCheckpointHeight.Set(float64(h))
}

func (m *Metrics) SetNodeHeight(h int32) {
	m.nodeHeight.Set(float64(h))
}
