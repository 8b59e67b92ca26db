package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "timed"

// Metrics holds the consensus counters of a single node. Every node owns
// its registry so that several nodes can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	VotingRounds          *prometheus.CounterVec
	RoundDuration         prometheus.Histogram
	ActiveCandidates      prometheus.Gauge
	LocalAcceptances      prometheus.Counter
	TransactionsFinalized prometheus.Counter
	TransactionsRejected  *prometheus.CounterVec
	VotesRejected         *prometheus.CounterVec
	Anomalies             *prometheus.CounterVec
	EquivocationsDetected prometheus.Counter
	BlockCandidates       *prometheus.CounterVec
	BlocksCommitted       prometheus.Counter
	ReservationsSwept     prometheus.Counter
	InclusionPausedGauge  prometheus.Gauge
}

// New creates the node's metrics and registers them in a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		VotingRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "voting", Name: "rounds_total",
			Help: "Number of completed polling rounds by result",
		}, []string{"result"}),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "voting", Name: "round_duration_seconds",
			Help:    "Duration of polling rounds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ActiveCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "voting", Name: "active_candidates",
			Help: "Number of transactions currently being polled",
		}),
		LocalAcceptances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "voting", Name: "local_acceptances_total",
			Help: "Number of transactions locally accepted",
		}),
		TransactionsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "finality", Name: "transactions_finalized_total",
			Help: "Number of transactions that reached global finality",
		}),
		TransactionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "voting", Name: "transactions_rejected_total",
			Help: "Number of rejected candidate transactions by reason",
		}, []string{"reason"}),
		VotesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "finality", Name: "votes_rejected_total",
			Help: "Number of signed votes refused by the proof assembler by error class",
		}, []string{"class"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "anomaly", Name: "detected_total",
			Help: "Number of detected proof anomalies by kind",
		}, []string{"kind"}),
		EquivocationsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "anomaly", Name: "equivocations_total",
			Help: "Number of equivocating votes detected",
		}),
		BlockCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkpoint", Name: "candidates_total",
			Help: "Number of checkpoint block candidates by validation result",
		}, []string{"result"}),
		BlocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkpoint", Name: "blocks_committed_total",
			Help: "Number of committed checkpoint blocks",
		}),
		ReservationsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "utxo", Name: "reservations_swept_total",
			Help: "Number of expired reservations released by the sweeper",
		}),
		InclusionPausedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "anomaly", Name: "inclusion_paused",
			Help: "1 while block inclusion is paused by an unacknowledged safety violation",
		}),
	}

	collectors := []prometheus.Collector{
		m.VotingRounds, m.RoundDuration, m.ActiveCandidates, m.LocalAcceptances,
		m.TransactionsFinalized, m.TransactionsRejected, m.VotesRejected, m.Anomalies,
		m.EquivocationsDetected, m.BlockCandidates, m.BlocksCommitted, m.ReservationsSwept,
		m.InclusionPausedGauge,
	}
	for _, collector := range collectors {
		err := m.registry.Register(collector)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return m, nil
}

// Gatherer returns the registry the metrics are registered in.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
