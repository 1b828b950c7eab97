package odpsw

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts executor activity. A nil *Metrics counts nothing.
type Metrics struct {
	Actions       *prometheus.CounterVec
	Samples       *prometheus.CounterVec
	Deliveries    *prometheus.CounterVec
	RewriteErrors *prometheus.CounterVec
	DepthExceeded prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "godp",
			Name:      "actions_total",
			Help:      "Number of executed datapath actions.",
		}, []string{"action"}),
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "godp",
			Name:      "samples_total",
			Help:      "Number of sample draws by result.",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "godp",
			Name:      "deliveries_total",
			Help:      "Number of packets handed to output or userspace.",
		}, []string{"kind"}),
		RewriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "godp",
			Name:      "rewrite_errors_total",
			Help:      "Number of header rewrites that failed.",
		}, []string{"action"}),
		DepthExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "godp",
			Name:      "sample_depth_exceeded_total",
			Help:      "Number of executions stopped by the sample nesting limit.",
		}),
	}
}

func (self *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		self.Actions,
		self.Samples,
		self.Deliveries,
		self.RewriteErrors,
		self.DepthExceeded,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (self *Metrics) action(name string) {
	if self != nil {
		self.Actions.WithLabelValues(name).Inc()
	}
}

func (self *Metrics) sampled(accepted bool) {
	if self != nil {
		result := "rejected"
		if accepted {
			result = "accepted"
		}
		self.Samples.WithLabelValues(result).Inc()
	}
}

func (self *Metrics) delivered(kind string) {
	if self != nil {
		self.Deliveries.WithLabelValues(kind).Inc()
	}
}

func (self *Metrics) rewriteFailed(name string) {
	if self != nil {
		self.RewriteErrors.WithLabelValues(name).Inc()
	}
}

func (self *Metrics) depthExceeded() {
	if self != nil {
		self.DepthExceeded.Inc()
	}
}
