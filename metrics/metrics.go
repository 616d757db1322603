package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accounts"

// Recorder counts token issuance and verification failures. It satisfies
// accounts.TokenMetrics.
type Recorder struct {
	issued   *prometheus.CounterVec
	failures *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// New registers the token counters with reg. A nil reg uses a fresh
// registry so tests and multiple servers do not collide.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Signed tokens by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verification_failures_total",
			Help:      "Rejected tokens by kind and reason.",
		}, []string{"kind", "reason"}),
		gatherer: reg,
	}

	reg.MustRegister(r.issued, r.failures)
	return r
}

func (r *Recorder) TokenIssued(kind string) {
	r.issued.WithLabelValues(kind).Inc()
}

func (r *Recorder) VerificationFailed(kind, reason string) {
	r.failures.WithLabelValues(kind, reason).Inc()
}

// Handler exposes the recorder registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
