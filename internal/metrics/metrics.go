package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	Draws                 *prometheus.CounterVec
	DrawFailures          *prometheus.CounterVec
	DrawDuration          prometheus.Histogram
	Commitments           prometheus.Counter
	Verifications         *prometheus.CounterVec
	ComplianceLogFailures prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Draws: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raffle_draws_total",
			Help: "Completed raffle draws by draw method.",
		}, []string{"method"}),
		DrawFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raffle_draw_failures_total",
			Help: "Aborted raffle draws by reason.",
		}, []string{"reason"}),
		DrawDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "raffle_draw_duration_seconds",
			Help:    "Time spent inside the draw transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		Commitments: f.NewCounter(prometheus.CounterOpts{
			Name: "raffle_commitments_total",
			Help: "Published seed commitments.",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raffle_verifications_total",
			Help: "Draw verifications by result.",
		}, []string{"result"}),
		ComplianceLogFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "raffle_compliance_log_failures_total",
			Help: "Compliance log entries that could not be written.",
		}),
	}
}

// RegisterRoutes exposes the default gatherer on /metrics.
func RegisterRoutes(router gin.IRoutes) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
