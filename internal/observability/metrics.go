package observability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	registerOnce sync.Once

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objctl",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Dispatches by module and outcome.",
		},
		[]string{"module", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "objctl",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time from submission to end of output.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"module"},
	)
	responseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objctl",
			Subsystem: "response",
			Name:      "bytes_total",
			Help:      "Response text bytes collected from agents.",
		},
		[]string{"module"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(dispatchTotal, dispatchDuration, responseBytes)
	})
}

// RecordDispatch counts one finished dispatch. Outcome is one of the dispatch
// outcome labels (complete, failed, cancelled, rejected).
func RecordDispatch(module, outcome string, duration time.Duration) {
	RegisterMetrics()
	dispatchTotal.WithLabelValues(module, outcome).Inc()
	if duration > 0 {
		dispatchDuration.WithLabelValues(module).Observe(duration.Seconds())
	}
}

func RecordResponseBytes(module string, n int) {
	RegisterMetrics()
	responseBytes.WithLabelValues(module).Add(float64(n))
}

// DispatchCount reads the current counter value; used by tests and the CLI summary.
func DispatchCount(module, outcome string) prometheus.Counter {
	return dispatchTotal.WithLabelValues(module, outcome)
}

// Router serves /metrics behind the request logger.
func Router() *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log.Logger))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Serve exposes /metrics on addr until the returned server is closed.
func Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("observability.Serve stopped")
		}
	}()
	return srv
}
