package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsMux returns the handler of the metrics side port. /ping answers
// "Pong" for liveness probes that must not touch the database, /metrics serves
// the default Prometheus registry.
func NewMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Pong"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
