// Package exporters exposes the Prometheus registry over HTTP.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/version"
)

var buildInfoOnce sync.Once

// errorLogger adapts slog to promhttp.Logger.
type errorLogger struct {
	logger *slog.Logger
}

func (l errorLogger) Println(v ...any) {
	l.logger.Error("Failed to gather metrics", "error", fmt.Sprint(v...))
}

// HTTPHandler returns the /metrics handler for the default registry. It
// also registers an appshell_build_info gauge labelled with the running
// version. Gather errors are logged and the metrics that could be
// collected are still served.
func HTTPHandler() http.Handler {
	buildInfoOnce.Do(func() {
		info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "appshell_build_info",
			Help: "Build information of the running binary",
		}, []string{"version", "commit", "goversion"})
		info.WithLabelValues(version.Version, version.GitCommit, runtime.Version()).Set(1)
		prometheus.MustRegister(info)
	})

	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          errorLogger{logger: logging.GetLogger("metrics")},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}))
}
