package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"k8s.io/klog/v2"
)

// Options configures the HTTP surface of a running consumer.
type Options struct {
	Stream StatsSource
	Group  string
	Pool   PoolStats
	// Gatherer backs /metrics; nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Tracing wraps requests in spans.
	Tracing     bool
	ServiceName string
	// Profiling exposes pprof under /debug.
	Profiling bool
}

// NewRouter builds the gin engine serving /healthz, /readyz, /stats and /metrics.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logging())
	if opts.Tracing {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}

	h := &health{stream: opts.Stream, group: opts.Group, pool: opts.Pool}
	h.RegisterRoutes(&r.RouterGroup)

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if opts.Profiling {
		registerProfiling(r)
	}
	return r
}

// Serve runs handler on addr until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	klog.Infof("HTTP APIs are being served on: %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	klog.Info("HTTP server shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("HTTP server graceful shutdown error: %v", err)
		if closeErr := server.Close(); closeErr != nil {
			klog.Errorf("HTTP server force close error: %v", closeErr)
		}
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	klog.Info("HTTP server closed normally")
	return nil
}
