package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	promrecorder "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
	"go.uber.org/zap"

	"swapkv/internal/metrics"
	"swapkv/internal/model"
)

// Swapper is the service behind the transport.
type Swapper interface {
	Swap(ctx context.Context, req model.Request) (model.Result, error)
}

type Config struct {
	// CORSOrigins enables CORS for the listed origins; "*" allows any.
	CORSOrigins []string `mapstructure:"cors-origins"`
	// Metrics exposes prometheus collectors on /metrics.
	Metrics bool `mapstructure:"metrics"`
}

func DefaultConfig() Config {
	return Config{Metrics: true}
}

type Opt func(*options)

type options struct {
	cfg    Config
	logger *zap.Logger
}

func WithConfig(cfg Config) Opt {
	return func(o *options) {
		o.cfg = cfg
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(o *options) {
		o.logger = logger
	}
}

// The recorder registers on the default prometheus registry, which accepts a
// collector only once per process.
var httpMetrics = sync.OnceValue(func() httpmetrics.Middleware {
	return httpmetrics.New(httpmetrics.Config{
		Recorder: promrecorder.NewRecorder(promrecorder.Config{Prefix: metrics.Namespace}),
	})
})

// NewServer wires the swap handler into a router and exposes a health check.
func NewServer(svc Swapper, opts ...Opt) http.Handler {
	o := options{cfg: DefaultConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	h := &handler{svc: svc, logger: o.logger}
	mdlw := httpMetrics()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(o.logger))
	r.Use(middleware.Recoverer)
	if len(o.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: o.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPut},
		}).Handler)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	swap := std.Handler("swap", mdlw, http.HandlerFunc(h.swap))
	r.Method(http.MethodPut, "/", swap)
	r.Method(http.MethodPut, "/swap", swap)

	if o.cfg.Metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}
	return r
}
