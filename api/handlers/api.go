// Package handlers serves the intake HTTP API: dataset validation, QC status transitions and the
// standalone flag, metadata, crossover and expocode tools.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/oceanco2/intake/api/metrics"
	"github.com/oceanco2/intake/intake/pkg/crossover"
	"github.com/oceanco2/intake/intake/pkg/factstore"
	"github.com/oceanco2/intake/intake/pkg/pipeline"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
)

const defaultMaxBodyBytes = 32 << 20 // 32MB

// History records validation runs and serves them back.
type History interface {
	WriteResult(ctx context.Context, res *pipeline.Result, eventTS time.Time) error
	Flags(ctx context.Context, expocode, runID string) ([]factstore.FlagFact, error)
	Crossovers(ctx context.Context, expocode string, limit int) ([]factstore.CrossoverFact, error)
}

// VersionInfo describes the running build.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Pipeline *pipeline.Pipeline
	Engine   *qcstatus.Engine
	Store    statusstore.Store

	// History is optional; without it runs are not recorded and the history routes answer 404.
	History History
	// Limiter throttles the /v1 routes per client IP.
	Limiter        *RateLimiter
	AllowedOrigins []string
	// Crossover tunes the standalone crossover tool.
	Crossover    crossover.Options
	MaxBodyBytes int64
	VersionInfo  VersionInfo
	// Ready reports readiness for /readyz; nil means always ready.
	Ready func() bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pipeline == nil {
		return errors.New("pipeline is required")
	}
	if cfg.Engine == nil {
		return errors.New("status engine is required")
	}
	if cfg.Store == nil {
		return errors.New("status store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Limiter == nil {
		// 100 requests per minute per IP with a burst of 20.
		cfg.Limiter = NewRateLimiter(rate.Every(time.Minute/100), 20)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Crossover == (crossover.Options{}) {
		cfg.Crossover = crossover.DefaultOptions()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return nil
}

type API struct {
	log    *slog.Logger
	cfg    Config
	router chi.Router
}

func New(cfg Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &API{
		log: cfg.Logger,
		cfg: cfg,
	}
	a.router = a.routes()
	metrics.BuildInfo.WithLabelValues(cfg.VersionInfo.Version, cfg.VersionInfo.Commit, cfg.VersionInfo.Date).Set(1)
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *API) Handler() http.Handler {
	return a.router
}

// Close releases the rate limiter.
func (a *API) Close() {
	a.cfg.Limiter.Close()
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Get("/version", a.version)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(a.cfg.Limiter))

		r.Get("/datasets", a.ListDatasets)
		r.Route("/datasets/{expocode}", func(r chi.Router) {
			r.Post("/validate", a.ValidateDataset)
			r.Get("/status", a.GetStatus)
			r.Post("/status/{action}", a.ApplyAction)
			r.Get("/checks", a.ListChecks)
			r.Get("/runs/{runID}/flags", a.GetRunFlags)
			r.Get("/crossovers", a.ListCrossovers)
		})

		r.Post("/metadata/merge", a.MergeMetadata)
		r.Post("/flags/encode", a.EncodeFlags)
		r.Post("/flags/decode", a.DecodeFlags)
		r.Post("/crossovers", a.DetectCrossovers)
		r.Get("/expocodes/{expocode}", a.GetExpocode)
	})
	return r
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		a.log.Error("api: failed to write healthz response", "error", err)
	}
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Ready != nil && !a.cfg.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready\n")); err != nil {
			a.log.Error("api: failed to write readyz response", "error", err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		a.log.Error("api: failed to write readyz response", "error", err)
	}
}

func (a *API) version(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.cfg.VersionInfo)
}
