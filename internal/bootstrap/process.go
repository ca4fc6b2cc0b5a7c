package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/freshcart-backend/api/controllers"
	"github.com/angelmondragon/freshcart-backend/pkg/config"
	"github.com/angelmondragon/freshcart-backend/pkg/logger"
)

const opsReadHeaderTimeout = 5 * time.Second

// Process is one binary's loaded configuration and logger.
type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
}

// Start reads an optional .env, loads the FRESHCART_* config and builds the
// logger for kind. A config error ends the process.
func Start(kind string) *Process {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind

	return &Process{Kind: kind, Config: cfg, Logger: NewLogger(kind, cfg.App)}
}

func NewLogger(kind string, app config.AppConfig) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(app.LogLevel),
		Format:      app.LogFormat,
		WarnStack:   app.LogWarnStack,
		Caller:      app.LogCaller,
		Redact:      app.LogRedact,
	})
}

// Must ends the process when a required resource failed to come up.
func (p *Process) Must(resource string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(p.Logger.WithField(context.Background(), "resource", resource), "resource not working", err)
	os.Exit(1)
}

// Close runs closer and logs its error under name.
func (p *Process) Close(name string, closer func() error) {
	if err := closer(); err != nil {
		p.Logger.Error(p.Logger.WithField(context.Background(), "resource", name), "close failed", err)
	}
}

// Run calls fn until SIGINT or SIGTERM. When an ops address is configured
// the health and metrics listener runs next to it and stops with it.
// Cancellation is a clean exit.
func (p *Process) Run(fields map[string]any, checks map[string]controllers.Pinger, fn func(ctx context.Context) error) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := p.Logger.WithFields(sigCtx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
	})
	if len(fields) > 0 {
		ctx = p.Logger.WithFields(ctx, fields)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})

	if addr := p.Config.Service.OpsAddr; addr != "" {
		server := &http.Server{
			Addr:              addr,
			Handler:           OpsHandler(p.Config, checks, p.Logger, prometheus.DefaultGatherer),
			ReadHeaderTimeout: opsReadHeaderTimeout,
		}
		g.Go(func() error {
			p.Logger.Info(p.Logger.WithField(gctx, "addr", addr), "ops listener started")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, release := context.WithTimeout(context.Background(), p.Config.Service.ShutdownTimeout)
			defer release()
			return server.Shutdown(shutdownCtx)
		})
	}

	p.Logger.Info(ctx, p.Kind+" started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		p.Logger.Info(ctx, p.Kind+" shut down gracefully")
	}
	return err
}

// OpsHandler exposes liveness, readiness over checks, and the metrics in gatherer.
func OpsHandler(cfg *config.Config, checks map[string]controllers.Pinger, logg *logger.Logger, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, checks, logg))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
