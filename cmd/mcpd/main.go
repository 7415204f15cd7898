// Command mcpd serves tools and prompts over the streamable HTTP transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joeshaw/envdecode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arunksingh16/mcp/internal/logctx"
	"github.com/arunksingh16/mcp/lifecycle"
	"github.com/arunksingh16/mcp/mcp"
	"github.com/arunksingh16/mcp/registry"
	"github.com/arunksingh16/mcp/streamhttp"
	"github.com/arunksingh16/mcp/toolsets/calc"
	"github.com/arunksingh16/mcp/toolsets/dynamo"
	"github.com/arunksingh16/mcp/toolsets/news"
)

const (
	serverName    = "mcpd"
	serverVersion = "0.3.0"
)

// Config is populated from the environment.
type Config struct {
	Host          string        `env:"HOST,default=0.0.0.0"`
	Port          int           `env:"PORT,default=8000"`
	Path          string        `env:"MCP_PATH,default=/mcp"`
	MetricsPort   int           `env:"METRICS_PORT,default=0"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE,default=15s"`
	LogLevel      string        `env:"LOG_LEVEL,default=INFO"`

	NewsAPIURL string `env:"NEWS_API_URL,default="`

	DynamoEnabled bool   `env:"DYNAMO_TOOLS_ENABLED,default=false"`
	AWSRegion     string `env:"AWS_REGION,default="`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	log := slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := lifecycle.NewCoordinator(log)

	newsOpts := []news.Option{}
	if cfg.NewsAPIURL != "" {
		newsOpts = append(newsOpts, news.WithBaseURL(cfg.NewsAPIURL))
	}
	newsSet := news.NewSet(newsOpts...)

	defs := []registry.Def{calc.Tool()}
	defs = append(defs, newsSet.Defs()...)

	if cfg.DynamoEnabled {
		awsOpts := []func(*awsconfig.LoadOptions) error{}
		if cfg.AWSRegion != "" {
			awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		dynamoSet := dynamo.NewSet(dynamodb.NewFromConfig(awsCfg))
		defs = append(defs, dynamoSet.Defs()...)
	}

	// Validate the definition set once at startup; per-request snapshots
	// cannot fail after this.
	if _, err := registry.New(defs...); err != nil {
		return fmt.Errorf("building registry: %w", err)
	}
	factory := func() *registry.Registry {
		return registry.MustNew(defs...)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := streamhttp.New(cfg.Path, factory, coord,
		streamhttp.WithLogger(log),
		streamhttp.WithServerInfo(mcp.ImplementationInfo{Name: serverName, Version: serverVersion}),
		streamhttp.WithMetrics(promReg),
	)
	if err != nil {
		return fmt.Errorf("building handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsPort != 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.MetricsPort)),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("metrics.listen", slog.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics.serve.error", slog.String("err", err.Error()))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server.listen",
			slog.String("addr", srv.Addr),
			slog.String("path", cfg.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start", slog.Duration("grace", cfg.ShutdownGrace))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	// Drain in-flight exchanges first so the listener shutdown below finds
	// idle connections.
	if err := coord.Shutdown(shutdownCtx); err != nil {
		log.Warn("server.drain.incomplete", slog.String("err", err.Error()))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server.shutdown.incomplete", slog.String("err", err.Error()))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info("server.shutdown.done")
	return nil
}
