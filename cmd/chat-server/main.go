// Command chat-server runs a websocket chat room on top of a channel layer.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/config"
	"github.com/infigaming-com/go-channels/layer"
	_ "github.com/infigaming-com/go-channels/layer/driver/inmem"
	_ "github.com/infigaming-com/go-channels/layer/driver/redis"
	"github.com/infigaming-com/go-channels/observability/metrics"
	"github.com/infigaming-com/go-channels/transport/websocket"
	"github.com/infigaming-com/go-channels/util"
	"github.com/infigaming-com/go-channels/web"
	"github.com/infigaming-com/go-channels/web/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to an in-process channel layer)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(*configPath); err != nil {
			lg, _ := util.NewLogger()
			lg.Fatal("failed to load config", zap.String("path", *configPath), zap.Error(err))
		}
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = cfg.Log.Level
	}
	lg, syncLogger := util.NewLoggerWithLevel(level)
	defer syncLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Error("chat server stopped", zap.Error(err))
		syncLogger()
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, cfg *config.Config) error {
	var meter metric.Meter
	if cfg.Metrics.Enabled {
		exporter, err := metrics.NewMetricExporter(ctx,
			metrics.WithServiceName(cfg.Metrics.ServiceName),
			metrics.WithEnvironment(cfg.Metrics.Environment),
			metrics.WithOTLPEndpoint(cfg.Metrics.OTLPEndpoint),
			metrics.WithOTLPGRPCEndpoint(cfg.Metrics.OTLPGRPCEndpoint),
		)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := exporter.Close(shutdownCtx); err != nil {
				lg.Warn("failed to flush metrics", zap.Error(err))
			}
		}()
		meter = exporter.Meter()
	}

	layers := layer.NewManager(lg, cfg.ChannelLayers)
	defer func() {
		if err := layers.Close(context.Background()); err != nil {
			lg.Warn("failed to close channel layers", zap.Error(err))
		}
	}()
	lg.Info("channel layers configured", zap.Strings("aliases", layers.Aliases()), zap.Strings("backends", layer.Backends()))

	endpoint, err := newChatEndpoint(lg, layers, cfg.Chat, meter)
	if err != nil {
		return err
	}

	server := web.NewServer(
		web.WithLogger(lg),
		web.WithMode(cfg.Server.Mode),
		web.WithPort(cfg.Server.Port),
		web.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		web.WithMiddleware(middleware.CorrelationIdMiddleware()),
		web.WithMiddleware(middleware.LoggingMiddleware(
			middleware.WithLogger(lg),
			middleware.WithDebugEnabled(cfg.Server.Mode == "debug"),
			middleware.WithExcludePaths([]string{"/", "/healthcheck"}),
		)),
		web.WithRoute(cfg.Server.Path, websocket.Handler(endpoint,
			websocket.WithLogger(lg),
			websocket.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		)),
	)
	return server.Run(ctx)
}
