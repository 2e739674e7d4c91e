package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/wuzuhao/regions-data/internal/application"
	"github.com/wuzuhao/regions-data/internal/config"
	"github.com/wuzuhao/regions-data/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("regions-data", "Regions Data - administrative division lookup service")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	host := kingpinApp.Flag("host", "Address the HTTP server binds to").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	var reloadSet bool
	reloadFlag := kingpinApp.Flag("reload", "Watch the data file and reload it on change").IsSetByUser(&reloadSet).Bool()
	dataFile := kingpinApp.Flag("data-file", "Path to the region dataset (JSON)").String()
	logLevel := kingpinApp.Flag("log-level", "Log level: debug, info, warn, error").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	var trustSet bool
	trustFlag := kingpinApp.Flag("trust-forwarded-for", "Rate limit by the first X-Forwarded-For hop (only behind a trusted proxy)").IsSetByUser(&trustSet).Bool()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		Host:       host,
		Port:       port,
		DataFile:   dataFile,
		LogLevel:   logLevel,
	}

	if reloadSet {
		overrides.Reload = reloadFlag
	}

	if trustSet {
		overrides.TrustForwarded = trustFlag
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	ctx, stop := notifyContext(context.Background(), logger)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

// notifyContext returns a context cancelled on SIGINT or SIGTERM.
func notifyContext(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-quit:
			logger.Info("signal received", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
