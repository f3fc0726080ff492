package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxl-mqtt-bridge/config"
	"voxl-mqtt-bridge/internal/bridge"
	"voxl-mqtt-bridge/internal/broker"
	"voxl-mqtt-bridge/internal/broker/mqtt"
	"voxl-mqtt-bridge/internal/broker/nats"
	"voxl-mqtt-bridge/internal/logger"
	"voxl-mqtt-bridge/internal/metrics"
	"voxl-mqtt-bridge/internal/pipe"
)

func main() {
	confPath := flag.String("conf", config.DefaultPath, "path to config file")
	showConfig := flag.Bool("config", false, "print the loaded configuration and exit")
	saveConfig := flag.Bool("save-config", false, "write a default config file and exit")
	verbose := flag.Bool("verbose", false, "print the loaded configuration at startup")
	debug := flag.Bool("debug", false, "set log level to debug")
	interval := flag.Int("interval", 0, "override flush interval in seconds (must be positive)")

	flag.Parse()

	if *saveConfig {
		if err := config.SaveDefault(*confPath); err != nil {
			log.Fatalf("failed to save config: %v", err)
		}
		fmt.Printf("wrote default config to %s\n", *confPath)
		return
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	intervalSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "interval" {
			intervalSet = true
		}
	})
	if err := applyFlushOverride(cfg, intervalSet, *interval); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	if *showConfig {
		cfg.Print(os.Stdout)
		return
	}
	if *verbose {
		cfg.Print(os.Stdout)
	}

	logr, err := logger.NewLogger(logger.Options{
		Level:     cfg.LogLevel,
		Directory: cfg.LogDir,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logr.Sync()

	var metricsService *metrics.Metrics
	var metricsCollector *metrics.Collector
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logr.Fatal("failed to create metrics service", "error", err)
		}

		metricsCollector = metrics.NewCollector(metricsService, 15*time.Second)
		metricsCollector.Start()
		defer metricsCollector.Stop()

		mux := http.NewServeMux()
		mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: mux,
		}

		go func() {
			logr.Info("starting metrics server",
				"address", cfg.MetricsAddr,
				"path", cfg.MetricsPath)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logr.Error("metrics server error", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// pipe readers only start once the bridge opens its channels, so the
	// callback can bind to the bridge created below
	var br *bridge.Bridge
	pipes := pipe.NewFIFOTransport("", logr, pipe.Callbacks{
		OnData: func(ch int, data []byte) { br.HandleChannelData(ch, data) },
	})

	factory := func(handlers broker.Handlers) (broker.Client, error) {
		switch cfg.BrokerType {
		case config.BrokerTypeNATS:
			return nats.NewClient(cfg, logr, handlers)
		default:
			return mqtt.NewClient(cfg, logr, handlers)
		}
	}

	br, err = bridge.New(cfg, logr, metricsService, pipes, factory)
	if err != nil {
		logr.Fatal("failed to create bridge", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := br.Start(ctx); err != nil {
		logr.Fatal("failed to start bridge", "error", err)
	}

	logr.Info("voxl-mqtt-bridge started",
		"broker", fmt.Sprintf("%s://%s:%d", cfg.BrokerType, cfg.BrokerHost, cfg.BrokerPort),
		"flushInterval", cfg.FlushInterval,
		"metricsEnabled", cfg.MetricsEnabled)

	sig := <-sigChan
	logr.Info("shutting down...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logr.Error("failed to shutdown metrics server", "error", err)
		}
	}

	cancel()
	br.Stop()
}

// applyFlushOverride applies the --interval flag. An explicitly passed value
// must be a positive number of seconds; zero and negative values are
// rejected rather than treated as unset.
func applyFlushOverride(cfg *config.Config, set bool, seconds int) error {
	if !set {
		return nil
	}
	if seconds < 1 {
		return fmt.Errorf("interval must be a positive number of seconds, got %d", seconds)
	}
	cfg.FlushInterval = seconds
	return nil
}
