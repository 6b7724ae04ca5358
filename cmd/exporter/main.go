package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/config"
	"proxmox-adaptive-exporter/internal/collector"
	"proxmox-adaptive-exporter/internal/exposition"
	"proxmox-adaptive-exporter/internal/features"
	"proxmox-adaptive-exporter/internal/metrics"
	"proxmox-adaptive-exporter/internal/registry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	listenAddr := flag.String("web.listen-address", "", "Override the configured listen address")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *listenAddr != "" {
		if err := applyListenAddr(cfg, *listenAddr); err != nil {
			bootLogger := zerolog.New(os.Stderr)
			bootLogger.Fatal().Err(err).Str("addr", *listenAddr).
				Msg("Invalid listen address")
		}
	}

	logger := newLogger(cfg)
	logger.Info().Str("config", *configPath).Msg("Starting exporter")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Capability detection runs once at startup; overrides from the config
	// bypass the probes.
	detector := features.NewDetector(logger, cfg.Features.ProbeTimeout, cfg.Features.Overrides)
	featureSet := detector.Detect(ctx)
	logger.Info().
		Interface("enabled", featureSet.EnabledList()).
		Time("detected_at", featureSet.DetectedAt()).
		Msg("Feature detection complete")

	promReg := prometheus.NewRegistry()
	m := metrics.NewMetrics(promReg)
	m.SetFeatures(featureSet)

	reg := registry.New()
	promReg.MustRegister(reg)

	set := collector.BuildSet(featureSet, logger)
	if err := collector.RegisterInstruments(reg, set); err != nil {
		logger.Fatal().Err(err).Msg("Instrument registration failed")
	}

	loop := collector.NewLoop(set, reg, m, logger, cfg.Collector.Interval, cfg.Collector.CommandTimeout)
	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Collection loop stopped")
		}
	}()

	handler := exposition.NewHandler(cfg, promReg, reg, logger)
	server := exposition.NewServer(cfg, handler)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), exposition.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	logger.Info().Str("addr", server.Addr).Str("path", cfg.Server.Path).Msg("Serving metrics")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("HTTP server failed")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	logger := zerolog.New(out)
	if cfg.Logging.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func applyListenAddr(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	cfg.Server.Host = host
	cfg.Server.Port = port
	return nil
}
