// Command atlasbook is a minimal demo binary that wires configuration,
// a matching engine, and a feed handler together and exposes Prometheus
// metrics. It is a bootstrap shim, not part of the core library surface.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/atlasbook/atlasbook/internal/book"
	"github.com/atlasbook/atlasbook/internal/config"
	"github.com/atlasbook/atlasbook/internal/feed"
	"github.com/atlasbook/atlasbook/internal/matching"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("atlasbook: config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("atlasbook: logger: %v", err)
	}
	defer logger.Sync()

	engine, err := matching.NewEngine(cfg.Matching, logger)
	if err != nil {
		logger.Fatal("building matching engine", zap.Error(err))
	}

	symbols := book.NewSymbolTable()
	applier := feed.NewFeedApplier(symbols, cfg.Matching.PoolSize, logger)
	handler, err := feed.NewFeedHandler(cfg.Feed, applier, logger)
	if err != nil {
		logger.Fatal("building feed handler", zap.Error(err))
	}

	handler.SetGapCallback(func(expected, received uint64) {
		logger.Warn("sequence gap detected", zap.Uint64("expected", expected), zap.Uint64("received", received))
	})

	handler.Start()
	defer handler.Stop()

	_ = engine // the demo wires the engine and feed side by side; a real
	// deployment would bridge ITCH order-add/cancel/execute messages
	// into engine.SubmitOrder/CancelOrder rather than the L2 aggregate
	// path handler.go applies directly to its own per-symbol books.

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.JSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}
