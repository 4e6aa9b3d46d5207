package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pwstlabs/linkedfate/internal/anomaly"
	"github.com/pwstlabs/linkedfate/internal/api"
	"github.com/pwstlabs/linkedfate/internal/config"
	"github.com/pwstlabs/linkedfate/internal/engine"
	"github.com/pwstlabs/linkedfate/internal/ingest/portsim"
	"github.com/pwstlabs/linkedfate/internal/rules"
	"github.com/pwstlabs/linkedfate/internal/scheduler"
	"github.com/pwstlabs/linkedfate/internal/signals/synthetic"
	"github.com/pwstlabs/linkedfate/internal/storage/sqlite"
)

func main() {
	cfg := parseFlags()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("starting linkedfate server",
		zap.Int("port", cfg.Port),
		zap.String("db", cfg.DatabasePath),
		zap.String("ruleset", cfg.RulesetPath))

	// Load and validate the correlation ruleset
	rs, err := loadRuleset(cfg, logger)
	if err != nil {
		logger.Fatal("failed to load ruleset", zap.Error(err))
	}

	// Open the store
	store, err := sqlite.NewStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	// External signal feeds. The synthetic adapter stands in for the
	// market, news, and weather fetchers; a fixture file primes it.
	signalAdapter := synthetic.NewAdapter()
	if cfg.SignalFixture != "" {
		if err := signalAdapter.LoadFixture(cfg.SignalFixture); err != nil {
			logger.Fatal("failed to load signal fixture", zap.Error(err))
		}
		logger.Info("loaded signal fixture", zap.String("path", cfg.SignalFixture))
	}

	engCfg := engine.DefaultConfig()
	engCfg.Detection = anomaly.Config{
		ThresholdSigma: cfg.ThresholdSigma,
		CriticalSigma:  cfg.CriticalSigma,
		BaselineWindow: time.Duration(cfg.BaselineDays) * 24 * time.Hour,
		Lookback:       time.Duration(cfg.LookbackHours) * time.Hour,
		MaxRows:        anomaly.DefaultConfig().MaxRows,
	}
	engCfg.AlertTTL = cfg.AlertTTL

	eng := engine.New(store, rs, signalAdapter, signalAdapter, signalAdapter, engCfg, logger)

	intervals := scheduler.DefaultIntervals()
	intervals.Detection = cfg.DetectionInterval
	intervals.Evaluation = cfg.EvaluationInterval

	sched := scheduler.NewScheduler(eng, intervals, logger)

	if cfg.SimulatePorts {
		seed := cfg.SimulateSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		sim := portsim.NewSimulator(portsim.DefaultPorts(), rs.Metadata.RegionCode, rng, logger.Named("portsim"))
		sched.SetSimulator(sim, store)
		logger.Info("port simulation enabled", zap.Int64("seed", seed))
	}

	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	apiServer := api.NewServer(store, sched, addr, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("received signal", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Error("error shutting down server", zap.Error(err))
		}

		sched.Stop()
		logger.Info("shutdown complete")
	}
}

func loadRuleset(cfg config.Config, logger *zap.Logger) (*rules.Ruleset, error) {
	if cfg.RulesetPath == "" {
		logger.Info("no ruleset path, using built-in defaults")
		return rules.Default(), nil
	}

	if _, err := os.Stat(cfg.RulesetPath); os.IsNotExist(err) {
		logger.Warn("ruleset file not found, using built-in defaults", zap.String("path", cfg.RulesetPath))
		return rules.Default(), nil
	}

	if cfg.SchemaPath != "" {
		validator, err := rules.NewValidator(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize validator: %w", err)
		}
		if errs := validator.ValidateFile(cfg.RulesetPath); len(errs) > 0 {
			for _, e := range errs {
				logger.Error("ruleset validation error", zap.String("path", e.Path), zap.String("message", e.Message))
			}
			return nil, fmt.Errorf("ruleset validation failed with %d error(s)", len(errs))
		}
	}

	return rules.Load(cfg.RulesetPath)
}

func parseFlags() config.Config {
	cfg := config.DefaultConfig()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "HTTP server host")
	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	flag.StringVar(&cfg.RulesetPath, "ruleset", cfg.RulesetPath, "Correlation ruleset YAML file")
	flag.StringVar(&cfg.SchemaPath, "schema", cfg.SchemaPath, "Ruleset JSON schema file")
	flag.Float64Var(&cfg.ThresholdSigma, "threshold-sigma", cfg.ThresholdSigma, "Z-score for significant deviation")
	flag.Float64Var(&cfg.CriticalSigma, "critical-sigma", cfg.CriticalSigma, "Z-score for critical deviation")
	flag.IntVar(&cfg.BaselineDays, "baseline-days", cfg.BaselineDays, "Baseline window in days")
	flag.IntVar(&cfg.LookbackHours, "lookback-hours", cfg.LookbackHours, "Detection lookback in hours")
	flag.DurationVar(&cfg.AlertTTL, "alert-ttl", cfg.AlertTTL, "Active alert time-to-live")
	flag.DurationVar(&cfg.DetectionInterval, "detection-interval", cfg.DetectionInterval, "Anomaly detection cadence")
	flag.DurationVar(&cfg.EvaluationInterval, "evaluation-interval", cfg.EvaluationInterval, "Risk evaluation cadence")
	flag.BoolVar(&cfg.SimulatePorts, "simulate-ports", cfg.SimulatePorts, "Generate synthetic port observations")
	flag.Int64Var(&cfg.SimulateSeed, "simulate-seed", cfg.SimulateSeed, "Port simulation PRNG seed (0 = time-based)")
	flag.StringVar(&cfg.SignalFixture, "signal-fixture", cfg.SignalFixture, "JSON fixture priming the market/news/weather feeds")

	flag.Parse()

	return cfg
}
