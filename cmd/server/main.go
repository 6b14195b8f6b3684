package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden/aggregate"
	"warden/anomaly"
	"warden/bodyparsing"
	"warden/config"
	"warden/geo"
	"warden/hyperscan"
	"warden/logging"
	"warden/mgmt"
	"warden/rules"
	"warden/threatintel"
	"warden/waf"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const verdictQueueSize = 4096

// Dependency injection composition root
func main() {
	logLevel := flag.String("loglevel", "error", "sets log level. Can be one of: debug, info, warn, error, fatal, panic.")
	configPath := flag.String("config", "", "path to the YAML config file. Defaults are used when not set.")
	regexEngine := flag.String("regexengine", "hyperscan", "multi-regex engine used for rule prefiltering. Can be one of: hyperscan, go.")
	flag.Parse()

	loglevel, _ := zerolog.ParseLevel(*logLevel)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(loglevel).With().Timestamp().Caller().Logger()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("Error while loading config")
		}
	}

	var factory rules.MultiRegexEngineFactory
	switch *regexEngine {
	case "hyperscan":
		factory = hyperscan.NewMultiRegexEngineFactory()
	case "go":
		factory = hyperscan.NewGoRegexEngineFactory()
	default:
		logger.Fatal().Str("regexengine", *regexEngine).Msg("Unknown regex engine")
	}

	store := rules.NewStore(logger, factory)
	for _, r := range cfg.Rules {
		if err := store.Upsert(r); err != nil {
			logger.Fatal().Err(err).Int("ruleID", r.ID).Msg("Error while seeding rule")
		}
	}

	health := &waf.HealthState{}

	rangeDB := geo.NewRangeDB(logger, geo.NewFileSystem(cfg.DataDir))
	gate, err := geo.NewGate(logger, rangeDB, geo.Config{
		GeoBlockingEnabled: cfg.Geo.Enabled,
		BlockedCountries:   cfg.Geo.BlockedCountries,
		Blocklist:          cfg.Geo.Blocklist,
		Allowlist:          cfg.Geo.Allowlist,
		LookupBudget:       cfg.GeoLookupBudget(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Error while creating geo gate")
	}

	threatEngine := threatintel.NewEngine(logger, threatintel.NewFileSystem(cfg.DataDir))

	var refresher *threatintel.Refresher
	if cfg.ThreatIntel.BaseURL != "" && len(cfg.ThreatIntel.FeedIDs) > 0 {
		fetcher := &threatintel.HTTPFetcher{BaseURL: cfg.ThreatIntel.BaseURL}
		refresher = threatintel.NewRefresher(logger, threatEngine, fetcher, cfg.ThreatIntel.FeedIDs, cfg.FetchTimeout(), health)
		if err := refresher.Start(cfg.ThreatIntel.Schedule); err != nil {
			logger.Fatal().Err(err).Msg("Error while starting threat feed refresher")
		}
		defer refresher.Stop()
	}

	scorer := anomaly.NewScorer(anomaly.NewRateWindow(), cfg.Anomaly.SuspiciousTokens)
	aggregator := aggregate.New(logger, verdictQueueSize)
	defer aggregator.Close()

	engine, err := waf.NewServer(
		logger,
		cfg.EngineConfig(),
		gate,
		threatEngine,
		rules.NewEngine(store),
		scorer,
		aggregator,
		logging.NewZerologResultsLogger(logger),
		bodyparsing.NewBodyCapturer(cfg.MaxBodyScanBytes),
		waf.RealClock{},
		health,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Error while creating WAF engine")
	}

	api := mgmt.NewServer(logger, engine, store, aggregator, gate, cfg.BlockStatusCode)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("Starting WAF server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Error while running WAF server")
	}
}
