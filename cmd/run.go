package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/config"
	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/ingester/manager"
	"github.com/chomp-dev/chomp/pkg/loader"
	"github.com/chomp-dev/chomp/pkg/loader/chain"
	"github.com/chomp-dev/chomp/pkg/loader/evmlogger"
	"github.com/chomp-dev/chomp/pkg/loader/httpapi"
	"github.com/chomp-dev/chomp/pkg/loader/monitor"
	"github.com/chomp-dev/chomp/pkg/loader/processor"
	"github.com/chomp-dev/chomp/pkg/loader/scraper"
	"github.com/chomp-dev/chomp/pkg/loader/wsapi"
	"github.com/chomp-dev/chomp/pkg/observability"
	"github.com/chomp-dev/chomp/pkg/scheduler"
	"github.com/chomp-dev/chomp/pkg/store"
	"github.com/chomp-dev/chomp/pkg/store/clickhouse"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the chomp ingestion engine",
	Long: `Loads every configured namespace, ensures its ClickHouse schema, and
runs the per-ingester tick scheduler until interrupted. Every process in a
cluster runs this command against the same cache and ClickHouse, not a
single elected leader.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Logging)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	namespaces, err := ingester.LoadAll(cfg.Namespaces)
	if err != nil {
		return fmt.Errorf("load namespaces: %w", err)
	}

	c, err := cache.New(logger, cfg.Cache)
	if err != nil {
		return fmt.Errorf("connect cache: %w", err)
	}

	registry := ingester.NewRegistry(logger, c, cfg.Cache)

	mgr, err := manager.New(namespaces, registry)
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}
	ingesters := mgr.ByName()
	graphs := mgr.Graphs()
	logger.WithField("ingesters", len(ingesters)).Info("Configuration loaded")

	chClient, err := clickhouse.New(logger, cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	if err := chClient.Start(); err != nil {
		return fmt.Errorf("start clickhouse client: %w", err)
	}
	tsdb := clickhouse.NewTSDB(logger, chClient, cfg.ClickHouse)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	for _, ing := range ingesters {
		if err := tsdb.EnsureSchema(ctx, ing); err != nil {
			return fmt.Errorf("ensure schema for %q: %w", ing.Name, err)
		}
	}

	cross := transformer.NewCrossResolver(c, cfg.Cache)
	engine := transformer.New(cross)

	var vitals *monitor.Tracker
	for _, ing := range ingesters {
		if ing.Kind == ingester.KindMonitor {
			vitals = monitor.NewTracker()
			break
		}
	}

	loaders := buildLoaders(logger, cfg, ingesters, engine, c, vitals)
	defer closeLoaders(logger, loaders)

	publisher := store.NewPublisher(logger, c, cfg.Cache)
	if err := mgr.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile registry: %w", err)
	}

	observability.StartMetricsServer(cfg.MetricsAddr)

	sched, err := scheduler.New(logger, cfg.Scheduler, scheduler.Deps{
		Cache:     c,
		CacheCfg:  cfg.Cache,
		Ingesters: ingesters,
		Graphs:    graphs,
		Loaders:   loaders,
		Engine:    engine,
		TSDB:      tsdb,
		Publisher: publisher,
		Registry:  registry,
		Vitals:    vitals,
		RedisAddr: cfg.Cache.Address,
		RedisPass: cfg.Cache.Password,
		RedisDB:   cfg.Cache.DB,
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	if err := sched.Stop(); err != nil {
		logger.WithError(err).Warn("Scheduler did not shut down cleanly")
	}
	if err := tsdb.Close(); err != nil {
		logger.WithError(err).Warn("ClickHouse client did not close cleanly")
	}
	return nil
}

// buildLoaders instantiates one loader.Loader per kind actually
// present in ingesters, so a deployment with no evm_logger ingesters
// never launches that kind's RPC pool.
func buildLoaders(
	log logrus.FieldLogger,
	cfg *config.Config,
	ingesters map[string]*ingester.Ingester,
	engine *transformer.Engine,
	c cache.Cache,
	vitals *monitor.Tracker,
) map[ingester.Kind]loader.Loader {
	present := make(map[ingester.Kind]bool)
	for _, ing := range ingesters {
		present[ing.Kind] = true
	}

	loaders := make(map[ingester.Kind]loader.Loader)

	if present[ingester.KindHTTPAPI] {
		loaders[ingester.KindHTTPAPI] = httpapi.New(log, cfg.Loaders.HTTPAPITimeout, engine)
	}
	if present[ingester.KindWSAPI] {
		loaders[ingester.KindWSAPI] = wsapi.New(log, engine)
	}
	if present[ingester.KindScraper] {
		loaders[ingester.KindScraper] = scraper.New(log, cfg.Loaders.ScraperTimeout)
	}
	if present[ingester.KindProcessor] {
		loaders[ingester.KindProcessor] = processor.New()
	}

	if present[ingester.KindEVMCaller] || present[ingester.KindSVMCaller] || present[ingester.KindSuiCaller] {
		pool := cfg.Loaders.Chain
		adapter := chain.NewJSONRPCAdapter(pool.RequestTimeout)
		chainLoader := chain.New(log, adapter, pool.Endpoints, pool.Cooldown, pool.MaxBackoff)
		if present[ingester.KindEVMCaller] {
			loaders[ingester.KindEVMCaller] = chainLoader
		}
		if present[ingester.KindSVMCaller] {
			loaders[ingester.KindSVMCaller] = chainLoader
		}
		if present[ingester.KindSuiCaller] {
			loaders[ingester.KindSuiCaller] = chainLoader
		}
	}

	if present[ingester.KindEVMLogger] {
		el := cfg.Loaders.EVMLogger
		var endpoint string
		if len(el.Endpoints) > 0 {
			endpoint = el.Endpoints[0]
		}
		adapter := evmlogger.NewJSONRPCAdapter(endpoint, el.Cooldown, el.Cooldown)
		loaders[ingester.KindEVMLogger] = evmlogger.New(log, adapter, el.ChunkSize, el.Perpetual)
	}

	if present[ingester.KindMonitor] {
		geo := cfg.Loaders.Monitor
		adapter := monitor.NewHTTPGeoAdapter(&http.Client{Timeout: geo.Cooldown})
		resolver := monitor.NewGeoResolver(adapter, geo.GeoEndpoints, geo.Cooldown, geo.MaxBackoff, c, cfg.Cache)
		loaders[ingester.KindMonitor] = monitor.New(log, vitals, ingesters, resolver)
	}

	return loaders
}

func closeLoaders(log logrus.FieldLogger, loaders map[ingester.Kind]loader.Loader) {
	closed := make(map[loader.Loader]bool)
	for _, l := range loaders {
		if closed[l] {
			continue
		}
		closed[l] = true
		if err := l.Close(); err != nil {
			log.WithError(err).Warn("Loader did not close cleanly")
		}
	}
}
