package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/config"
	"github.com/goran-ethernal/MilestoneIndexor/internal/db"
	"github.com/goran-ethernal/MilestoneIndexor/internal/enricher"
	"github.com/goran-ethernal/MilestoneIndexor/internal/finality"
	"github.com/goran-ethernal/MilestoneIndexor/internal/indexer"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/internal/metrics"
	"github.com/goran-ethernal/MilestoneIndexor/internal/migrations"
	"github.com/goran-ethernal/MilestoneIndexor/internal/oracle"
	"github.com/goran-ethernal/MilestoneIndexor/internal/push"
	"github.com/goran-ethernal/MilestoneIndexor/internal/reorg"
	"github.com/goran-ethernal/MilestoneIndexor/internal/rpcx"
	"github.com/goran-ethernal/MilestoneIndexor/internal/store"
	"github.com/goran-ethernal/MilestoneIndexor/internal/worker"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "MilestoneIndexor - chain ingestion and finality reconciliation engine",
	Long: `MilestoneIndexor follows an EVM chain and its external finality oracle,
writing blocks, per-block fee metrics and milestone-derived finality records
into a local store. Forward indexers track the live tip while backfillers
extend history backwards to configured targets.`,
	Version: version,
	RunE:    runIngest,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(common.ComponentSupervisor, cfg.Logging)
	defer log.Close() //nolint:errcheck

	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	storeLog := logger.NewComponentLoggerFromConfig(common.ComponentStore, cfg.Logging)
	blocks := store.NewBlockStore(database, storeLog)
	milestones := store.NewMilestoneStore(database, storeLog)
	finalityStore := store.NewFinalityStore(database, storeLog)
	cursors := store.NewCursorStore(database, storeLog)
	stats := store.NewStatsStore(database, storeLog)
	reorgStore := store.NewReorgStore(database, storeLog)
	statusStore := store.NewStatusStore(database, storeLog)

	log.Info("Connecting to execution-layer endpoints...")
	rpcClient, err := rpcx.Dial(ctx, cfg.RPC, logger.NewComponentLoggerFromConfig(common.ComponentRPCClient, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create rpc client: %w", err)
	}
	defer rpcClient.Close()

	oracleClient, err := oracle.NewClient(cfg.Oracle, logger.NewComponentLoggerFromConfig(common.ComponentOracleClient, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create oracle client: %w", err)
	}

	pushClient := push.NewClient(cfg.Push, log)

	var tipWindow uint64
	if cfg.Push != nil {
		tipWindow = cfg.Push.TipWindow
	}

	enr := enricher.New(rpcClient, logger.NewComponentLoggerFromConfig(common.ComponentEnricher, cfg.Logging))
	writer := finality.NewWriter(blocks, finalityStore, stats, pushClient, tipWindow,
		logger.NewComponentLoggerFromConfig(common.ComponentFinalityWriter, cfg.Logging))
	reorgHandler := reorg.NewHandler(blocks, reorgStore, cursors, stats, rpcClient,
		logger.NewComponentLoggerFromConfig(common.ComponentReorgHandler, cfg.Logging))

	registry := worker.NewStatusRegistry()
	supervisor := worker.NewSupervisor(registry, statusStore, log)

	supervisor.Register(indexer.NewBlockIndexer(
		cfg.BlockIndexer, rpcClient, blocks, finalityStore, cursors, stats, enr, reorgHandler, registry, pushClient,
		logger.NewComponentLoggerFromConfig(common.ComponentBlockIndexer, cfg.Logging),
	))
	supervisor.Register(indexer.NewMilestoneIndexer(
		cfg.MilestoneIndexer, oracleClient, milestones, cursors, stats, writer, registry,
		logger.NewComponentLoggerFromConfig(common.ComponentMilestoneIndexer, cfg.Logging),
	))

	if cfg.Backfill.Enabled {
		supervisor.Register(indexer.NewBlockBackfiller(
			cfg.Backfill, rpcClient, blocks, finalityStore, cursors, stats, enr, registry,
			logger.NewComponentLoggerFromConfig(common.ComponentBlockBackfiller, cfg.Logging),
		))
		supervisor.Register(indexer.NewMilestoneBackfiller(
			cfg.Backfill, oracleClient, milestones, cursors, stats, writer, registry,
			logger.NewComponentLoggerFromConfig(common.ComponentMilestoneBackfiller, cfg.Logging),
		))
	}

	if cfg.FeeBackfill.Enabled {
		supervisor.Register(indexer.NewFeeBackfiller(
			cfg.FeeBackfill, rpcClient, blocks, cursors, registry,
			logger.NewComponentLoggerFromConfig(common.ComponentFeeBackfiller, cfg.Logging),
		))
	}

	metricsServer := metrics.NewServer(cfg.Metrics, registry, log)
	if err := metricsServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	defer func() {
		if err := metricsServer.Stop(context.Background()); err != nil {
			log.Warnf("Failed to stop metrics server: %v", err)
		}
	}()

	log.Infof("Starting MilestoneIndexor v%s...", version)

	if err := supervisor.Run(ctx); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	log.Info("MilestoneIndexor stopped successfully")
	return nil
}
