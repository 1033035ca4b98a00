package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
)

// Environment variables recognized by ApplyEnvOverrides. Values from the
// environment win over values loaded from the config file.
const (
	EnvRPCURLs             = "INGEST_RPC_URLS"
	EnvOracleURLs          = "INGEST_ORACLE_URLS"
	EnvDBPath              = "INGEST_DB_PATH"
	EnvListenAddress       = "INGEST_LISTEN_ADDRESS"
	EnvBlockPollInterval   = "INGEST_BLOCK_POLL_INTERVAL"
	EnvBlockBatchSize      = "INGEST_BLOCK_BATCH_SIZE"
	EnvMilestoneBatchSize  = "INGEST_MILESTONE_BATCH_SIZE"
	EnvBackfillTargetBlock = "INGEST_BACKFILL_TARGET_BLOCK"
	EnvBackfillTargetSeq   = "INGEST_BACKFILL_TARGET_SEQUENCE"
	EnvFeeBackfillTarget   = "INGEST_FEE_BACKFILL_TARGET_BLOCK"
	EnvPushURL             = "INGEST_PUSH_URL"
)

// ApplyEnvOverrides overlays environment variables onto the configuration.
// Endpoint lists are comma-separated.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv(EnvRPCURLs); v != "" {
		c.RPC.URLs = splitURLs(v)
	}
	if v := os.Getenv(EnvOracleURLs); v != "" {
		c.Oracle.URLs = splitURLs(v)
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DB.Path = v
	}
	if v := os.Getenv(EnvListenAddress); v != "" {
		if c.Metrics == nil {
			c.Metrics = &MetricsConfig{}
		}
		c.Metrics.ListenAddress = v
	}
	if v := os.Getenv(EnvPushURL); v != "" {
		if c.Push == nil {
			c.Push = &PushConfig{}
		}
		c.Push.URL = v
	}

	if v := os.Getenv(EnvBlockPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBlockPollInterval, err)
		}
		c.BlockIndexer.PollInterval = common.NewDuration(d)
	}

	intOverrides := []struct {
		env  string
		dest *int
	}{
		{EnvBlockBatchSize, &c.BlockIndexer.BatchSize},
		{EnvMilestoneBatchSize, &c.MilestoneIndexer.BatchSize},
	}
	for _, o := range intOverrides {
		if v := os.Getenv(o.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", o.env, err)
			}
			*o.dest = n
		}
	}

	uintOverrides := []struct {
		env  string
		dest *uint64
	}{
		{EnvBackfillTargetBlock, &c.Backfill.TargetBlock},
		{EnvBackfillTargetSeq, &c.Backfill.TargetSequence},
		{EnvFeeBackfillTarget, &c.FeeBackfill.TargetBlock},
	}
	for _, o := range uintOverrides {
		if v := os.Getenv(o.env); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", o.env, err)
			}
			*o.dest = n
		}
	}

	return nil
}

func splitURLs(s string) []string {
	parts := strings.Split(s, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
