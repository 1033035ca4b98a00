package config

import (
	"fmt"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/common"
	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
)

// Config represents the complete configuration for the ingestion engine.
type Config struct {
	// RPC contains the execution-layer RPC endpoint pool configuration
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// Oracle contains the finality-oracle endpoint pool configuration
	Oracle OracleConfig `yaml:"oracle" json:"oracle" toml:"oracle"`

	// DB contains the relational store configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// BlockIndexer configures the forward block indexer
	BlockIndexer BlockIndexerConfig `yaml:"block_indexer" json:"block_indexer" toml:"block_indexer"`

	// MilestoneIndexer configures the forward milestone indexer
	MilestoneIndexer MilestoneIndexerConfig `yaml:"milestone_indexer" json:"milestone_indexer" toml:"milestone_indexer"`

	// Backfill configures the backward block and milestone backfillers
	Backfill BackfillConfig `yaml:"backfill" json:"backfill" toml:"backfill"`

	// FeeBackfill configures the historical priority-fee backfiller
	FeeBackfill FeeBackfillConfig `yaml:"fee_backfill" json:"fee_backfill" toml:"fee_backfill"`

	// Push configures the fire-and-forget realtime push sink
	Push *PushConfig `yaml:"push,omitempty" json:"push,omitempty" toml:"push,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics and health endpoint configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ApplyDefaults sets default values for all optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.RPC.ApplyDefaults()
	c.Oracle.ApplyDefaults()
	c.DB.ApplyDefaults()
	c.BlockIndexer.ApplyDefaults()
	c.MilestoneIndexer.ApplyDefaults()
	c.Backfill.ApplyDefaults()
	c.FeeBackfill.ApplyDefaults()

	if c.Push != nil {
		c.Push.ApplyDefaults()
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.ApplyDefaults()
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
	c.Metrics.ApplyDefaults()
}

// Validate checks the complete configuration for consistency.
func (c *Config) Validate() error {
	if err := c.RPC.Validate(); err != nil {
		return err
	}
	if err := c.Oracle.Validate(); err != nil {
		return err
	}
	if err := c.DB.Validate(); err != nil {
		return err
	}
	if c.Push != nil {
		if err := c.Push.Validate(); err != nil {
			return err
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// RPCConfig configures the execution-layer RPC endpoint pool.
type RPCConfig struct {
	// URLs is the ordered list of JSON-RPC endpoint URLs
	URLs []string `yaml:"urls" json:"urls" toml:"urls"`

	// MaxRetries is the number of additional full rounds over the pool after the first
	MaxRetries int `yaml:"max_retries" json:"max_retries" toml:"max_retries"`

	// RetryDelay is the fixed pause between rounds; rotation uses no exponential backoff
	RetryDelay common.Duration `yaml:"retry_delay" json:"retry_delay" toml:"retry_delay"`

	// RequestTimeout bounds a single call against a single endpoint
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`
}

// ApplyDefaults sets default values for RPC configuration.
func (r *RPCConfig) ApplyDefaults() {
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.RetryDelay.Duration == 0 {
		r.RetryDelay = common.NewDuration(500 * time.Millisecond)
	}
	if r.RequestTimeout.Duration == 0 {
		r.RequestTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
}

// Validate checks the RPC configuration.
func (r *RPCConfig) Validate() error {
	if len(r.URLs) == 0 {
		return fmt.Errorf("rpc.urls: at least one endpoint is required")
	}
	return nil
}

// OracleConfig configures the finality-oracle REST endpoint pool.
type OracleConfig struct {
	// URLs is the ordered list of oracle base URLs
	URLs []string `yaml:"urls" json:"urls" toml:"urls"`

	// Retry contains retry configuration with exponential backoff. Unlike the
	// execution-layer pool, oracle failures are typically brief overloads, so
	// backoff grows instead of rotating at a fixed cadence.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// RequestTimeout bounds a single call against a single endpoint
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`
}

// ApplyDefaults sets default values for oracle configuration.
func (o *OracleConfig) ApplyDefaults() {
	if o.Retry == nil {
		o.Retry = &RetryConfig{}
	}
	o.Retry.ApplyDefaults()
	if o.RequestTimeout.Duration == 0 {
		o.RequestTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
}

// Validate checks the oracle configuration.
func (o *OracleConfig) Validate() error {
	if len(o.URLs) == 0 {
		return fmt.Errorf("oracle.urls: at least one endpoint is required")
	}
	return nil
}

// RetryConfig represents retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 30000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 30
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// Validate checks the database configuration.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("db.path: database path is required")
	}
	return nil
}

// BlockIndexerConfig configures the forward block indexer.
type BlockIndexerConfig struct {
	// PollInterval is the sleep between loop iterations when caught up
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// BatchSize is the per-endpoint batch size; the effective batch is
	// BatchSize multiplied by the number of RPC endpoints
	BatchSize int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// EnrichTimeout bounds the wait for complete receipt data per batch
	EnrichTimeout common.Duration `yaml:"enrich_timeout" json:"enrich_timeout" toml:"enrich_timeout"`

	// LagThreshold is the number of blocks behind the tip above which the
	// indexer switches to the short LagSleep instead of PollInterval
	LagThreshold uint64 `yaml:"lag_threshold" json:"lag_threshold" toml:"lag_threshold"`

	// LagSleep is the short sleep used while catching up
	LagSleep common.Duration `yaml:"lag_sleep" json:"lag_sleep" toml:"lag_sleep"`
}

// ApplyDefaults sets default values for the block indexer configuration.
func (b *BlockIndexerConfig) ApplyDefaults() {
	if b.PollInterval.Duration == 0 {
		b.PollInterval = common.NewDuration(2 * time.Second)
	}
	if b.BatchSize == 0 {
		b.BatchSize = 10
	}
	if b.EnrichTimeout.Duration == 0 {
		b.EnrichTimeout = common.NewDuration(5 * time.Minute)
	}
	if b.LagThreshold == 0 {
		b.LagThreshold = 10
	}
	if b.LagSleep.Duration == 0 {
		b.LagSleep = common.NewDuration(100 * time.Millisecond)
	}
}

// MilestoneIndexerConfig configures the forward milestone indexer.
type MilestoneIndexerConfig struct {
	// PollInterval is the sleep between oracle count polls
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// BatchSize is the maximum number of milestones fetched per iteration
	BatchSize int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// SeenCacheSize is the capacity of the recently-seen sequence id cache
	SeenCacheSize int `yaml:"seen_cache_size" json:"seen_cache_size" toml:"seen_cache_size"`
}

// ApplyDefaults sets default values for the milestone indexer configuration.
func (m *MilestoneIndexerConfig) ApplyDefaults() {
	if m.PollInterval.Duration == 0 {
		m.PollInterval = common.NewDuration(2 * time.Second)
	}
	if m.BatchSize == 0 {
		m.BatchSize = 10
	}
	if m.SeenCacheSize == 0 {
		m.SeenCacheSize = 1000
	}
}

// BackfillConfig configures the backward block and milestone backfillers.
type BackfillConfig struct {
	// Enabled controls whether the backfillers run at all
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// TargetBlock is the lowest block number the block backfiller walks to
	TargetBlock uint64 `yaml:"target_block" json:"target_block" toml:"target_block"`

	// TargetSequence is the lowest sequence id the milestone backfiller walks to
	TargetSequence uint64 `yaml:"target_sequence" json:"target_sequence" toml:"target_sequence"`

	// BatchSize is the per-endpoint batch size for backward walks
	BatchSize int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// Pause is the sleep between backfill iterations
	Pause common.Duration `yaml:"pause" json:"pause" toml:"pause"`
}

// ApplyDefaults sets default values for the backfill configuration.
func (b *BackfillConfig) ApplyDefaults() {
	if b.BatchSize == 0 {
		b.BatchSize = 10
	}
	if b.Pause.Duration == 0 {
		b.Pause = common.NewDuration(1 * time.Second)
	}
}

// FeeBackfillConfig configures the historical priority-fee backfiller.
type FeeBackfillConfig struct {
	// Enabled controls whether the fee backfiller runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// TargetBlock is the lowest block the sliding window may reach
	TargetBlock uint64 `yaml:"target_block" json:"target_block" toml:"target_block"`

	// BatchSize is the number of candidate rows fetched per iteration; the
	// sliding window spans 10x this many blocks
	BatchSize int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// Pause is the sleep between iterations
	Pause common.Duration `yaml:"pause" json:"pause" toml:"pause"`

	// RecalcFrom and RecalcTo, when both set, switch the worker into
	// recalculation mode: every tx-bearing row in the range is recomputed
	// regardless of whether its fee columns are null.
	RecalcFrom *uint64 `yaml:"recalc_from,omitempty" json:"recalc_from,omitempty" toml:"recalc_from,omitempty"`
	RecalcTo   *uint64 `yaml:"recalc_to,omitempty" json:"recalc_to,omitempty" toml:"recalc_to,omitempty"`

	// MaxSaneBlockTime is the largest block interval treated as real; larger
	// stored values are considered artifacts of ingestion gaps and repaired
	MaxSaneBlockTime common.Duration `yaml:"max_sane_block_time" json:"max_sane_block_time" toml:"max_sane_block_time"` //nolint:lll
}

// ApplyDefaults sets default values for the fee backfiller configuration.
func (f *FeeBackfillConfig) ApplyDefaults() {
	if f.BatchSize == 0 {
		f.BatchSize = 50
	}
	if f.Pause.Duration == 0 {
		f.Pause = common.NewDuration(2 * time.Second)
	}
	if f.MaxSaneBlockTime.Duration == 0 {
		f.MaxSaneBlockTime = common.NewDuration(30 * time.Second) //nolint:mnd
	}
}

// RecalcRange returns the recalculation range and whether it is active.
func (f *FeeBackfillConfig) RecalcRange() (from, to uint64, ok bool) {
	if f.RecalcFrom == nil || f.RecalcTo == nil {
		return 0, 0, false
	}
	return *f.RecalcFrom, *f.RecalcTo, true
}

// PushConfig configures the advisory realtime push sink.
type PushConfig struct {
	// URL is the push endpoint; empty disables pushing
	URL string `yaml:"url" json:"url" toml:"url"`

	// Timeout bounds a single push call
	Timeout common.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`

	// TipWindow is the number of blocks before a milestone's end block for
	// which finality pushes are attempted
	TipWindow uint64 `yaml:"tip_window" json:"tip_window" toml:"tip_window"`
}

// ApplyDefaults sets default values for the push configuration.
func (p *PushConfig) ApplyDefaults() {
	if p.Timeout.Duration == 0 {
		p.Timeout = common.NewDuration(5 * time.Second)
	}
	if p.TipWindow == 0 {
		p.TipWindow = 30
	}
}

// Validate checks the push configuration.
func (p *PushConfig) Validate() error {
	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if l == nil {
		return ""
	}
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l != nil && l.Development
}

// MetricsConfig configures Prometheus metrics exposition and the health probe.
// The health endpoint is always served; metrics exposition is optional.
type MetricsConfig struct {
	// Enabled controls whether the /metrics endpoint is exposed
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.ListenAddress == "" {
		return fmt.Errorf("metrics.listen_address is required")
	}
	if m.Path == "" || m.Path[0] != '/' {
		return fmt.Errorf("metrics.path must start with '/'")
	}
	return nil
}
