// Package config is the top-level process configuration for the chomp
// binary: cache, store, scheduler and the per-kind loader knobs that
// have no home on the ingester schema itself (spec.md §6). A single
// struct with defaulted, validated sub-configs rather than one config
// type per concern.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/chomp-dev/chomp/pkg/cache"
	"github.com/chomp-dev/chomp/pkg/scheduler"
	"github.com/chomp-dev/chomp/pkg/store/clickhouse"
)

// Define static errors.
var (
	ErrCacheConfigRequired      = errors.New("cache configuration is required")
	ErrClickHouseConfigRequired = errors.New("clickhouse configuration is required")
	ErrNamespacesRequired       = errors.New("at least one namespace config path is required")
)

// Config is the root configuration for a chomp process. One process
// runs every configured ingester; clustering comes from running
// multiple processes against the same Cache and ClickHouse, not from
// per-process partitioning (spec.md §2).
type Config struct {
	// Namespaces lists the ingester configuration files or directories
	// to load (spec.md §4.1). For a directory, the .yaml/.yml files
	// directly inside it are loaded; subdirectories are not searched.
	Namespaces []string `yaml:"namespaces"`

	// Logging is the logrus level name (trace, debug, info, warn,
	// error).
	Logging string `yaml:"logging" default:"info"`

	// MetricsAddr is the address the Prometheus handler listens on.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`

	// HealthCheckAddr is an address for a liveness/readiness handler.
	// The chomp binary does not read it and starts no such handler.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`

	// PProfAddr is an address for a net/http/pprof mux. The chomp
	// binary does not read it and starts no pprof listener.
	PProfAddr *string `yaml:"pprofAddr"`

	Cache      *cache.Config      `yaml:"cache"`
	ClickHouse *clickhouse.Config `yaml:"clickhouse"`
	Scheduler  *scheduler.Config  `yaml:"scheduler"`

	// Loaders holds the per-kind knobs that don't belong on the
	// ingester schema: endpoint pools, chunking and the geo provider
	// used by the monitor kind (spec.md §4.3).
	Loaders LoadersConfig `yaml:"loaders"`

	// ShutdownTimeout is not read by the chomp binary; the wait for
	// in-flight jobs in the scheduler's Stop is bounded by
	// Scheduler.ShutdownTimeout.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// LoadersConfig holds configuration shared across instances of a
// loader kind, as opposed to the per-ingester Target/Headers/Params
// that live on ingester.Ingester.
type LoadersConfig struct {
	// HTTPAPITimeout bounds http_api GETs.
	HTTPAPITimeout time.Duration `yaml:"httpApiTimeout" default:"30s"`

	// ScraperTimeout bounds static scraper GETs; dynamic-strategy
	// renders use their own fixed render timeout.
	ScraperTimeout time.Duration `yaml:"scraperTimeout" default:"30s"`

	// Chain configures the evm_caller/svm_caller/sui_caller endpoint
	// pool (spec.md §4.3: "round-robins across a configured endpoint
	// pool, retrying the next endpoint on failure with a cooldown
	// before an endpoint already marked unhealthy is retried").
	Chain EndpointPoolConfig `yaml:"chain"`

	// EVMLogger configures the evm_logger kind's RPC endpoint and
	// log-scan chunking (spec.md §4.3). Only the first entry of its
	// Endpoints is used, through a single JSON-RPC adapter: failed calls
	// are not retried against other endpoints, its Cooldown serves as
	// both the adapter's request timeout and its poll interval, and its
	// MaxBackoff is not read.
	EVMLogger EVMLoggerConfig `yaml:"evmLogger"`

	// Monitor configures the monitor kind's IP geolocation lookups
	// (spec.md §4.3).
	Monitor MonitorConfig `yaml:"monitor"`
}

// EndpointPoolConfig is the round-robin-with-cooldown endpoint pool
// shared by the chain kinds (pkg/loader/chain, pkg/loader/retry).
type EndpointPoolConfig struct {
	Endpoints     []string      `yaml:"endpoints"`
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"10s"`
	Cooldown      time.Duration `yaml:"cooldown" default:"5s"`
	MaxBackoff    time.Duration `yaml:"maxBackoff" default:"5m"`
}

// EVMLoggerConfig configures the evm_logger kind.
type EVMLoggerConfig struct {
	Endpoints  []string      `yaml:"endpoints"`
	Cooldown   time.Duration `yaml:"cooldown" default:"5s"`
	MaxBackoff time.Duration `yaml:"maxBackoff" default:"5m"`

	// ChunkSize bounds the block range scanned per tick.
	ChunkSize uint64 `yaml:"chunkSize" default:"1000"`

	// Perpetual, when true, runs each evm_logger ingester as a
	// background log subscription whose buffered logs are drained at
	// every tick; when false, each tick polls the block range after the
	// last one scanned (spec.md §4.3).
	Perpetual bool `yaml:"perpetual" default:"true"`
}

// MonitorConfig configures the monitor kind's geo resolver.
type MonitorConfig struct {
	GeoEndpoints []string      `yaml:"geoEndpoints"`
	Cooldown     time.Duration `yaml:"cooldown" default:"5s"`
	MaxBackoff   time.Duration `yaml:"maxBackoff" default:"5m"`
}

// SetDefaults fills in zero-valued fields, including sub-configs that
// implement their own SetDefaults.
func (c *Config) SetDefaults() {
	if c.Logging == "" {
		c.Logging = "info"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.Scheduler != nil {
		c.Scheduler.SetDefaults()
	}
	if c.ClickHouse != nil {
		c.ClickHouse.SetDefaults()
	}

	l := &c.Loaders
	if l.HTTPAPITimeout == 0 {
		l.HTTPAPITimeout = 30 * time.Second
	}
	if l.ScraperTimeout == 0 {
		l.ScraperTimeout = 30 * time.Second
	}
	setEndpointPoolDefaults(&l.Chain)
	if l.EVMLogger.Cooldown == 0 {
		l.EVMLogger.Cooldown = 5 * time.Second
	}
	if l.EVMLogger.MaxBackoff == 0 {
		l.EVMLogger.MaxBackoff = 5 * time.Minute
	}
	if l.EVMLogger.ChunkSize == 0 {
		l.EVMLogger.ChunkSize = 1000
	}
	if l.Monitor.Cooldown == 0 {
		l.Monitor.Cooldown = 5 * time.Second
	}
	if l.Monitor.MaxBackoff == 0 {
		l.Monitor.MaxBackoff = 5 * time.Minute
	}
}

func setEndpointPoolDefaults(p *EndpointPoolConfig) {
	if p.RequestTimeout == 0 {
		p.RequestTimeout = 10 * time.Second
	}
	if p.Cooldown == 0 {
		p.Cooldown = 5 * time.Second
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 5 * time.Minute
	}
}

// Validate checks the configuration, including every sub-config that
// implements its own Validate.
func (c *Config) Validate() error {
	if len(c.Namespaces) == 0 {
		return ErrNamespacesRequired
	}

	if c.Cache == nil {
		return ErrCacheConfigRequired
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}

	if c.ClickHouse == nil {
		return ErrClickHouseConfigRequired
	}
	if err := c.ClickHouse.Validate(); err != nil {
		return fmt.Errorf("invalid clickhouse configuration: %w", err)
	}

	if c.Scheduler != nil {
		if err := c.Scheduler.Validate(); err != nil {
			return fmt.Errorf("invalid scheduler configuration: %w", err)
		}
	}

	return nil
}
