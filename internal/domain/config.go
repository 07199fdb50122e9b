package domain

import (
	"fmt"
	"math"
	"time"
)

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Chain      ChainConfig      `json:"chain"`

	// Engine configurations
	Scoring  ScoringConfig  `json:"scoring"`
	Pipeline PipelineConfig `json:"pipeline"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// RiskWeights combines the three factor collections into the overall score.
// The weights must sum to 1.0; anything else is a configuration error.
type RiskWeights struct {
	Entity       float64 `json:"entity"`
	Jurisdiction float64 `json:"jurisdiction"`
	Transaction  float64 `json:"transaction"`
}

// weightEpsilon tolerates float accumulation noise in the sum check.
const weightEpsilon = 1e-9

// Validate checks that the weights sum to 1.0 and are non-negative.
func (w RiskWeights) Validate() error {
	if w.Entity < 0 || w.Jurisdiction < 0 || w.Transaction < 0 {
		return fmt.Errorf("risk weights must be non-negative")
	}
	sum := w.Entity + w.Jurisdiction + w.Transaction
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("risk weights must sum to 1.0, got %g", sum)
	}
	return nil
}

// ScoringConfig holds risk scoring engine settings.
type ScoringConfig struct {
	Weights RiskWeights `json:"weights"`

	// MaxHops bounds the transaction graph traversal depth.
	MaxHops int `json:"maxHops"`

	// HopWeightDecay is the per-hop contribution decay, in (0,1].
	HopWeightDecay float64 `json:"hopWeightDecay"`

	// CacheTTL is the scoring result cache lifetime in seconds.
	CacheTTL int `json:"cacheTtl"`

	// VelocityWindow is the pattern-rule counting window in seconds.
	VelocityWindow int `json:"velocityWindow"`
}

// Validate checks scoring preconditions before any scoring executes.
func (c ScoringConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.MaxHops < 0 {
		return fmt.Errorf("maxHops must be >= 0, got %d", c.MaxHops)
	}
	if c.HopWeightDecay <= 0 || c.HopWeightDecay > 1 {
		return fmt.Errorf("hopWeightDecay must be in (0,1], got %g", c.HopWeightDecay)
	}
	return nil
}

// PipelineConfig holds compliance pipeline settings.
type PipelineConfig struct {
	// ScanIntervalSecs is the period of the scheduled transaction scan.
	ScanIntervalSecs int `json:"scanIntervalSecs"`

	// ScanLookbackSecs bounds how far back a scan looks for transactions.
	ScanLookbackSecs int `json:"scanLookbackSecs"`

	// AlertThreshold is the overall risk score at or above which a newly
	// created case is also published to the alert topic.
	AlertThreshold float64 `json:"alertThreshold"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Chain: ChainConfig{
			BaseURL:     "http://localhost:8545",
			TimeoutSecs: 15,
			PageLimit:   100,
		},
		Scoring: ScoringConfig{
			Weights: RiskWeights{
				Entity:       0.5,
				Jurisdiction: 0.3,
				Transaction:  0.2,
			},
			MaxHops:        3,
			HopWeightDecay: 0.5,
			CacheTTL:       300,
			VelocityWindow: 3600,
		},
		Pipeline: PipelineConfig{
			ScanIntervalSecs: 300,
			ScanLookbackSecs: 86400,
			AlertThreshold:   70,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
