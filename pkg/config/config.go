package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"SecMaster/pkg/logger"
	"SecMaster/pkg/retry"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Storage struct {
		// sql uses Postgres for reference/symbology and ClickHouse for prices.
		Type string `yaml:"type" default:"sql" validate:"oneof=sql memory"`
	} `yaml:"storage"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Vendors     []VendorConfig    `yaml:"vendors" validate:"dive"`
	Consensus   ConsensusConfig   `yaml:"consensus"`
	Exchanges   []ExchangeConfig  `yaml:"exchanges" validate:"dive"`
	Symbology   SymbologyConfig   `yaml:"symbology"`
	Validator   ValidatorConfig   `yaml:"validator"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Name     string `yaml:"name" default:"secmaster"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode" default:"prefer"`
	MinConns int    `yaml:"min_conns" default:"2" validate:"gte=0"`
	MaxConns int    `yaml:"max_conns" default:"10" validate:"gte=1"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"secmaster"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	InsertBatchSize  int           `yaml:"insert_batch_size" default:"2000" validate:"gte=1"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr" default:"localhost:6379"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix" default:"secmaster"`
	LookupTTL time.Duration `yaml:"lookup_ttl" default:"6h"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Topics       struct {
		Prices string `yaml:"prices" default:"secmaster.prices"`
		Events string `yaml:"events" default:"secmaster.events"`
		DLQ    string `yaml:"dlq"`
		// Diagnostics receives aggregated warn/error batches.
		Diagnostics string `yaml:"diagnostics" default:"secmaster.diagnostics"`
	} `yaml:"topics"`
	Producer struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string       `yaml:"group_id" default:"secmaster-ingest"`
		Workers    int          `yaml:"workers" default:"4" validate:"gte=1"`
		BufferSize int          `yaml:"buffer_size" default:"64" validate:"gte=1"`
		Retry      retry.Policy `yaml:"retry"`
	} `yaml:"consumer"`
}

// VendorConfig describes one price vendor. Weight is optional: a vendor
// without a weight never takes part in consensus voting.
type VendorConfig struct {
	ID       int32         `yaml:"id" validate:"required"`
	Name     string        `yaml:"name" validate:"required"`
	Source   string        `yaml:"source"`
	Weight   *float64      `yaml:"weight" validate:"omitempty,gte=0"`
	BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey   string        `yaml:"api_key"`
	Calls    int           `yaml:"rate_calls" default:"2000" validate:"gte=1"`
	Period   time.Duration `yaml:"rate_period" default:"10m"`
	Timeout  time.Duration `yaml:"timeout" default:"30s"`
	Retry    retry.Policy  `yaml:"retry"`
	Excluded bool          `yaml:"excluded"`
}

type ConsensusConfig struct {
	VendorID   int32  `yaml:"vendor_id" default:"1000" validate:"required"`
	VendorName string `yaml:"vendor_name" default:"secmaster_consensus" validate:"required"`
}

type ExchangeConfig struct {
	Code     string            `yaml:"code" validate:"required"`
	Name     string            `yaml:"name"`
	Country  string            `yaml:"country"`
	Currency string            `yaml:"currency"`
	Codes    map[string]string `yaml:"codes"`
}

type SuffixConfig struct {
	Exchange      string `yaml:"exchange"`
	ChildExchange string `yaml:"child_exchange"`
	Suffix        string `yaml:"suffix"`
}

// SourceConfig binds a symbology source to its code-derivation rule.
type SourceConfig struct {
	Name       string `yaml:"name" validate:"required"`
	Rule       string `yaml:"rule" validate:"required,oneof=self ticker exchange_qualified country_suffix"`
	EntityType string `yaml:"entity_type" default:"stock"`
	// AllowList names an entry of symbology.allow_lists; Exchanges is an
	// inline alternative. Both empty means every exchange is eligible.
	AllowList       string         `yaml:"allow_list"`
	Exchanges       []string       `yaml:"exchanges"`
	RequireRecent   bool           `yaml:"require_recent"`
	Prefix          string         `yaml:"prefix"`
	Template        string         `yaml:"template"`
	Column          string         `yaml:"column"`
	SpecialExchange string         `yaml:"special_exchange"`
	SpecialColumn   string         `yaml:"special_column"`
	SpecialValue    string         `yaml:"special_value"`
	Suffixes        []SuffixConfig `yaml:"suffixes"`
	// Synthetic enables synthetic ids for codes the vendor lists that no
	// reference instrument derives.
	Synthetic bool `yaml:"synthetic"`
}

type SymbologyConfig struct {
	Sources            []SourceConfig      `yaml:"sources" validate:"dive"`
	AllowLists         map[string][]string `yaml:"allow_lists"`
	ActivityWindowDays int                 `yaml:"activity_window_days" default:"730" validate:"gte=1"`
	SyntheticMin       int64               `yaml:"synthetic_min" default:"1000000"`
	SyntheticMax       int64               `yaml:"synthetic_max" default:"2000000"`
	LockTTL            time.Duration       `yaml:"lock_ttl" default:"30m"`
}

type ValidatorConfig struct {
	Workers        int          `yaml:"workers" default:"4" validate:"gte=1"`
	PeriodDays     *int         `yaml:"period_days" validate:"omitempty,gte=1"`
	PricePrecision *int32       `yaml:"price_precision" default:"6" validate:"required,gte=0,lte=12"`
	ExcludeVendors []string     `yaml:"exclude_vendors"`
	DeleteRetry    retry.Policy `yaml:"delete_retry"`
}

type IngestConfig struct {
	Workers           int    `yaml:"workers" default:"4" validate:"gte=1"`
	Mode              string `yaml:"mode" default:"replace" validate:"oneof=append replace"`
	ReplaceWindowDays int    `yaml:"replace_window_days" default:"30" validate:"gte=0"`
}

type PipelineConfig struct {
	Sources    []string `yaml:"sources"`
	Vendors    []string `yaml:"vendors"`
	Tables     []string `yaml:"tables" validate:"dive,oneof=daily minute"`
	PeriodDays *int     `yaml:"period_days" validate:"omitempty,gte=1"`
}

type DiagnosticsConfig struct {
	FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
	CountThreshold int           `yaml:"count_threshold" default:"100"`
	GroupBy        []string      `yaml:"group_by"`
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.applyDefaults(); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("VALIDATOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Validator.Workers = n
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Vendor returns the configured vendor by name.
func (c *Config) Vendor(name string) (VendorConfig, bool) {
	for _, v := range c.Vendors {
		if v.Name == name {
			return v, true
		}
	}
	return VendorConfig{}, false
}

// Source returns the configured symbology source by name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Symbology.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
