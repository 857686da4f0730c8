package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"CoinPull/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		Compress   bool   `yaml:"compress"`
		Digest     struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic" default:"coinpull.log-digest"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"digest"`
	} `yaml:"log"`
	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	} `yaml:"server"`
	Collector Collector `yaml:"collector"`
	Exchanges struct {
		Huobi   Exchange `yaml:"huobi"`
		Binance Exchange `yaml:"binance"`
		Kucoin  Exchange `yaml:"kucoin"`
	} `yaml:"exchanges"`
	Mirror struct {
		Backend      string        `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
		BufferSize   int           `yaml:"buffer_size" default:"10000" validate:"gte=1"`
		DrainTimeout time.Duration `yaml:"drain_timeout" default:"5s"`
	} `yaml:"mirror"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"coinpull.records"`
		ClientID     string   `yaml:"client_id" default:"coinpull"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"coinpull"`
		Table        string        `yaml:"table" default:"market_records"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecTime  time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Cache struct {
		SymbolsTTL time.Duration `yaml:"symbols_ttl" default:"1h"`
		Redis      struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"coinpull:"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Collector is the orchestration surface: what to collect, for how long,
// and how hard to push the exchanges.
type Collector struct {
	Exchanges       []string      `yaml:"exchanges" default:"[\"huobi\",\"binance\",\"kucoin\"]" validate:"min=1,unique,dive,oneof=huobi binance kucoin"`
	Metrics         []string      `yaml:"metrics" default:"[\"klines\"]" validate:"min=1,unique,dive,oneof=klines trades"`
	Mode            string        `yaml:"mode" default:"stream" validate:"oneof=stream poll history"`
	Exclude         []string      `yaml:"exclude"`
	Symbols         []string      `yaml:"symbols"`
	MaxSymbols      int           `yaml:"max_symbols" validate:"gte=0"`
	IntervalSeconds int64         `yaml:"interval_seconds" default:"60" validate:"gt=0"`
	Duration        time.Duration `yaml:"duration" default:"240s" validate:"gt=0"`
	PollInterval    time.Duration `yaml:"poll_interval" default:"20s" validate:"gt=0"`
	ConcurrencyCap  int           `yaml:"concurrency_cap" default:"5" validate:"gte=1"`
	BatchDelay      time.Duration `yaml:"batch_delay" default:"10s" validate:"gte=0"`
	BackoffDelay    time.Duration `yaml:"backoff_delay" default:"5s" validate:"gt=0"`
	RecencyCapacity int           `yaml:"recency_capacity" default:"1000" validate:"gte=1"`
	FetchLimit      int           `yaml:"fetch_limit" default:"500" validate:"gte=1"`
	DataDir         string        `yaml:"data_dir" default:"data" validate:"required"`
	Truncate        bool          `yaml:"truncate_existing"`
}

// Exchange holds endpoint overrides and the REST request budget.
type Exchange struct {
	RESTURL      string  `yaml:"rest_url"`
	WSURL        string  `yaml:"ws_url"`
	RateCapacity float64 `yaml:"rate_capacity" default:"10" validate:"gte=0"`
	RatePerSec   float64 `yaml:"rate_per_sec" default:"5" validate:"gte=0"`
}

var validate = validator.New()

// Parse decodes YAML and applies defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("COINPULL_EXCHANGES"); v != "" {
		c.Collector.Exchanges = util.SplitList(strings.ToLower(v))
	}
	if v := getenv("COINPULL_EXCLUDE"); v != "" {
		c.Collector.Exclude = util.SplitList(v)
	}
	if v := getenv("COINPULL_SYMBOLS"); v != "" {
		c.Collector.Symbols = util.SplitList(v)
	}
	if v := getenv("COINPULL_MODE"); v != "" {
		c.Collector.Mode = v
	}
	if v := getenv("COINPULL_DATA_DIR"); v != "" {
		c.Collector.DataDir = v
	}
	c.Collector.Duration = util.ParseDurationDefault(getenv("COINPULL_DURATION"), c.Collector.Duration)
	c.Collector.ConcurrencyCap = util.ParseIntDefault(getenv("COINPULL_CONCURRENCY_CAP"), c.Collector.ConcurrencyCap)
	if v := getenv("COINPULL_MIRROR_BACKEND"); v != "" {
		c.Mirror.Backend = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// Validate checks struct tags, then rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Mirror.Backend == "kafka" || c.Log.Digest.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when mirror.backend=kafka or log.digest is enabled")
		}
	}
	if c.Mirror.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when mirror.backend=clickhouse")
	}
	return nil
}

// Exchange returns the settings block for name.
func (c *Config) Exchange(name string) Exchange {
	switch name {
	case "huobi":
		return c.Exchanges.Huobi
	case "binance":
		return c.Exchanges.Binance
	case "kucoin":
		return c.Exchanges.Kucoin
	}
	return Exchange{}
}
