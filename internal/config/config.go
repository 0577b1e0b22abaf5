// Package config loads stockledger settings from a YAML file overlaid with
// STOCKLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Driver names accepted by the journal and archive sections.
const (
	JournalNone     = "none"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"

	ArchiveMemory     = "memory"
	ArchiveFilesystem = "fs"
	ArchiveS3         = "s3"
)

// Config is the root of stockledger.yml.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Rules   RulesConfig   `yaml:"rules"`
	Views   ViewsConfig   `yaml:"views"`
	Journal JournalConfig `yaml:"journal"`
	Archive ArchiveConfig `yaml:"archive"`
	Notify  NotifyConfig  `yaml:"notify"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LogConfig selects the logger flavour and level.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// RulesConfig sets the severity of the configurable policy rules.
type RulesConfig struct {
	NegativeStock         string `yaml:"negative_stock"`
	OrderStatusTransition string `yaml:"order_status_transition"`
}

// ViewsConfig tunes derived views.
type ViewsConfig struct {
	RecentOrders int `yaml:"recent_orders"`
}

// JournalConfig configures the write-only transition mirror.
type JournalConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// ArchiveConfig configures where exported reports are stored.
type ArchiveConfig struct {
	Driver string          `yaml:"driver"`
	FSRoot string          `yaml:"fs_root,omitempty"`
	S3     S3ArchiveConfig `yaml:"s3,omitempty"`
}

// S3ArchiveConfig holds the S3 bucket settings.
type S3ArchiveConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// NotifyConfig lists the optional transition publishers.
type NotifyConfig struct {
	Redis *RedisNotifyConfig `yaml:"redis,omitempty"`
	Kafka *KafkaNotifyConfig `yaml:"kafka,omitempty"`
}

// RedisNotifyConfig publishes transitions on a Redis pub/sub channel.
type RedisNotifyConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel,omitempty"`
}

// KafkaNotifyConfig publishes transitions to a Kafka topic.
type KafkaNotifyConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic,omitempty"`
}

// TracingConfig enables the OTLP HTTP exporter when Endpoint is set.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	URLPath  string `yaml:"url_path,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info"},
		Rules:   RulesConfig{NegativeStock: "warn", OrderStatusTransition: "warn"},
		Views:   ViewsConfig{RecentOrders: 5},
		Journal: JournalConfig{Driver: JournalNone},
		Archive: ArchiveConfig{Driver: ArchiveMemory},
	}
}

// Load reads path (when non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overlays environment variables read through lookup.
//
//	STOCKLEDGER_LOG_LEVEL
//	STOCKLEDGER_RULE_NEGATIVE_STOCK, STOCKLEDGER_RULE_ORDER_STATUS
//	STOCKLEDGER_RECENT_ORDERS
//	STOCKLEDGER_JOURNAL_DRIVER, STOCKLEDGER_SQLITE_PATH, STOCKLEDGER_POSTGRES_DSN
//	STOCKLEDGER_ARCHIVE_DRIVER, STOCKLEDGER_ARCHIVE_FS_ROOT
//	STOCKLEDGER_S3_BUCKET, STOCKLEDGER_S3_REGION, STOCKLEDGER_S3_ENDPOINT, STOCKLEDGER_S3_USE_PATH_STYLE
//	STOCKLEDGER_REDIS_ADDR, STOCKLEDGER_REDIS_CHANNEL
//	STOCKLEDGER_KAFKA_BROKERS (comma separated), STOCKLEDGER_KAFKA_TOPIC
//	STOCKLEDGER_OTLP_ENDPOINT
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("STOCKLEDGER_LOG_LEVEL", &c.Log.Level)
	str("STOCKLEDGER_RULE_NEGATIVE_STOCK", &c.Rules.NegativeStock)
	str("STOCKLEDGER_RULE_ORDER_STATUS", &c.Rules.OrderStatusTransition)
	str("STOCKLEDGER_JOURNAL_DRIVER", &c.Journal.Driver)
	str("STOCKLEDGER_SQLITE_PATH", &c.Journal.SQLitePath)
	str("STOCKLEDGER_POSTGRES_DSN", &c.Journal.PostgresDSN)
	str("STOCKLEDGER_ARCHIVE_DRIVER", &c.Archive.Driver)
	str("STOCKLEDGER_ARCHIVE_FS_ROOT", &c.Archive.FSRoot)
	str("STOCKLEDGER_S3_BUCKET", &c.Archive.S3.Bucket)
	str("STOCKLEDGER_S3_REGION", &c.Archive.S3.Region)
	str("STOCKLEDGER_S3_ENDPOINT", &c.Archive.S3.Endpoint)
	str("STOCKLEDGER_OTLP_ENDPOINT", &c.Tracing.Endpoint)

	if v, ok := lookup("STOCKLEDGER_RECENT_ORDERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOCKLEDGER_RECENT_ORDERS: %w", err)
		}
		c.Views.RecentOrders = n
	}
	if v, ok := lookup("STOCKLEDGER_S3_USE_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STOCKLEDGER_S3_USE_PATH_STYLE: %w", err)
		}
		c.Archive.S3.UsePathStyle = b
	}
	if v, ok := lookup("STOCKLEDGER_REDIS_ADDR"); ok && v != "" {
		if c.Notify.Redis == nil {
			c.Notify.Redis = &RedisNotifyConfig{}
		}
		c.Notify.Redis.Addr = v
	}
	if v, ok := lookup("STOCKLEDGER_REDIS_CHANNEL"); ok && v != "" && c.Notify.Redis != nil {
		c.Notify.Redis.Channel = v
	}
	if v, ok := lookup("STOCKLEDGER_KAFKA_BROKERS"); ok && v != "" {
		if c.Notify.Kafka == nil {
			c.Notify.Kafka = &KafkaNotifyConfig{}
		}
		c.Notify.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("STOCKLEDGER_KAFKA_TOPIC"); ok && v != "" && c.Notify.Kafka != nil {
		c.Notify.Kafka.Topic = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks enumerations and required fields and fills defaults for
// optional values left empty.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported level %q", c.Log.Level)
	}

	for name, sev := range map[string]*string{
		"rules.negative_stock":          &c.Rules.NegativeStock,
		"rules.order_status_transition": &c.Rules.OrderStatusTransition,
	} {
		switch *sev {
		case "":
			*sev = "warn"
		case "block", "warn", "log":
		default:
			return fmt.Errorf("%s: invalid severity %q (must be 'block', 'warn' or 'log')", name, *sev)
		}
	}

	if c.Views.RecentOrders == 0 {
		c.Views.RecentOrders = 5
	}
	if c.Views.RecentOrders < 0 {
		return fmt.Errorf("views.recent_orders must be >= 1, got %d", c.Views.RecentOrders)
	}

	switch c.Journal.Driver {
	case "":
		c.Journal.Driver = JournalNone
	case JournalNone:
	case JournalSQLite:
		if c.Journal.SQLitePath == "" {
			c.Journal.SQLitePath = "stockledger.db"
		}
	case JournalPostgres:
		if c.Journal.PostgresDSN == "" {
			return errors.New("journal.postgres_dsn is required when journal.driver=postgres")
		}
	default:
		return fmt.Errorf("journal.driver: unknown driver %q", c.Journal.Driver)
	}

	switch c.Archive.Driver {
	case "":
		c.Archive.Driver = ArchiveMemory
	case ArchiveMemory:
	case ArchiveFilesystem:
		if c.Archive.FSRoot == "" {
			c.Archive.FSRoot = "reports"
		}
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return errors.New("archive.s3.bucket is required when archive.driver=s3")
		}
	default:
		return fmt.Errorf("archive.driver: unknown driver %q", c.Archive.Driver)
	}

	if r := c.Notify.Redis; r != nil {
		if r.Addr == "" {
			return errors.New("notify.redis.addr is required")
		}
		if r.Channel == "" {
			r.Channel = "stockledger:transitions"
		}
	}
	if k := c.Notify.Kafka; k != nil {
		if len(k.Brokers) == 0 {
			return errors.New("notify.kafka.brokers must list at least one broker")
		}
		if k.Topic == "" {
			k.Topic = "stockledger.transitions"
		}
	}
	return nil
}
