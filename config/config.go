package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"

	VolumeFromStore = "store"
	VolumeFromS3    = "s3"
)

type Config struct {
	Pairbot   PairbotConfig   `yaml:"pairbot"`
	Store     StoreConfig     `yaml:"store"`
	Volume    VolumeConfig    `yaml:"volume"`
	Selection SelectionConfig `yaml:"selection"`
	Cache     CacheConfig     `yaml:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PairbotConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MongoConfig describes the production layout: a metrics database holding
// ohlcv_db and posts_db collections, reached over mongodb+srv.
type MongoConfig struct {
	URI             string        `yaml:"uri" env:"MONGO_URI"`
	User            string        `yaml:"user" env:"MG_USER"`
	Password        string        `yaml:"password" env:"MG_PASSWORD"`
	Cluster         string        `yaml:"cluster" env:"MG_CLUSTER"`
	Database        string        `yaml:"database"`
	OHLCVCollection string        `yaml:"ohlcv_collection"`
	PostsCollection string        `yaml:"posts_collection"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	CursorBatchSize int32         `yaml:"cursor_batch_size"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	OHLCVTable      string        `yaml:"ohlcv_table"`
	PostsTable      string        `yaml:"posts_table"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	Snapshot        bool          `yaml:"snapshot"`
}

type VolumeConfig struct {
	Source string   `yaml:"source"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region" env:"AWS_REGION"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
}

type SelectionConfig struct {
	MaxRanked int  `yaml:"max_ranked"`
	MaxRecent int  `yaml:"max_recent"`
	FailSoft  bool `yaml:"fail_soft"`
}

type CacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	TTL      time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	CloudWatch  CloudWatchConfig  `yaml:"cloudwatch"`
	Pushgateway PushgatewayConfig `yaml:"pushgateway"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type PushgatewayConfig struct {
	URL string `yaml:"url" env:"PUSHGATEWAY_URL"`
	Job string `yaml:"job"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
	Debug  bool   `yaml:"debug" env:"DEBUG"`
}

// Default returns the configuration used for any key the YAML file leaves
// out. Caps default to 100 ranked pairs and 5 recent posts.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver: DriverMongo,
			Mongo: MongoConfig{
				Database:        "metrics",
				OHLCVCollection: "ohlcv_db",
				PostsCollection: "posts_db",
				ConnectTimeout:  10 * time.Second,
				QueryTimeout:    30 * time.Second,
				CursorBatchSize: 500,
			},
			Postgres: PostgresConfig{
				OHLCVTable:      "ohlcv",
				PostsTable:      "posts",
				MaxOpenConns:    4,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
				QueryTimeout:    30 * time.Second,
			},
		},
		Volume: VolumeConfig{Source: VolumeFromStore},
		Selection: SelectionConfig{
			MaxRanked: 100,
			MaxRecent: 5,
			FailSoft:  true,
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				URL: "redis://localhost:6379",
				TTL: 5 * time.Minute,
			},
		},
		Metrics: MetricsConfig{
			CloudWatch:  CloudWatchConfig{Namespace: "Pairbot"},
			Pushgateway: PushgatewayConfig{Job: "pairbot"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets and endpoints may come from the environment (or a .env file
	// loaded by main); they win over the file.
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	config.Store.Driver = strings.ToLower(strings.TrimSpace(config.Store.Driver))
	config.Volume.Source = strings.ToLower(strings.TrimSpace(config.Volume.Source))
	config.Volume.S3.Bucket = strings.TrimSpace(config.Volume.S3.Bucket)
	if config.Logging.Debug {
		config.Logging.Level = "debug"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// MongoURI returns the configured URI, or assembles a mongodb+srv URI from
// the user, password and cluster settings.
func (c MongoConfig) MongoURI() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "mongodb+srv",
		Host:   c.Cluster,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

func validateConfig(cfg *Config) error {
	if cfg.Pairbot.Name == "" {
		return fmt.Errorf("pairbot.name is required")
	}

	if cfg.Pairbot.Version == "" {
		return fmt.Errorf("pairbot.version is required")
	}

	switch cfg.Store.Driver {
	case DriverMongo:
		if cfg.Store.Mongo.URI == "" && cfg.Store.Mongo.Cluster == "" {
			return fmt.Errorf("store.mongo.uri or store.mongo.cluster is required")
		}
		if cfg.Store.Mongo.Database == "" {
			return fmt.Errorf("store.mongo.database is required")
		}
	case DriverPostgres:
		if cfg.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required")
		}
		if !isValidIdentifier(cfg.Store.Postgres.OHLCVTable) || !isValidIdentifier(cfg.Store.Postgres.PostsTable) {
			return fmt.Errorf("store.postgres table names must be plain identifiers")
		}
	default:
		return fmt.Errorf("store.driver '%s' is invalid", cfg.Store.Driver)
	}

	if cfg.Selection.MaxRanked < 0 {
		return fmt.Errorf("selection.max_ranked must not be negative")
	}
	if cfg.Selection.MaxRecent < 0 {
		return fmt.Errorf("selection.max_recent must not be negative")
	}

	switch cfg.Volume.Source {
	case VolumeFromStore:
	case VolumeFromS3:
		if cfg.Volume.S3.Bucket == "" {
			return fmt.Errorf("volume.s3.bucket is required when volume.source is s3")
		}
		if cfg.Volume.S3.Region == "" {
			return fmt.Errorf("volume.s3.region is required when volume.source is s3")
		}
		if !isValidS3Bucket(cfg.Volume.S3.Bucket) {
			return fmt.Errorf("volume.s3.bucket '%s' is invalid", cfg.Volume.S3.Bucket)
		}
	default:
		return fmt.Errorf("volume.source '%s' is invalid", cfg.Volume.Source)
	}

	if cfg.Cache.Redis.Enabled {
		if cfg.Cache.Redis.URL == "" {
			return fmt.Errorf("cache.redis.url is required when the cache is enabled")
		}
		if cfg.Cache.Redis.TTL < time.Second {
			return fmt.Errorf("cache.redis.ttl must be at least 1s")
		}
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level '%s' is invalid", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format '%s' is invalid", cfg.Logging.Format)
	}

	return nil
}

var (
	s3BucketRegexp   = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

// isValidIdentifier guards table names, which are interpolated into SQL.
func isValidIdentifier(name string) bool {
	return identifierRegexp.MatchString(name)
}
