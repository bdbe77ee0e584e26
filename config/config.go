package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Priceflow PriceflowConfig `yaml:"priceflow"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Sources   SourcesConfig   `yaml:"sources"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Database  DatabaseConfig  `yaml:"database"`
	ReadModel ReadModelConfig `yaml:"read_model"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PriceflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type KafkaConfig struct {
	Brokers     []string      `yaml:"brokers"`
	GroupID     string        `yaml:"group_id"`
	Topics      TopicsConfig  `yaml:"topics"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
	CommitAsync bool          `yaml:"commit_async"`
	MinBytes    int           `yaml:"min_bytes"`
	MaxBytes    int           `yaml:"max_bytes"`
	// FailureBackoff paces redelivery of a message whose handler keeps
	// failing, in retries per second.
	FailureBackoff float64 `yaml:"failure_backoff"`
}

// TopicsConfig names the change topics for each event category. One
// consumer process serves one category.
type TopicsConfig struct {
	Security       []string `yaml:"security"`
	PriceBatch     []string `yaml:"price_batch"`
	AppraisalBatch []string `yaml:"appraisal_batch"`
	Position       []string `yaml:"position"`
	Portfolio      []string `yaml:"portfolio"`
}

type SourcesConfig struct {
	VendorPriceSources []string `yaml:"vendor_price_sources"`
	LWPriceSources     []string `yaml:"lw_price_sources"`
	// DefaultPortfolios is assumed when an appraisal batch message omits
	// the portfolio group.
	DefaultPortfolios string `yaml:"default_portfolios"`
}

type CalendarConfig struct {
	Holidays []string `yaml:"holidays"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

type ReadModelConfig struct {
	// Backend selects where per-date view collections are persisted:
	// "file" or "redis".
	Backend string      `yaml:"backend"`
	RootDir string      `yaml:"root_dir"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	CloudWatch    bool   `yaml:"cloudwatch"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Kafka: KafkaConfig{
			PollTimeout:    time.Second,
			MinBytes:       1,
			MaxBytes:       10 * 1024 * 1024,
			FailureBackoff: 1,
		},
		ReadModel: ReadModelConfig{Backend: "file"},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Credentials may arrive from the environment instead of the file.
	if v := os.Getenv("PRICEFLOW_DB_PASSWORD"); v != "" {
		config.Database.Password = strings.TrimSpace(v)
	}
	if v := os.Getenv("PRICEFLOW_REDIS_PASSWORD"); v != "" {
		config.ReadModel.Redis.Password = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Priceflow.Name == "" {
		return fmt.Errorf("priceflow.name is required")
	}
	if cfg.Priceflow.Version == "" {
		return fmt.Errorf("priceflow.version is required")
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if cfg.Kafka.GroupID == "" {
		return fmt.Errorf("kafka.group_id is required")
	}
	if cfg.Kafka.PollTimeout <= 0 {
		return fmt.Errorf("kafka.poll_timeout must be greater than 0")
	}
	if cfg.Kafka.FailureBackoff <= 0 {
		return fmt.Errorf("kafka.failure_backoff must be greater than 0")
	}

	if len(cfg.Sources.VendorPriceSources)+len(cfg.Sources.LWPriceSources) == 0 {
		return fmt.Errorf("at least one of sources.vendor_price_sources or sources.lw_price_sources is required")
	}

	switch cfg.ReadModel.Backend {
	case "file":
		if cfg.ReadModel.RootDir == "" {
			return fmt.Errorf("read_model.root_dir is required for the file backend")
		}
	case "redis":
		if cfg.ReadModel.Redis.Host == "" {
			return fmt.Errorf("read_model.redis.host is required for the redis backend")
		}
	default:
		return fmt.Errorf("read_model.backend must be 'file' or 'redis', got '%s'", cfg.ReadModel.Backend)
	}

	if cfg.Database.Host != "" {
		if cfg.Database.User == "" || cfg.Database.Database == "" {
			return fmt.Errorf("database.user and database.database are required when database.host is set")
		}
		if cfg.Database.Port <= 0 {
			return fmt.Errorf("database.port must be greater than 0")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.FlushInterval <= 0 {
			return fmt.Errorf("storage.s3.flush_interval must be greater than 0 when S3 is enabled")
		}
	}

	return nil
}
