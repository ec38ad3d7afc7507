package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/modelscan-sec/internal/scanner"
)

type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		APIKeys         []string `yaml:"apiKeys"`
		CORSOrigins     []string `yaml:"corsOrigins"`
		RateLimitPerMin int      `yaml:"rateLimitPerMin"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | memory
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Storage struct {
		Driver        string `yaml:"driver"` // minio | fs
		Root          string `yaml:"root"`
		QuarantineDir string `yaml:"quarantineDir"`
	} `yaml:"storage"`

	Minio struct {
		Endpoint         string `yaml:"endpoint"`
		AccessKey        string `yaml:"accessKey"`
		SecretKey        string `yaml:"secretKey"`
		BucketName       string `yaml:"bucketName"`
		QuarantineBucket string `yaml:"quarantineBucket"`
		Region           string `yaml:"region"`
		UseSSL           bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Cache struct {
		Driver     string `yaml:"driver"` // memory | redis
		TTLMinutes int    `yaml:"ttlMinutes"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Worker struct {
		IntervalSeconds int `yaml:"intervalSeconds"`
		BatchSize       int `yaml:"batchSize"`
		Concurrency     int `yaml:"concurrency"`
		ErrorThreshold  int `yaml:"errorThreshold"`
	} `yaml:"worker"`

	Scanner struct {
		CatalogPath      string `yaml:"catalogPath"`
		MaxArtifactBytes int64  `yaml:"maxArtifactBytes"`
		PrefixBytes      int64  `yaml:"prefixBytes"`
		LargeSizeBytes   int64  `yaml:"largeSizeBytes"`
		Quarantine       struct {
			HighConfidence   float64 `yaml:"highConfidence"`
			MediumConfidence float64 `yaml:"mediumConfidence"`
			MediumCount      int     `yaml:"mediumCount"`
		} `yaml:"quarantine"`
	} `yaml:"scanner"`

	AI struct {
		Enabled bool   `yaml:"enabled"`
		Model   string `yaml:"model"`
		APIKey  string `yaml:"apiKey"`
	} `yaml:"ai"`

	Notify struct {
		WebhookURL     string `yaml:"webhookUrl"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
	} `yaml:"notify"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMb"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
	} `yaml:"logging"`
}

// Default returns a runnable local setup: memory store, fs storage under
// ./data, memory cache, AI off.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.RateLimitPerMin = 120
	c.Database.Driver = "memory"
	c.Database.Port = 3306
	c.Database.SSLMode = "disable"
	c.Storage.Driver = "fs"
	c.Storage.Root = "data/artifacts"
	c.Storage.QuarantineDir = "data/quarantine"
	c.Minio.BucketName = "model-artifacts"
	c.Minio.QuarantineBucket = "model-quarantine"
	c.Cache.Driver = "memory"
	c.Cache.TTLMinutes = 60
	c.Cache.Redis.Addr = "localhost:6379"
	c.Worker.IntervalSeconds = 15
	c.Worker.BatchSize = 10
	c.Worker.Concurrency = 4
	c.Worker.ErrorThreshold = 5
	c.AI.Model = "gpt-4o-mini"
	c.Notify.TimeoutSeconds = 5
	c.Logging.Level = "info"
	c.Logging.MaxSizeMB = 100
	c.Logging.MaxBackups = 3
	c.Logging.MaxAgeDays = 28
	return &c
}

// Load baca file config; file yang hilang berarti pakai default. Env
// overrides selalu diterapkan terakhir.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv lets secrets and endpoints come from the environment instead of
// the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("MODELSCAN_API_KEYS"); v != "" {
		c.Server.APIKeys = splitCSV(v)
	}
	if v := os.Getenv("MODELSCAN_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("MODELSCAN_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MODELSCAN_MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MODELSCAN_MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("MODELSCAN_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("MODELSCAN_REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("MODELSCAN_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
}

// Validate menolak kombinasi driver yang tidak dikenal lebih awal.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "minio", "fs":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache driver %q", c.Cache.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	for _, entry := range c.Server.APIKeys {
		t, k, ok := strings.Cut(entry, ":")
		if !ok || t == "" || k == "" {
			return fmt.Errorf("config: api key entry %q must look like tenant:key", entry)
		}
	}
	return nil
}

// TenantKeys maps each configured API key to its tenant. Entries come in
// "tenant:key" form; an empty result means auth is disabled.
func (c *Config) TenantKeys() map[string]string {
	out := make(map[string]string, len(c.Server.APIKeys))
	for _, entry := range c.Server.APIKeys {
		if t, k, ok := strings.Cut(entry, ":"); ok && t != "" && k != "" {
			out[t] = k
		}
	}
	return out
}

// Tunables maps the scanner section onto engine knobs. Zero values fall
// back to engine defaults via Normalize.
func (c *Config) Tunables() scanner.Tunables {
	return scanner.Tunables{
		Policy: scanner.QuarantinePolicy{
			HighConfidence:   c.Scanner.Quarantine.HighConfidence,
			MediumConfidence: c.Scanner.Quarantine.MediumConfidence,
			MediumCount:      c.Scanner.Quarantine.MediumCount,
		},
		MaxArtifactBytes: c.Scanner.MaxArtifactBytes,
		PrefixBytes:      c.Scanner.PrefixBytes,
		LargeSizeBytes:   c.Scanner.LargeSizeBytes,
	}.Normalize()
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
