package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Repository drivers.
const (
	DriverHTTP     = "http"
	DriverPostgres = "postgres"
	DriverFixture  = "fixture"
)

const envPrefix = "MIRADOR_CAUSALITY_"

// Config captures the settings required to boot the causality service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Repository RepositoryConfig `yaml:"repository"`
	Engine     EngineConfig     `yaml:"engine"`
	Pager      PagerConfig      `yaml:"pager"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	Reflection      bool          `yaml:"reflection"`
}

// RepositoryConfig selects where probable causes and evidence are read from.
type RepositoryConfig struct {
	Driver   string               `yaml:"driver"`
	HTTP     HTTPRepositoryConfig `yaml:"http"`
	Postgres PostgresConfig       `yaml:"postgres"`
	Fixture  string               `yaml:"fixture"`
}

// HTTPRepositoryConfig configures access to the cause store API.
type HTTPRepositoryConfig struct {
	BaseURL             string        `yaml:"baseURL"`
	ProbableCausesPath  string        `yaml:"probableCausesPath"`
	EvidencePath        string        `yaml:"evidencePath"`
	EvidencePagePath    string        `yaml:"evidencePagePath"`
	IncidentPath        string        `yaml:"incidentPath"`
	CausalityDataPath   string        `yaml:"causalityDataPath"`
	AttributeValuesPath string        `yaml:"attributeValuesPath"`
	Timeout             time.Duration `yaml:"timeout"`
}

// PostgresConfig configures the stored-function backed repository.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

// EngineConfig tunes aggregation and display selection.
type EngineConfig struct {
	DisplayLimit           int    `yaml:"displayLimit"`
	Parallelism            int    `yaml:"parallelism"`
	TimeSeriesDescription  string `yaml:"timeSeriesDescription"`
	CrossTypeNormalization bool   `yaml:"crossTypeNormalization"`
}

// PagerConfig bounds evidence page sizes.
type PagerConfig struct {
	PageSize    int `yaml:"pageSize"`
	MaxPageSize int `yaml:"maxPageSize"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls caching of probable cause fetches.
type CacheConfig struct {
	Backend           string        `yaml:"backend"`
	Addr              string        `yaml:"addr"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	DB                int           `yaml:"db"`
	DialTimeout       time.Duration `yaml:"dialTimeout"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	MaxRetries        int           `yaml:"maxRetries"`
	TLS               bool          `yaml:"tls"`
	ProbableCausesTTL time.Duration `yaml:"probableCausesTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
			Reflection:      true,
		},
		Repository: RepositoryConfig{
			Driver: DriverHTTP,
			HTTP: HTTPRepositoryConfig{
				ProbableCausesPath:  "/api/v1/causality/probable-causes",
				EvidencePath:        "/api/v1/causality/evidence",
				EvidencePagePath:    "/api/v1/causality/evidence-page",
				IncidentPath:        "/api/v1/causality/incident",
				CausalityDataPath:   "/api/v1/causality/data",
				AttributeValuesPath: "/api/v1/causality/attribute-values",
				Timeout:             5 * time.Second,
			},
			Postgres: PostgresConfig{MaxOpenConns: 8},
		},
		Engine: EngineConfig{
			DisplayLimit: 5,
			Parallelism:  4,
		},
		Pager:   PagerConfig{PageSize: 20, MaxPageSize: 200},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			ProbableCausesTTL: 2 * time.Minute,
			DialTimeout:       2 * time.Second,
			ReadTimeout:       500 * time.Millisecond,
			WriteTimeout:      500 * time.Millisecond,
			MaxRetries:        2,
		},
	}
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.Repository.Driver {
	case DriverHTTP:
		if c.Repository.HTTP.BaseURL == "" {
			return fmt.Errorf("repository.http.baseURL is required for the %s driver", DriverHTTP)
		}
	case DriverPostgres:
		if c.Repository.Postgres.DSN == "" {
			return fmt.Errorf("repository.postgres.dsn is required for the %s driver", DriverPostgres)
		}
	case DriverFixture:
		if c.Repository.Fixture == "" {
			return fmt.Errorf("repository.fixture is required for the %s driver", DriverFixture)
		}
	default:
		return fmt.Errorf("unknown repository driver %q", c.Repository.Driver)
	}
	switch c.Cache.Backend {
	case "", "memory":
	case "valkey":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the valkey backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Engine.DisplayLimit < 0 {
		return fmt.Errorf("engine.displayLimit must not be negative")
	}
	if p := c.Engine.TimeSeriesDescription; p != "" && strings.Contains(fmt.Sprintf(p, "metric"), "%!") {
		return fmt.Errorf("engine.timeSeriesDescription %q must contain exactly one %%s verb", p)
	}
	if c.Pager.MaxPageSize > 0 && c.Pager.PageSize > c.Pager.MaxPageSize {
		return fmt.Errorf("pager.pageSize %d exceeds pager.maxPageSize %d", c.Pager.PageSize, c.Pager.MaxPageSize)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setString(&cfg.Server.MetricsAddress, "METRICS_ADDRESS")
	setBool(&cfg.Server.Reflection, "REFLECTION")

	setString(&cfg.Repository.Driver, "REPOSITORY_DRIVER")
	setString(&cfg.Repository.HTTP.BaseURL, "STORE_BASE_URL")
	setDuration(&cfg.Repository.HTTP.Timeout, "STORE_TIMEOUT")
	setString(&cfg.Repository.Postgres.DSN, "POSTGRES_DSN")
	setString(&cfg.Repository.Fixture, "FIXTURE")

	setInt(&cfg.Engine.DisplayLimit, "DISPLAY_LIMIT")
	setInt(&cfg.Engine.Parallelism, "PARALLELISM")
	setString(&cfg.Engine.TimeSeriesDescription, "TIME_SERIES_DESCRIPTION")
	setBool(&cfg.Engine.CrossTypeNormalization, "CROSS_TYPE_NORMALIZATION")

	setInt(&cfg.Pager.PageSize, "PAGE_SIZE")
	setInt(&cfg.Pager.MaxPageSize, "MAX_PAGE_SIZE")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}

	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.Addr, "CACHE_ADDR")
	setString(&cfg.Cache.Username, "CACHE_USERNAME")
	setString(&cfg.Cache.Password, "CACHE_PASSWORD")
	setInt(&cfg.Cache.DB, "CACHE_DB")
	setBool(&cfg.Cache.TLS, "CACHE_TLS")
	setDuration(&cfg.Cache.DialTimeout, "CACHE_DIAL_TIMEOUT")
	setDuration(&cfg.Cache.ReadTimeout, "CACHE_READ_TIMEOUT")
	setDuration(&cfg.Cache.WriteTimeout, "CACHE_WRITE_TIMEOUT")
	setInt(&cfg.Cache.MaxRetries, "CACHE_MAX_RETRIES")
	setDuration(&cfg.Cache.ProbableCausesTTL, "CACHE_PROBABLE_CAUSES_TTL")
}

func setString(dst *string, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setDuration(dst *time.Duration, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
