package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const envPrefix = "CODEXA"

type Config struct {
	Mode Mode `mapstructure:"mode"`

	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	GCP     GCPConfig     `mapstructure:"gcp"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Auth    AuthConfig    `mapstructure:"auth"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

type GCPConfig struct {
	ProjectID string `mapstructure:"project"`
	Location  string `mapstructure:"location"`
}

type LLMConfig struct {
	Backend string `mapstructure:"backend"` // "mock", "rest" or "genai"
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// Timeout bounds one request; 0 leaves it to the caller's context.
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // "memory", "firestore" or "postgres"
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	Backend string `mapstructure:"backend"` // "static" or "firebase"
}

type HTTPConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeLocal))
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("gcp.project", "")
	v.SetDefault("gcp.location", "us-central1")

	v.SetDefault("llm.backend", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("llm.timeout", time.Duration(0))

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("auth.backend", "static")

	v.SetDefault("http.allowed_origins", []string{"*"})
}

// Load reads defaults, the optional file named by CODEXA_CONFIG and CODEXA_*
// environment variables (e.g. CODEXA_LLM_BACKEND) and validates the result.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if cfg.Mode != ModeGCP {
		cfg.Mode = ModeLocal
	}
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "mock"
		if cfg.Mode == ModeGCP {
			cfg.LLM.Backend = "genai"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Mode == ModeGCP && c.GCP.ProjectID == "" {
		errs = append(errs, errors.New("gcp.project must be set in gcp mode"))
	}

	switch c.LLM.Backend {
	case "mock":
	case "genai":
		if c.LLM.APIKey == "" && c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("llm.api_key or gcp.project is required for the genai backend"))
		}
	case "rest":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm.api_key is required for the rest backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm.backend %q", c.LLM.Backend))
	}

	switch c.Storage.Backend {
	case "memory":
	case "firestore":
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("gcp.project is required for the firestore backend"))
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch c.Auth.Backend {
	case "static":
	case "firebase":
		if c.GCP.ProjectID == "" {
			errs = append(errs, errors.New("gcp.project is required for firebase auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.backend %q", c.Auth.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
