package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "V2COACH"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Coach    CoachConfig    `mapstructure:"coach" yaml:"coach"`
	Calendar CalendarConfig `mapstructure:"calendar" yaml:"calendar"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"` // mock, openai, vertex
	Model       string        `mapstructure:"model" yaml:"model"`       // empty picks the provider default
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`

	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	GCPProject  string `mapstructure:"gcp_project" yaml:"gcp_project"`
	GCPLocation string `mapstructure:"gcp_location" yaml:"gcp_location"`
}

type StorageConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // memory, firestore, sqlite, postgres
	Path       string `mapstructure:"path" yaml:"path"`       // sqlite file
	DSN        string `mapstructure:"dsn" yaml:"dsn"`         // postgres
	GCPProject string `mapstructure:"gcp_project" yaml:"gcp_project"`
}

type CoachConfig struct {
	FocusMinutes       int           `mapstructure:"focus_minutes" yaml:"focus_minutes"`
	RecalibrationDelay time.Duration `mapstructure:"recalibration_delay" yaml:"recalibration_delay"`
}

type CalendarConfig struct {
	Timezone string `mapstructure:"timezone" yaml:"timezone"` // IANA name, empty means UTC
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "mock",
			Temperature: 0.8,
			MaxTokens:   200,
			Timeout:     30 * time.Second,
			GCPLocation: "us-central1",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "data/v2coach.db",
		},
		Coach: CoachConfig{
			FocusMinutes:       25,
			RecalibrationDelay: 1500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the config from defaults, the optional YAML file at path
// and V2COACH_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// short aliases
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", EnvPrefix+"_PORT")
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.gcp_project", d.LLM.GCPProject)
	v.SetDefault("llm.gcp_location", d.LLM.GCPLocation)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.gcp_project", d.Storage.GCPProject)

	v.SetDefault("coach.focus_minutes", d.Coach.FocusMinutes)
	v.SetDefault("coach.recalibration_delay", d.Coach.RecalibrationDelay)

	v.SetDefault("calendar.timezone", d.Calendar.Timezone)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Server.Port == "" {
		errs = append(errs, fmt.Errorf("server port must be set"))
	}

	validProviders := map[string]bool{"mock": true, "openai": true, "vertex": true}
	if !validProviders[cfg.LLM.Provider] {
		errs = append(errs, fmt.Errorf("invalid llm provider: %s (valid: mock, openai, vertex)", cfg.LLM.Provider))
	}
	if cfg.LLM.Provider == "vertex" && cfg.LLM.GCPProject == "" {
		errs = append(errs, fmt.Errorf("llm gcp_project must be set for the vertex provider"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm temperature out of range: %v", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm max_tokens must be positive"))
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage path must be set for sqlite"))
		}
	case "postgres":
		if cfg.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage dsn must be set for postgres"))
		}
	case "firestore":
		if cfg.Storage.GCPProject == "" {
			errs = append(errs, fmt.Errorf("storage gcp_project must be set for firestore"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage backend: %s (valid: memory, firestore, sqlite, postgres)", cfg.Storage.Backend))
	}

	if cfg.Coach.FocusMinutes <= 0 {
		errs = append(errs, fmt.Errorf("coach focus_minutes must be positive"))
	}
	if cfg.Coach.RecalibrationDelay < 0 {
		errs = append(errs, fmt.Errorf("coach recalibration_delay must not be negative"))
	}

	if _, err := cfg.Calendar.Location(); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// Location resolves the configured timezone.
func (c CalendarConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c CoachConfig) FocusDuration() time.Duration {
	return time.Duration(c.FocusMinutes) * time.Minute
}
