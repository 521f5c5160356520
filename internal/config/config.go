package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	RecordSource          string   `mapstructure:"RECORD_SOURCE"`
	RecordAPIURL          string   `mapstructure:"RECORD_API_URL"`
	RecordServiceAccount  string   `mapstructure:"RECORD_SERVICE_ACCOUNT_FILE"`
	RecordFile            string   `mapstructure:"RECORD_FILE"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	LLMAPIKey             string   `mapstructure:"LLM_API_KEY"`
	LLMBaseURL            string   `mapstructure:"LLM_BASE_URL"`
	LLMPrimaryModel       string   `mapstructure:"LLM_PRIMARY_MODEL"`
	LLMFallbackModel      string   `mapstructure:"LLM_FALLBACK_MODEL"`
	LLMTimeoutSeconds     int      `mapstructure:"LLM_TIMEOUT_SECONDS"`
	AnalysisMaxEvents     int      `mapstructure:"ANALYSIS_MAX_EVENTS"`
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
	RequestTimeoutSeconds int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("RECORD_SOURCE", "file")
	v.SetDefault("RECORD_FILE", "pat_jsons.json")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("LLM_PRIMARY_MODEL", "gemini-2.0-flash-exp")
	v.SetDefault("LLM_FALLBACK_MODEL", "gemini-1.5-flash")
	v.SetDefault("LLM_TIMEOUT_SECONDS", 30)
	v.SetDefault("ANALYSIS_MAX_EVENTS", 50)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 90)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("RECORD_SOURCE")
	v.BindEnv("RECORD_API_URL")
	v.BindEnv("RECORD_SERVICE_ACCOUNT_FILE")
	v.BindEnv("RECORD_FILE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("LLM_API_KEY")
	v.BindEnv("LLM_BASE_URL")
	v.BindEnv("LLM_PRIMARY_MODEL")
	v.BindEnv("LLM_FALLBACK_MODEL")
	v.BindEnv("LLM_TIMEOUT_SECONDS")
	v.BindEnv("ANALYSIS_MAX_EVENTS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the selected record source has the settings it needs
// and that the model chain is coherent. The LLM API key is deliberately not
// required: the timeline must build even when narrative analysis cannot run.
func (c *Config) Validate() error {
	switch c.RecordSource {
	case "http":
		if c.RecordAPIURL == "" {
			return fmt.Errorf("RECORD_API_URL is required when RECORD_SOURCE is \"http\"")
		}
		if c.RecordServiceAccount == "" {
			return fmt.Errorf("RECORD_SERVICE_ACCOUNT_FILE is required when RECORD_SOURCE is \"http\"")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when RECORD_SOURCE is \"postgres\"")
		}
	case "file":
		if c.RecordFile == "" {
			return fmt.Errorf("RECORD_FILE is required when RECORD_SOURCE is \"file\"")
		}
	default:
		return fmt.Errorf("RECORD_SOURCE must be \"http\", \"postgres\", or \"file\", got %q", c.RecordSource)
	}

	if c.LLMPrimaryModel == "" {
		return fmt.Errorf("LLM_PRIMARY_MODEL must not be empty")
	}
	if c.LLMFallbackModel == c.LLMPrimaryModel {
		return fmt.Errorf("LLM_FALLBACK_MODEL must differ from LLM_PRIMARY_MODEL")
	}
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive, got %d", c.LLMTimeoutSeconds)
	}

	return nil
}
