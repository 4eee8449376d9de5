package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	OpenAI   ProviderConfig `json:"openai" yaml:"openai"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string   `json:"host" yaml:"host" env:"HOST" env-default:"127.0.0.1"`
	Port           int      `json:"port" yaml:"port" env:"PORT" env-default:"8000"`
	FrontendPath   string   `json:"frontend_path" yaml:"frontend_path" env:"WEBBUILDER_FRONTEND" env-default:"index.html"`
	OutputPath     string   `json:"output_path" yaml:"output_path" env:"WEBBUILDER_OUTPUT"`
	QueueSize      int      `json:"queue_size" yaml:"queue_size" env:"WEBBUILDER_QUEUE_SIZE" env-default:"16"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" env:"WEBBUILDER_ALLOWED_ORIGINS" env-default:"*"`
	Release        bool     `json:"release" yaml:"release" env:"WEBBUILDER_RELEASE"`
}

type ProviderConfig struct {
	BaseURL        string  `json:"base_url" yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model          string  `json:"model" yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4o"`
	APIKey         string  `json:"api_key" yaml:"api_key" env:"OPENAI_API_KEY"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens" env:"OPENAI_MAX_TOKENS" env-default:"4000"`
	Temperature    float32 `json:"temperature" yaml:"temperature" env:"OPENAI_TEMPERATURE" env-default:"0.7"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds" env:"OPENAI_TIMEOUT_SECONDS" env-default:"60"`
	HistoryWindow  int     `json:"history_window" yaml:"history_window" env:"WEBBUILDER_HISTORY_WINDOW" env-default:"10"`
}

// Timeout is the wall-clock ceiling for one completion call.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// DatabaseConfig selects the optional conversation journal. An empty driver
// keeps all state in memory.
type DatabaseConfig struct {
	Driver   string `json:"driver" yaml:"driver" env:"WEBBUILDER_DB"`
	DSN      string `json:"dsn" yaml:"dsn" env:"WEBBUILDER_DB_DSN"`
	Host     string `json:"host" yaml:"host" env:"WEBBUILDER_DB_HOST"`
	Port     int    `json:"port" yaml:"port" env:"WEBBUILDER_DB_PORT" env-default:"3306"`
	Username string `json:"username" yaml:"username" env:"WEBBUILDER_DB_USER"`
	Password string `json:"password" yaml:"password" env:"WEBBUILDER_DB_PASSWORD"`
	DBName   string `json:"dbname" yaml:"dbname" env:"WEBBUILDER_DB_NAME"`
	Params   string `json:"params" yaml:"params" env:"WEBBUILDER_DB_PARAMS" env-default:"parseTime=true"`
}

// RedisConfig enables cross-instance state sync when Host is set.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host" env:"REDIS_HOST"`
	Port     int    `json:"port" yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Username string `json:"username" yaml:"username" env:"REDIS_USERNAME"`
	Password string `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"REDIS_DB"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `json:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load reads configuration from the provided path (defaults to config.json)
// and applies environment overrides. A missing file is not an error; the
// environment and defaults are used alone. Variables from a .env file in the
// working directory are loaded first without overriding the real environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	if _, statErr := os.Stat(absPath); statErr == nil {
		if err := cleanenv.ReadConfig(absPath, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
		if cfg.Database.DSN != "" && isSQLite(cfg.Database.Driver) && !isMemoryDSN(cfg.Database.DSN) {
			cfg.Database.DSN = resolveSQLiteDSN(filepath.Dir(absPath), cfg.Database.DSN)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
	} else {
		return nil, fmt.Errorf("stat config %s: %w", absPath, statErr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required settings are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.QueueSize <= 0 {
		return errors.New("queue_size must be > 0")
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		return errors.New("openai model cannot be empty")
	}
	if c.OpenAI.MaxTokens <= 0 {
		return errors.New("openai max_tokens must be > 0")
	}
	if c.OpenAI.TimeoutSeconds <= 0 {
		return errors.New("openai timeout_seconds must be > 0")
	}
	if c.OpenAI.HistoryWindow <= 0 {
		return errors.New("history_window must be > 0")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "":
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return errors.New("sqlite dsn must be provided")
		}
	case "mysql":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return errors.New("mysql requires dsn or host")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MarshalZerologObject logs the configuration with secrets hidden.
func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("addr", c.Addr()).
		Str("model", c.OpenAI.Model).
		Str("base_url", c.OpenAI.BaseURL).
		Bool("api_key_set", c.OpenAI.APIKey != "").
		Int("history_window", c.OpenAI.HistoryWindow).
		Str("database", c.Database.Driver).
		Bool("redis", c.Redis.Host != "").
		Str("log_level", c.Log.Level)
}

func isSQLite(driver string) bool {
	d := strings.ToLower(driver)
	return d == "sqlite" || d == "sqlite3"
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// resolveSQLiteDSN anchors a relative database path at dir, keeping any
// file: prefix and query parameters.
func resolveSQLiteDSN(dir, dsn string) string {
	prefix := ""
	rest := dsn
	if strings.HasPrefix(rest, "file:") {
		prefix = "file:"
		rest = strings.TrimPrefix(rest, "file:")
	}
	path, query, hasQuery := strings.Cut(rest, "?")
	if path == "" || filepath.IsAbs(path) {
		return dsn
	}
	resolved := prefix + filepath.Join(dir, path)
	if hasQuery {
		resolved += "?" + query
	}
	return resolved
}
