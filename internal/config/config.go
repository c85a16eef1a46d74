// Package config loads service configuration from YAML with ${ENV} expansion,
// then applies environment overrides and defaults.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	LLM       LLMConfig       `yaml:"llm"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Market    MarketConfig    `yaml:"market"`
	Solana    SolanaConfig    `yaml:"solana"`
	Storage   StorageConfig   `yaml:"storage"`
	Logs      LogsConfig      `yaml:"logs"`
	Functions FunctionsConfig `yaml:"functions"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Addr returns host:port for the admin API listener.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Verbose bool   `yaml:"verbose"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SchedulerConfig struct {
	Interval time.Duration `yaml:"-"`
	ClaimTTL time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
	ClaimTTLRaw string `yaml:"claim_ttl"`
}

type LLMConfig struct {
	APIKey        string            `yaml:"api_key"`
	BaseURL       string            `yaml:"base_url"`
	Model         string            `yaml:"model"`
	MaxTurns      int               `yaml:"max_turns"`
	MaxToolErrors int               `yaml:"max_tool_errors"`
	StaticHeaders map[string]string `yaml:"static_headers"`
	Timeout       time.Duration     `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

type TwitterConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	APIBaseURL   string `yaml:"api_base_url"`
	TokenURL     string `yaml:"token_url"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	DefaultChatID string `yaml:"default_chat_id"`
	BaseURL       string `yaml:"base_url"`
}

type MarketConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Chain   string `yaml:"chain"`
}

type SolanaConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

type StorageConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

type LogsConfig struct {
	DedupeWindow time.Duration `yaml:"-"`

	DedupeWindowRaw string `yaml:"dedupe_window"`
}

type FunctionsConfig struct {
	CatalogFile string `yaml:"catalog_file"`
}

// ConfigError reports an invalid or missing configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Load reads the YAML file at path (optional), applies env overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarRegexp = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarRegexp.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarRegexp.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "HOST")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.Path, "NEXUS_DB_PATH")
	setString(&cfg.Logging.Level, "NEXUS_LOG_LEVEL")
	setString(&cfg.Logging.Format, "NEXUS_LOG_FORMAT")
	setString(&cfg.Scheduler.IntervalRaw, "NEXUS_SCHEDULER_INTERVAL")
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.Model, "NEXUS_LLM_MODEL")
	setString(&cfg.Twitter.ClientID, "TWITTER_CLIENT_ID")
	setString(&cfg.Twitter.ClientSecret, "TWITTER_CLIENT_SECRET")
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.DefaultChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Market.APIKey, "BIRDEYE_API_KEY")
	setString(&cfg.Solana.RPCURL, "SOLANA_RPC_URL")
	setString(&cfg.Storage.Root, "NEXUS_STORAGE_ROOT")
	setString(&cfg.Functions.CatalogFile, "NEXUS_FUNCTIONS_FILE")

	if v := strings.TrimSpace(os.Getenv("NEXUS_LLM_MAX_TURNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxTurns = n
		}
	}
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"scheduler.interval", cfg.Scheduler.IntervalRaw, &cfg.Scheduler.Interval},
		{"scheduler.claim_ttl", cfg.Scheduler.ClaimTTLRaw, &cfg.Scheduler.ClaimTTL},
		{"llm.timeout", cfg.LLM.TimeoutRaw, &cfg.LLM.Timeout},
		{"logs.dedupe_window", cfg.Logs.DedupeWindowRaw, &cfg.Logs.DedupeWindow},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "nexus.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = time.Minute
	}
	if cfg.Scheduler.ClaimTTL == 0 {
		cfg.Scheduler.ClaimTTL = 10 * time.Minute
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTurns == 0 {
		cfg.LLM.MaxTurns = 10
	}
	if cfg.LLM.MaxToolErrors == 0 {
		cfg.LLM.MaxToolErrors = 3
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.Twitter.APIBaseURL == "" {
		cfg.Twitter.APIBaseURL = "https://api.x.com"
	}
	if cfg.Twitter.TokenURL == "" {
		cfg.Twitter.TokenURL = "https://api.x.com/2/oauth2/token"
	}
	if cfg.Telegram.BaseURL == "" {
		cfg.Telegram.BaseURL = "https://api.telegram.org"
	}
	if cfg.Market.BaseURL == "" {
		cfg.Market.BaseURL = "https://public-api.birdeye.so"
	}
	if cfg.Market.Chain == "" {
		cfg.Market.Chain = "solana"
	}
	if cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Storage.Root == "" && cfg.Storage.BaseURL == "" {
		cfg.Storage.Root = "uploads"
	}
	if cfg.Logs.DedupeWindowRaw == "" {
		cfg.Logs.DedupeWindow = 5 * time.Second
	}
}

// Validate checks the fields the service cannot run without.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return &ConfigError{Field: "database.path", Message: "is required"}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("must be text or json, got %q", c.Logging.Format)}
	}
	if c.Scheduler.Interval < time.Second {
		return &ConfigError{Field: "scheduler.interval", Message: "must be at least 1s"}
	}
	if c.LLM.MaxTurns < 1 {
		return &ConfigError{Field: "llm.max_turns", Message: "must be positive"}
	}
	if c.LLM.MaxToolErrors < 1 {
		return &ConfigError{Field: "llm.max_tool_errors", Message: "must be positive"}
	}
	if c.Logs.DedupeWindow < 0 {
		return &ConfigError{Field: "logs.dedupe_window", Message: "must not be negative"}
	}
	return nil
}

// ValidateForScheduler checks credentials required to execute triggers.
func (c *Config) ValidateForScheduler() error {
	if c.LLM.APIKey == "" {
		return &ConfigError{Field: "llm.api_key", Message: "is required (or set OPENAI_API_KEY)"}
	}
	if c.Twitter.ClientID == "" {
		return &ConfigError{Field: "twitter.client_id", Message: "is required for token refresh (or set TWITTER_CLIENT_ID)"}
	}
	return nil
}
