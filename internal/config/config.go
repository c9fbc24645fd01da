// Package config provides configuration loading and validation for the job monitor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jonathan/job-monitor/internal/types"
)

// DefaultPath is the config file picked up from the working directory when --config is not given.
const DefaultPath = "job_monitor.toml"

// DefaultMaxPages is used for queries that do not set max_pages.
const DefaultMaxPages = 5

// Config is the full runtime configuration. Values are layered as
// defaults, then the TOML file, then environment variables, then CLI flags.
type Config struct {
	DatabaseURL        string        `toml:"database_url" validate:"required"`
	CheckInterval      Duration      `toml:"check_interval" validate:"gt=0"`
	AdapterTimeout     Duration      `toml:"adapter_timeout" validate:"gt=0"`
	NotifyTimeout      Duration      `toml:"notify_timeout" validate:"gt=0"`
	MaxParallelSources int           `toml:"max_parallel_sources" validate:"min=1"`
	ExcludeKeywords    []string      `toml:"exclude_keywords" validate:"dive,required"`
	Log                LogConfig     `toml:"log"`
	Queries            []types.Query `toml:"queries" validate:"required,min=1,dive"`
	Sources            SourcesConfig `toml:"sources"`
	Notify             NotifyConfig  `toml:"notify"`
	Lock               LockConfig    `toml:"lock"`
	Server             ServerConfig  `toml:"server"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
	File   string `toml:"file"` // optional, appended to in addition to stderr
}

// SourcesConfig holds per-adapter settings.
type SourcesConfig struct {
	Indeed   IndeedConfig   `toml:"indeed"`
	LinkedIn LinkedInConfig `toml:"linkedin"`
	Adzuna   AdzunaConfig   `toml:"adzuna"`
}

// IndeedConfig configures the Indeed HTML adapter.
type IndeedConfig struct {
	BaseURL   string   `toml:"base_url" validate:"omitempty,url"`
	PageDelay Duration `toml:"page_delay" validate:"min=0"`
}

// LinkedInConfig configures the LinkedIn browser-rendered adapter.
type LinkedInConfig struct {
	BaseURL       string   `toml:"base_url" validate:"omitempty,url"`
	RenderTimeout Duration `toml:"render_timeout" validate:"min=0"`
}

// AdzunaConfig configures the Adzuna JSON API adapter.
type AdzunaConfig struct {
	BaseURL        string `toml:"base_url" validate:"omitempty,url"`
	AppID          string `toml:"app_id"`
	AppKey         string `toml:"app_key"`
	Country        string `toml:"country" validate:"omitempty,len=2"`
	ResultsPerPage int    `toml:"results_per_page" validate:"min=0,max=50"`
}

// NotifyConfig holds per-sink settings. A sink is active when its section is enabled or,
// for sinks with a destination, when the destination is set.
type NotifyConfig struct {
	Console ConsoleConfig `toml:"console"`
	Email   EmailConfig   `toml:"email"`
	Webhook WebhookConfig `toml:"webhook"`
	Desktop DesktopConfig `toml:"desktop"`
	Redis   RedisConfig   `toml:"redis"`
	Kafka   KafkaConfig   `toml:"kafka"`
}

// ConsoleConfig configures the stdout sink.
type ConsoleConfig struct {
	Enabled bool `toml:"enabled"`
}

// EmailConfig configures the SMTP digest sink.
type EmailConfig struct {
	SMTPServer string `toml:"smtp_server" validate:"required_with=Sender"`
	SMTPPort   int    `toml:"smtp_port" validate:"min=0,max=65535"`
	Sender     string `toml:"sender" validate:"omitempty,email"`
	Password   string `toml:"password"`
	Recipient  string `toml:"recipient" validate:"omitempty,email"`
}

// Enabled reports whether enough is configured to send mail.
func (e EmailConfig) Enabled() bool {
	return e.Sender != "" && e.Password != "" && e.Recipient != ""
}

// WebhookConfig configures the chat webhook sink.
type WebhookConfig struct {
	URL      string `toml:"url" validate:"omitempty,url"`
	Username string `toml:"username"`
}

// DesktopConfig configures the OS notification sink.
type DesktopConfig struct {
	Enabled bool `toml:"enabled"`
}

// RedisConfig configures the Redis pub/sub sink.
type RedisConfig struct {
	URL     string `toml:"url"`
	Channel string `toml:"channel" validate:"required_with=URL"`
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string `toml:"brokers" validate:"dive,hostname_port"`
	Topic   string   `toml:"topic" validate:"required_with=Brokers"`
}

// LockConfig configures the cross-process cycle guard.
type LockConfig struct {
	Redis RedisLockConfig `toml:"redis"`
}

// RedisLockConfig configures the Redis-backed guard. Empty URL disables it.
type RedisLockConfig struct {
	URL string   `toml:"url"`
	Key string   `toml:"key" validate:"required_with=URL"`
	TTL Duration `toml:"ttl" validate:"min=0"`
}

// ServerConfig configures the read API started by the serve command.
type ServerConfig struct {
	Port      int      `toml:"port" validate:"min=1,max=65535"`
	RateLimit float64  `toml:"rate_limit" validate:"min=0"` // requests per second per client, 0 disables
	Burst     int      `toml:"burst" validate:"min=0"`
	Whitelist []string `toml:"whitelist" validate:"dive,ip"` // client IPs exempt from rate limiting
}

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		DatabaseURL:        "jobs.db",
		CheckInterval:      Duration(60 * time.Minute),
		AdapterTimeout:     Duration(2 * time.Minute),
		NotifyTimeout:      Duration(30 * time.Second),
		MaxParallelSources: 4,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Queries: []types.Query{
			{SearchTerm: "python developer", Location: "remote", Sources: []string{"indeed"}, MaxPages: DefaultMaxPages},
		},
		Sources: SourcesConfig{
			Indeed:   IndeedConfig{PageDelay: Duration(2 * time.Second)},
			LinkedIn: LinkedInConfig{RenderTimeout: Duration(45 * time.Second)},
			Adzuna:   AdzunaConfig{Country: "us", ResultsPerPage: 50},
		},
		Notify: NotifyConfig{
			Console: ConsoleConfig{Enabled: true},
			Email:   EmailConfig{SMTPServer: "smtp.gmail.com", SMTPPort: 587},
			Redis:   RedisConfig{Channel: "job-monitor.postings"},
			Kafka:   KafkaConfig{Topic: "job-monitor.postings"},
		},
		Lock: LockConfig{
			Redis: RedisLockConfig{Key: "job-monitor:cycle", TTL: Duration(30 * time.Minute)},
		},
		Server: ServerConfig{Port: 8080, RateLimit: 5, Burst: 20},
	}
}

// LoadConfig reads a TOML file on top of the defaults.
// Keys the file sets that no field accepts are reported as an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	// A file that lists queries replaces the default query rather than appending to it.
	cfg.Queries = nil
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	if !md.IsDefined("queries") {
		cfg.Queries = Default().Queries
	}
	for i := range cfg.Queries {
		if cfg.Queries[i].MaxPages == 0 {
			cfg.Queries[i].MaxPages = DefaultMaxPages
		}
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config error: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Resolve loads the config at path, or the default file when path is empty and
// DefaultPath exists, or the built-in defaults otherwise.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return LoadConfig(DefaultPath)
	}
	return Default(), nil
}
