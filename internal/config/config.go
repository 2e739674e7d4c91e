package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 8000
	defaultDataFile       = "data/regions.json"
	defaultLogLevel       = "info"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50

	maxPort = 65535
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Host                 string
	Port                 int
	Reload               bool
	ReloadDebounce       time.Duration
	DataFile             string
	LogLevel             string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	// TrustForwardedFor keys rate limiting on the first X-Forwarded-For hop.
	// Enable only behind a proxy that sets the header.
	TrustForwardedFor bool
}

// Addr returns the host:port the server binds to.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Host                 string        `yaml:"host"`
	Port                 string        `yaml:"port"`
	Reload               *bool         `yaml:"reload"`
	ReloadDebounce       string        `yaml:"reload_debounce"`
	DataFile             string        `yaml:"data_file"`
	LogLevel             string        `yaml:"log_level"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS               *float64 `yaml:"rps"`
	Burst             *int     `yaml:"burst"`
	TrustForwardedFor *bool    `yaml:"trust_forwarded_for"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Host           *string
	Port           *string
	Reload         *bool
	DataFile       *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	TrustForwarded *bool
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Environment first so that the file and flags layer on top of it.
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Host:                 defaultHost,
		Port:                 defaultPort,
		Reload:               false,
		ReloadDebounce:       250 * time.Millisecond,
		DataFile:             defaultDataFile,
		LogLevel:             defaultLogLevel,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Host != "" {
		cfg.Host = yamlCfg.Host
	}

	if yamlCfg.Port != "" {
		port, err := parsePort(yamlCfg.Port)
		if err != nil {
			return err
		}
		cfg.Port = port
	}

	if yamlCfg.Reload != nil {
		cfg.Reload = *yamlCfg.Reload
	}

	if yamlCfg.DataFile != "" {
		cfg.DataFile = yamlCfg.DataFile
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"reload_debounce", yamlCfg.ReloadDebounce, &cfg.ReloadDebounce},
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := parseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil && *yamlCfg.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil && *yamlCfg.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if yamlCfg.RateLimit.TrustForwardedFor != nil {
		cfg.TrustForwardedFor = *yamlCfg.RateLimit.TrustForwardedFor
	}

	return nil
}

// applyEnvConfig applies environment variable configuration. An empty
// variable counts as unset.
func applyEnvConfig(cfg *Config) error {
	if host := strings.TrimSpace(os.Getenv("HOST")); host != "" {
		cfg.Host = host
	}

	if raw := os.Getenv("PORT"); strings.TrimSpace(raw) != "" {
		port, err := parsePort(raw)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}

	if raw := os.Getenv("RELOAD"); raw != "" {
		cfg.Reload = parseReload(raw)
	}

	if path := strings.TrimSpace(os.Getenv("DATA_FILE")); path != "" {
		cfg.DataFile = path
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("TRUST_FORWARDED_FOR")); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.TrustForwardedFor = value
		}
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Host != nil && *overrides.Host != "" {
		cfg.Host = *overrides.Host
	}

	if overrides.Port != nil && *overrides.Port != "" {
		port, err := parsePort(*overrides.Port)
		if err != nil {
			return fmt.Errorf("parse port flag: %w", err)
		}
		cfg.Port = port
	}

	if overrides.Reload != nil {
		cfg.Reload = *overrides.Reload
	}

	if overrides.DataFile != nil && *overrides.DataFile != "" {
		cfg.DataFile = *overrides.DataFile
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.TrustForwarded != nil {
		cfg.TrustForwardedFor = *overrides.TrustForwarded
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Port < 0 || cfg.Port > maxPort {
		return fmt.Errorf("port must be between 0 and %d, got %d", maxPort, cfg.Port)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if strings.TrimSpace(cfg.DataFile) == "" {
		return fmt.Errorf("data file cannot be empty")
	}
	return nil
}

// parsePort converts a decimal port string to an integer.
func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", raw, err)
	}
	return port, nil
}

// parseDuration converts a Go duration string such as "10s". Bare numbers
// and negative values are rejected.
func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", raw)
	}
	return d, nil
}

// parseReload reports whether raw equals "true", ignoring case.
func parseReload(raw string) bool {
	return strings.EqualFold(raw, "true")
}
