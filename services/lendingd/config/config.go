package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"creditpool/native/lending"
)

const (
	defaultListen        = ":8090"
	defaultDataDir       = "data/lendingd"
	defaultAdminScope    = "admin"
	defaultRatePerMinute = 120
	defaultBurst         = 20
)

// DefaultEngineAddress controls every pool's share ledger and holds custody
// of pooled assets in the bank.
var DefaultEngineAddress = common.HexToAddress("0x000000000000000000000000000000000000ce00")

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	DataDir        string          `yaml:"data_dir"`
	EngineParams   string          `yaml:"engine_params"`
	Owner          string          `yaml:"owner"`
	EngineAddress  string          `yaml:"engine_address"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	TLS            TLSConfig       `yaml:"tls"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	CORS           CORSConfig      `yaml:"cors"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
	Logging        LoggingConfig   `yaml:"logging"`
	Journal        JournalConfig   `yaml:"journal"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures JWT bearer validation.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	AdminScope string        `yaml:"admin_scope"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds requests per authenticated caller. A negative
// requests_per_minute disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TelemetryConfig controls OTLP export.
type TelemetryConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
	Metrics  bool              `yaml:"metrics"`
	Traces   bool              `yaml:"traces"`
	// SampleRatio is the fraction of root spans exported; 0 exports all.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// JournalConfig locates the event journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.EngineParams = strings.TrimSpace(cfg.EngineParams)
	cfg.Owner = strings.TrimSpace(cfg.Owner)
	cfg.EngineAddress = strings.TrimSpace(cfg.EngineAddress)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	cfg.TLS.normalize()
	cfg.Auth.normalize()
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = defaultRatePerMinute
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	origins := make([]string, 0, len(cfg.CORS.AllowedOrigins))
	for _, origin := range cfg.CORS.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORS.AllowedOrigins = origins
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Journal.Path = strings.TrimSpace(cfg.Journal.Path)
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.DataDir, "journal.db")
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if !common.IsHexAddress(cfg.Owner) || common.HexToAddress(cfg.Owner) == (common.Address{}) {
		return fmt.Errorf("owner must be a non-zero hex address")
	}
	if cfg.EngineAddress != "" && !common.IsHexAddress(cfg.EngineAddress) {
		return fmt.Errorf("engine_address must be a hex address")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}

// OwnerAddress returns the protocol owner.
func (cfg Config) OwnerAddress() common.Address {
	return common.HexToAddress(cfg.Owner)
}

// EngineAddressOrDefault returns the configured engine address or the default.
func (cfg Config) EngineAddressOrDefault() common.Address {
	if cfg.EngineAddress == "" {
		return DefaultEngineAddress
	}
	return common.HexToAddress(cfg.EngineAddress)
}

func (cfg *TLSConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.CertPath = strings.TrimSpace(cfg.CertPath)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
	cfg.ClientCAPath = strings.TrimSpace(cfg.ClientCAPath)
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

// MTLSEnabled reports whether mutual TLS verification is configured.
func (cfg TLSConfig) MTLSEnabled() bool {
	return strings.TrimSpace(cfg.ClientCAPath) != ""
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.AdminScope = strings.TrimSpace(cfg.AdminScope)
	if cfg.AdminScope == "" {
		cfg.AdminScope = defaultAdminScope
	}
}

func (cfg AuthConfig) validate() error {
	if cfg.HMACSecret == "" {
		return fmt.Errorf("hmac_secret is required")
	}
	if len(cfg.HMACSecret) < 16 {
		return fmt.Errorf("hmac_secret must be at least 16 characters")
	}
	return nil
}

// LoadEngineParams decodes the TOML engine parameters at path on top of the
// defaults, so omitted keys keep their default and an explicit 0 stays 0.
// Tables given in the file replace the default table wholesale. An empty path
// yields the defaults.
func LoadEngineParams(path string) (lending.Config, error) {
	if strings.TrimSpace(path) == "" {
		return lending.DefaultConfig(), nil
	}
	cfg := lending.DefaultConfig()
	cfg.CollateralTiers, cfg.OnTimeSteps, cfg.LateSteps = nil, nil, nil
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return lending.Config{}, fmt.Errorf("decode engine params: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return lending.Config{}, fmt.Errorf("engine params: unknown key %q", undecoded[0].String())
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return lending.Config{}, fmt.Errorf("engine params: %w", err)
	}
	return cfg, nil
}
