// Package config loads and persists the bot configuration: a JSON file with
// environment-variable expansion and dot-path accessors for the config CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	General     GeneralConfig     `json:"general"`
	Telegram    TelegramConfig    `json:"telegram"`
	Generation  GenerationConfig  `json:"generation"`
	Aggregation AggregationConfig `json:"aggregation"`
	Delivery    DeliveryConfig    `json:"delivery"`
	History     HistoryConfig     `json:"history"`
	Attachments AttachmentsConfig `json:"attachments"`
	Metrics     MetricsConfig     `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel    string `json:"logLevel"`
	LogFile     string `json:"logFile,omitempty"`
	PersonaPath string `json:"personaPath,omitempty"` // YAML persona profile; empty = built-in
}

type TelegramConfig struct {
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	// Shown by /agreement; HTML allowed. Empty disables the command.
	AgreementText string `json:"agreementText,omitempty"`
}

type GenerationConfig struct {
	APIKey         string `json:"apiKey"`
	APIBase        string `json:"apiBase,omitempty"`
	DefaultModel   string `json:"defaultModel"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

func (c GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AggregationConfig controls burst debouncing: how long a key's bucket waits
// for follow-up events before flushing, and the forced-flush size cap.
type AggregationConfig struct {
	TextWindowSeconds  int `json:"textWindowSeconds"`
	AlbumWindowSeconds int `json:"albumWindowSeconds"`
	MaxBurstEvents     int `json:"maxBurstEvents"`
}

func (c AggregationConfig) TextWindow() time.Duration {
	return time.Duration(c.TextWindowSeconds) * time.Second
}

func (c AggregationConfig) AlbumWindow() time.Duration {
	return time.Duration(c.AlbumWindowSeconds) * time.Second
}

type DeliveryConfig struct {
	MaxPayload        int `json:"maxPayload"`
	Retries           int `json:"retries"`
	RetryDelaySeconds int `json:"retryDelaySeconds"`
}

func (c DeliveryConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

type HistoryConfig struct {
	DBPath string `json:"dbPath"`
}

type AttachmentsConfig struct {
	Dir string `json:"dir"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Fallback: array of mixed types
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.gembot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gembot"
	}
	return filepath.Join(home, ".gembot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.PersonaPath = ExpandPath(cfg.General.PersonaPath)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Attachments.Dir = ExpandPath(cfg.Attachments.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values. The Telegram token and
// generation API key are checked at gateway start, not here, so a freshly
// initialized file still loads.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Generation.TimeoutSeconds < 1 {
		errs = append(errs, "generation.timeoutSeconds must be >= 1")
	}
	if cfg.Aggregation.TextWindowSeconds < 1 {
		errs = append(errs, "aggregation.textWindowSeconds must be >= 1")
	}
	if cfg.Aggregation.AlbumWindowSeconds < 1 {
		errs = append(errs, "aggregation.albumWindowSeconds must be >= 1")
	}
	if cfg.Aggregation.MaxBurstEvents < 1 {
		errs = append(errs, "aggregation.maxBurstEvents must be >= 1")
	}
	if cfg.Delivery.MaxPayload < 1 || cfg.Delivery.MaxPayload > 4096 {
		errs = append(errs, "delivery.maxPayload must be between 1 and 4096")
	}
	if cfg.Delivery.Retries < 1 {
		errs = append(errs, "delivery.retries must be >= 1")
	}
	if cfg.Delivery.RetryDelaySeconds < 0 {
		errs = append(errs, "delivery.retryDelaySeconds must be >= 0")
	}
	if cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath must not be empty")
	}
	if cfg.Attachments.Dir == "" {
		errs = append(errs, "attachments.dir must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
