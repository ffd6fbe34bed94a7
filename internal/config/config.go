package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Gmail contains the mail-source connection settings.
type Gmail struct {
	CredentialsPath string `toml:"credentials_path"`
	TokenPath       string `toml:"token_path"`
	SearchQuery     string `toml:"search_query"`
	SinceDays       int    `toml:"since_days"`
}

// APIKeys holds the per-courier tracking API credentials. Empty values are
// allowed; keyless couriers use the fallback provider.
type APIKeys struct {
	UPS   string `toml:"ups"`
	FedEx string `toml:"fedex"`
	USPS  string `toml:"usps"`
	DHL   string `toml:"dhl"`
}

// Tracking contains the reconciliation cadence and provider policy settings.
type Tracking struct {
	CheckIntervalMinutes    int     `toml:"check_interval_minutes"`
	MaxMessagesPerCycle     int     `toml:"max_messages_per_cycle"`
	RefreshStaleMinutes     int     `toml:"refresh_stale_minutes"`
	DeliveredRefreshHours   int     `toml:"delivered_refresh_hours"`
	RequestTimeoutSeconds   int     `toml:"request_timeout_seconds"`
	RetryMaxAttempts        int     `toml:"retry_max_attempts"`
	RetryBaseDelayMS        int     `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS         int     `toml:"retry_max_delay_ms"`
	CircuitFailureThreshold int     `toml:"circuit_failure_threshold"`
	APIKeys                 APIKeys `toml:"api_keys"`
}

// Display contains terminal dashboard settings.
type Display struct {
	MaxParcels     int `toml:"max_parcels"`
	RefreshSeconds int `toml:"refresh_seconds"`
}

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for parcelwatch.
type Config struct {
	Gmail    Gmail    `toml:"gmail"`
	Tracking Tracking `toml:"tracking"`
	Display  Display  `toml:"display"`
	Paths    Paths    `toml:"paths"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parcelwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parcelwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the parcel database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "parcels.db")
}

// LockPath returns the location of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "parcelwatch.lock")
}

// APIKeyFor returns the configured tracking API key for a courier tag.
func (c *Config) APIKeyFor(courier string) string {
	switch strings.ToLower(strings.TrimSpace(courier)) {
	case "ups":
		return c.Tracking.APIKeys.UPS
	case "fedex":
		return c.Tracking.APIKeys.FedEx
	case "usps":
		return c.Tracking.APIKeys.USPS
	case "dhl":
		return c.Tracking.APIKeys.DHL
	default:
		return ""
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
