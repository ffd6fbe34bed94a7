package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeGmail(); err != nil {
		return err
	}
	c.normalizeAPIKeys()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGmail() error {
	var err error
	if strings.TrimSpace(c.Gmail.CredentialsPath) == "" {
		c.Gmail.CredentialsPath = defaultCredentialsPath
	}
	if c.Gmail.CredentialsPath, err = expandPath(c.Gmail.CredentialsPath); err != nil {
		return fmt.Errorf("gmail.credentials_path: %w", err)
	}
	if strings.TrimSpace(c.Gmail.TokenPath) == "" {
		c.Gmail.TokenPath = defaultTokenPath
	}
	if c.Gmail.TokenPath, err = expandPath(c.Gmail.TokenPath); err != nil {
		return fmt.Errorf("gmail.token_path: %w", err)
	}
	c.Gmail.SearchQuery = strings.TrimSpace(c.Gmail.SearchQuery)
	if c.Gmail.SinceDays <= 0 {
		c.Gmail.SinceDays = defaultSinceDays
	}
	return nil
}

func (c *Config) normalizeAPIKeys() {
	envFallback := func(value *string, env string) {
		if strings.TrimSpace(*value) != "" {
			*value = strings.TrimSpace(*value)
			return
		}
		if fromEnv, ok := os.LookupEnv(env); ok {
			*value = strings.TrimSpace(fromEnv)
		}
	}
	envFallback(&c.Tracking.APIKeys.UPS, "UPS_API_KEY")
	envFallback(&c.Tracking.APIKeys.FedEx, "FEDEX_API_KEY")
	envFallback(&c.Tracking.APIKeys.USPS, "USPS_API_KEY")
	envFallback(&c.Tracking.APIKeys.DHL, "DHL_API_KEY")
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
