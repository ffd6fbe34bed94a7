package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTracking(); err != nil {
		return err
	}
	if err := c.validateDisplay(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTracking() error {
	if c.Tracking.CheckIntervalMinutes <= 0 {
		return errors.New("tracking.check_interval_minutes must be positive")
	}
	if c.Tracking.MaxMessagesPerCycle <= 0 {
		return errors.New("tracking.max_messages_per_cycle must be positive")
	}
	if c.Tracking.RefreshStaleMinutes <= 0 {
		return errors.New("tracking.refresh_stale_minutes must be positive")
	}
	if c.Tracking.DeliveredRefreshHours < 0 {
		return errors.New("tracking.delivered_refresh_hours must not be negative")
	}
	if c.Tracking.RequestTimeoutSeconds <= 0 {
		return errors.New("tracking.request_timeout_seconds must be positive")
	}
	if c.Tracking.RetryMaxAttempts < 1 {
		return errors.New("tracking.retry_max_attempts must be at least 1")
	}
	if c.Tracking.RetryBaseDelayMS < 0 {
		return errors.New("tracking.retry_base_delay_ms must not be negative")
	}
	if c.Tracking.RetryMaxDelayMS < c.Tracking.RetryBaseDelayMS {
		return fmt.Errorf("tracking.retry_max_delay_ms must be at least retry_base_delay_ms (%d)", c.Tracking.RetryBaseDelayMS)
	}
	if c.Tracking.CircuitFailureThreshold < 1 {
		return errors.New("tracking.circuit_failure_threshold must be at least 1")
	}
	return nil
}

func (c *Config) validateDisplay() error {
	if c.Display.MaxParcels <= 0 {
		return errors.New("display.max_parcels must be positive")
	}
	if c.Display.RefreshSeconds <= 0 {
		return errors.New("display.refresh_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
