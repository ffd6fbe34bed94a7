// Package config loads, defaults, and validates the parcelwatch TOML
// configuration.
//
// Load resolves the config file (explicit flag, then
// ~/.config/parcelwatch/config.toml, then ./parcelwatch.toml), decodes it on
// top of the defaults, expands ~ in path fields, and validates the result.
// Courier API keys may come from the environment (UPS_API_KEY and friends)
// when not present in the file; a missing courier key is not an error, it
// just routes that courier to the fallback tracking provider.
package config
