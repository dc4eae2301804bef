// Package config loads, validates, and defaults anchord's TOML
// configuration. Load resolves the config path (flag value, then
// ~/.config/anchord/config.toml, then ./anchord.toml), decodes over the
// defaults, normalizes paths, and validates. There are no hidden defaults:
// every option is listed in sample_config.toml with its fallback value.
package config
