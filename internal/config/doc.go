// Package config loads and validates the voicelink service configuration.
// Files are YAML, or TOML when the name ends in .toml; values are applied on
// top of Default so a file only needs the keys it changes.
package config
