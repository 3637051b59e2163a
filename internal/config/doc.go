// Package config loads, normalizes, and validates murmur configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours MURMUR_* environment overrides.
// The Config type centralizes every knob the daemon and CLI need, from the
// memo database location to enrichment API credentials and retry ceilings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
