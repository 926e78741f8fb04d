// Package config provides configuration loading and validation for the voice conversation service.
// It handles YAML-based configuration layered over service defaults, with per-section
// validation and environment overrides for credentials.
package config
