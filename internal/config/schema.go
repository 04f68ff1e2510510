// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for the lorekeeper service.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "storage.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Engine configures the annotation engine shared by every session.
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig holds process-wide engine options. Per-session tunables
// live in each session's settings record instead.
type EngineConfig struct {
	// RuleFiles are YAML rule files loaded into the hook pipeline at start.
	RuleFiles []string `yaml:"rule_files,omitempty"`

	// AuditLog is the path of the JSONL hook audit log. Empty disables it.
	AuditLog string `yaml:"audit_log,omitempty"`

	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL. Empty disables export.
	Endpoint string `yaml:"endpoint,omitempty"`

	// ServiceName defaults to "lorekeeper".
	ServiceName string `yaml:"service_name,omitempty"`
}
