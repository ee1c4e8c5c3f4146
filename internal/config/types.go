// Package config loads generator policy from YAML files and process
// settings from the environment.
package config

// RawConfig is one policy file as written on disk. Unset fields are nil so
// that a profile file can override only what it names.
type RawConfig struct {
	Version   string          `yaml:"version"`
	Generator GeneratorConfig `yaml:"generator"`
	Reseed    *ReseedConfig   `yaml:"reseed,omitempty"`
	Entropy   *EntropyConfig  `yaml:"entropy,omitempty"`
	Notes     string          `yaml:"notes,omitempty"`
}

type GeneratorConfig struct {
	Algorithm       string `yaml:"algorithm"` // chacha20 | hmac-sha256 | hmac-sha512 | aes-256-ctr
	MaxRequestBytes *int   `yaml:"max_request_bytes,omitempty"`
}

type ReseedConfig struct {
	Bytes        *uint64 `yaml:"bytes,omitempty"`
	Requests     *uint64 `yaml:"requests,omitempty"`
	MinSeedBytes *int    `yaml:"min_seed_bytes,omitempty"`
}

type EntropyConfig struct {
	// Sources replaces the inherited list as a whole when non-empty.
	Sources []SourceConfig `yaml:"sources,omitempty"`
	Health  *HealthConfig  `yaml:"health,omitempty"`
}

type SourceConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // os | file
	Path     string `yaml:"path,omitempty"`
	Required bool   `yaml:"required"`
}

type HealthConfig struct {
	Enabled    *bool    `yaml:"enabled,omitempty"`
	MinEntropy *float64 `yaml:"min_entropy,omitempty"` // assumed bits per byte
	Window     *int     `yaml:"window,omitempty"`
}

// Source kinds.
const (
	KindOS   = "os"
	KindFile = "file"
)

// Params is the normalized policy the service runs with.
type Params struct {
	Algorithm       string
	ReseedBytes     uint64
	ReseedRequests  uint64
	MinSeedBytes    int
	MaxRequestBytes int
	Sources         []SourceConfig
	HealthEnabled   bool
	MinEntropy      float64
	HealthWindow    int
	Profile         string
	Version         string // effective config version for tracing
}
