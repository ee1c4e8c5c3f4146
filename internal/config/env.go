package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerEnv holds process settings read from the environment.
type ServerEnv struct {
	HTTPAddr        string        `env:"SEEDPOOL_HTTP_ADDR"         envDefault:":8080"`
	GRPCAddr        string        `env:"SEEDPOOL_GRPC_ADDR"         envDefault:":9090"`
	ConfigDir       string        `env:"SEEDPOOL_CONFIG_DIR"        envDefault:"configs"`
	Profile         string        `env:"SEEDPOOL_PROFILE"           envDefault:"default"`
	LogLevel        string        `env:"SEEDPOOL_LOG_LEVEL"         envDefault:"info"`
	LogJSON         bool          `env:"SEEDPOOL_LOG_JSON"          envDefault:"false"`
	MetricsInterval time.Duration `env:"SEEDPOOL_METRICS_INTERVAL"  envDefault:"10s"`
	MetricsRetain   time.Duration `env:"SEEDPOOL_METRICS_RETAIN"    envDefault:"1m"`
	SeedTimeout     time.Duration `env:"SEEDPOOL_SEED_TIMEOUT"      envDefault:"30s"`
	WatchPolicy     bool          `env:"SEEDPOOL_WATCH_POLICY"      envDefault:"true"`
	// Algorithm overrides generator.algorithm from the policy files.
	Algorithm string `env:"SEEDPOOL_ALGORITHM"`
	// MaxRequestBytes overrides generator.max_request_bytes when positive.
	MaxRequestBytes int `env:"SEEDPOOL_MAX_REQUEST_BYTES"`
}

// ParseEnv loads ServerEnv from the process environment.
func ParseEnv() (ServerEnv, error) {
	var cfg ServerEnv
	if err := env.Parse(&cfg); err != nil {
		return ServerEnv{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Overrides turns environment settings into policy overrides.
func (e ServerEnv) Overrides() Overrides {
	var o Overrides
	if e.Algorithm != "" {
		alg := e.Algorithm
		o.Algorithm = &alg
	}
	if e.MaxRequestBytes > 0 {
		n := e.MaxRequestBytes
		o.MaxRequestBytes = &n
	}
	return o
}
