package config

import (
	"fmt"
	"strings"

	"github.com/xtding233/seedpool/internal/drbg"
	"github.com/xtding233/seedpool/internal/entropy"
)

// ValidateRaw checks semantic constraints of a RawConfig and reports every
// violation at once.
func ValidateRaw(cfg RawConfig) error {
	var errs []string

	// generator
	if cfg.Generator.Algorithm != "" {
		alg, err := drbg.ParseAlgorithm(cfg.Generator.Algorithm)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("generator.algorithm %q is unknown", cfg.Generator.Algorithm))
		case !alg.Secure():
			errs = append(errs, fmt.Sprintf("generator.algorithm %q is not cryptographically secure", alg))
		}
	}
	if cfg.Generator.MaxRequestBytes != nil && *cfg.Generator.MaxRequestBytes <= 0 {
		errs = append(errs, "generator.max_request_bytes must be >= 1")
	}

	// reseed
	if cfg.Reseed != nil {
		if cfg.Reseed.Bytes != nil && *cfg.Reseed.Bytes == 0 {
			errs = append(errs, "reseed.bytes must be >= 1")
		}
		if cfg.Reseed.Requests != nil && *cfg.Reseed.Requests == 0 {
			errs = append(errs, "reseed.requests must be >= 1")
		}
		if cfg.Reseed.MinSeedBytes != nil && *cfg.Reseed.MinSeedBytes < entropy.MinSeedBytes {
			errs = append(errs, fmt.Sprintf("reseed.min_seed_bytes must be >= %d", entropy.MinSeedBytes))
		}
	}

	// entropy
	if cfg.Entropy != nil {
		seen := make(map[string]bool)
		for i, s := range cfg.Entropy.Sources {
			if s.Name == "" {
				errs = append(errs, fmt.Sprintf("entropy.sources[%d].name is required", i))
			} else if seen[s.Name] {
				errs = append(errs, fmt.Sprintf("entropy.sources[%d].name %q is duplicated", i, s.Name))
			}
			seen[s.Name] = true
			switch s.Kind {
			case KindOS:
			case KindFile:
				if s.Path == "" {
					errs = append(errs, fmt.Sprintf("entropy.sources[%d].path is required for kind=file", i))
				}
			default:
				errs = append(errs, fmt.Sprintf("entropy.sources[%d].kind must be one of: os, file", i))
			}
		}
		if h := cfg.Entropy.Health; h != nil {
			if h.MinEntropy != nil && (*h.MinEntropy <= 0 || *h.MinEntropy > 8) {
				errs = append(errs, "entropy.health.min_entropy must be in (0,8]")
			}
			if h.Window != nil && *h.Window < 64 {
				errs = append(errs, "entropy.health.window must be >= 64")
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
