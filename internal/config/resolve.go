package config

import (
	"slices"

	"github.com/xtding233/seedpool/internal/drbg"
	"github.com/xtding233/seedpool/internal/entropy"
)

// DefaultMaxRequestBytes caps one service request at 1 MiB.
const DefaultMaxRequestBytes = 1 << 20

// Overrides carries values that take precedence over the files, such as
// command-line flags.
type Overrides struct {
	Algorithm       *string
	ReseedBytes     *uint64
	ReseedRequests  *uint64
	MaxRequestBytes *int
}

// Resolver produces the effective policy for a profile.
type Resolver interface {
	// Resolve returns the merged RawConfig and the normalized Params.
	Resolve(profile string, o Overrides) (RawConfig, Params, error)
}

var _ Resolver = (*Loader)(nil)

// Resolve merges default → profile → overrides, validates the result and
// fills in defaults.
func (l *Loader) Resolve(profile string, o Overrides) (RawConfig, Params, error) {
	raw, err := l.LoadMerged(profile)
	if err != nil {
		return RawConfig{}, Params{}, err
	}
	raw = applyOverrides(raw, o)
	if err := ValidateRaw(raw); err != nil {
		return RawConfig{}, Params{}, err
	}
	p := Normalize(raw)
	p.Profile = profile
	return raw, p, nil
}

func applyOverrides(raw RawConfig, o Overrides) RawConfig {
	over := RawConfig{}
	if o.Algorithm != nil {
		over.Generator.Algorithm = *o.Algorithm
	}
	over.Generator.MaxRequestBytes = o.MaxRequestBytes
	if o.ReseedBytes != nil || o.ReseedRequests != nil {
		over.Reseed = &ReseedConfig{Bytes: o.ReseedBytes, Requests: o.ReseedRequests}
	}
	return mergeRaw(raw, over)
}

// Normalize fills defaults into a validated RawConfig.
func Normalize(raw RawConfig) Params {
	p := Params{
		Algorithm:       string(drbg.Default),
		ReseedBytes:     drbg.DefaultReseedBytes,
		ReseedRequests:  drbg.DefaultReseedRequests,
		MinSeedBytes:    entropy.MinSeedBytes,
		MaxRequestBytes: DefaultMaxRequestBytes,
		Sources:         []SourceConfig{{Name: "os", Kind: KindOS, Required: true}},
		HealthEnabled:   true,
		MinEntropy:      entropy.DefaultMinEntropy,
		HealthWindow:    entropy.DefaultHealthWindow,
		Version:         raw.Version,
	}
	if raw.Generator.Algorithm != "" {
		alg, _ := drbg.ParseAlgorithm(raw.Generator.Algorithm)
		p.Algorithm = string(alg)
	}
	if raw.Generator.MaxRequestBytes != nil {
		p.MaxRequestBytes = *raw.Generator.MaxRequestBytes
	}
	if r := raw.Reseed; r != nil {
		if r.Bytes != nil {
			p.ReseedBytes = *r.Bytes
		}
		if r.Requests != nil {
			p.ReseedRequests = *r.Requests
		}
		if r.MinSeedBytes != nil {
			p.MinSeedBytes = *r.MinSeedBytes
		}
	}
	if e := raw.Entropy; e != nil {
		if len(e.Sources) > 0 {
			p.Sources = slices.Clone(e.Sources)
		}
		if h := e.Health; h != nil {
			if h.Enabled != nil {
				p.HealthEnabled = *h.Enabled
			}
			if h.MinEntropy != nil {
				p.MinEntropy = *h.MinEntropy
			}
			if h.Window != nil {
				p.HealthWindow = *h.Window
			}
		}
	}
	return p
}

// Policy returns the reseed policy described by p.
func (p Params) Policy() drbg.Policy {
	return drbg.Policy{
		ReseedBytes:    p.ReseedBytes,
		ReseedRequests: p.ReseedRequests,
		MinSeedBytes:   p.MinSeedBytes,
	}
}

// GeneratorAlgorithm returns p.Algorithm as a drbg.Algorithm.
func (p Params) GeneratorAlgorithm() drbg.Algorithm {
	return drbg.Algorithm(p.Algorithm)
}

// Health returns the health test settings.
func (p Params) Health() entropy.HealthConfig {
	return entropy.HealthConfig{MinEntropy: p.MinEntropy, Window: p.HealthWindow}
}
