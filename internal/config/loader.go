package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Paths locates policy files under a base directory.
type Paths struct {
	BaseDir string // e.g. /etc/seedpool
}

func (p Paths) Dir() string {
	return filepath.Join(p.BaseDir, "policy")
}

func (p Paths) DefaultPath() string {
	return filepath.Join(p.Dir(), "default.yaml")
}

func (p Paths) ProfilePath(profile string) string {
	return filepath.Join(p.Dir(), profile+".yaml")
}

// Loader reads policy files and merges default → profile.
type Loader struct {
	paths Paths

	mu    sync.RWMutex
	cache map[string]RawConfig // key: profile, "" for default only
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{
		paths: Paths{BaseDir: baseDir},
		cache: make(map[string]RawConfig),
	}
}

// Paths returns the loader's file layout.
func (l *Loader) Paths() Paths { return l.paths }

// LoadMerged loads default.yaml and overlays <profile>.yaml on it. The
// default file is required; the profile file is optional.
func (l *Loader) LoadMerged(profile string) (RawConfig, error) {
	l.mu.RLock()
	cfg, ok := l.cache[profile]
	l.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	defCfg, err := readYAML(l.paths.DefaultPath(), true)
	if err != nil {
		return RawConfig{}, fmt.Errorf("read default: %w", err)
	}
	merged := defCfg
	if profile != "" && profile != "default" {
		profCfg, err := readYAML(l.paths.ProfilePath(profile), false)
		if err != nil {
			return RawConfig{}, fmt.Errorf("read profile %s: %w", profile, err)
		}
		merged = mergeRaw(defCfg, profCfg)
	}

	l.mu.Lock()
	l.cache[profile] = merged
	l.mu.Unlock()
	return merged, nil
}

// Invalidate clears the cache. The watcher calls it when a file changes.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]RawConfig)
}

// readYAML loads one policy file. A missing optional file yields a zero
// config.
func readYAML(path string, required bool) (RawConfig, error) {
	var cfg RawConfig
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return RawConfig{}, nil
		}
		return RawConfig{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return RawConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// mergeRaw overlays b on a: every field set in b wins. Source lists are
// replaced, not appended.
func mergeRaw(a, b RawConfig) RawConfig {
	out := a

	if b.Version != "" {
		out.Version = b.Version
	}
	if b.Notes != "" {
		out.Notes = b.Notes
	}

	if b.Generator.Algorithm != "" {
		out.Generator.Algorithm = b.Generator.Algorithm
	}
	if b.Generator.MaxRequestBytes != nil {
		out.Generator.MaxRequestBytes = b.Generator.MaxRequestBytes
	}

	switch {
	case out.Reseed == nil && b.Reseed != nil:
		c := *b.Reseed
		out.Reseed = &c
	case out.Reseed != nil && b.Reseed != nil:
		c := *out.Reseed
		if b.Reseed.Bytes != nil {
			c.Bytes = b.Reseed.Bytes
		}
		if b.Reseed.Requests != nil {
			c.Requests = b.Reseed.Requests
		}
		if b.Reseed.MinSeedBytes != nil {
			c.MinSeedBytes = b.Reseed.MinSeedBytes
		}
		out.Reseed = &c
	}

	switch {
	case out.Entropy == nil && b.Entropy != nil:
		c := *b.Entropy
		c.Sources = slices.Clone(b.Entropy.Sources)
		out.Entropy = &c
	case out.Entropy != nil && b.Entropy != nil:
		c := *out.Entropy
		if len(b.Entropy.Sources) > 0 {
			c.Sources = slices.Clone(b.Entropy.Sources)
		}
		switch {
		case c.Health == nil && b.Entropy.Health != nil:
			h := *b.Entropy.Health
			c.Health = &h
		case c.Health != nil && b.Entropy.Health != nil:
			h := *c.Health
			if b.Entropy.Health.Enabled != nil {
				h.Enabled = b.Entropy.Health.Enabled
			}
			if b.Entropy.Health.MinEntropy != nil {
				h.MinEntropy = b.Entropy.Health.MinEntropy
			}
			if b.Entropy.Health.Window != nil {
				h.Window = b.Entropy.Health.Window
			}
			c.Health = &h
		}
		out.Entropy = &c
	}

	return out
}
