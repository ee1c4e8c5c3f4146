// Package rngcheck generates output from a chosen generator and reports the
// statistical battery over it.
package rngcheck

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/xtding233/seedpool/internal/drbg"
	"github.com/xtding233/seedpool/internal/entropy"
	"github.com/xtding233/seedpool/internal/stattest"
)

// Config holds the command-line settings.
type Config struct {
	Algorithm drbg.Algorithm
	Bytes     int
	// Seed, when set, makes the run reproducible. For pcg it is read as
	// the first 8 bytes, big-endian.
	Seed   []byte
	Alpha  float64
	Trials int
}

// ParseConfig parses args into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var (
		alg    = fs.String("alg", string(drbg.Default), "generator: "+algorithmList())
		n      = fs.Int("bytes", 1<<20, "bytes per sample")
		seed   = fs.String("seed", "", "hex seed for a reproducible run (at least 32 bytes for secure generators)")
		alpha  = fs.Float64("alpha", stattest.DefaultAlpha, "significance level")
		trials = fs.Int("trials", 1, "independent samples; above 1 reports pass proportions")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	a, err := drbg.ParseAlgorithm(*alg)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Algorithm: a, Bytes: *n, Alpha: *alpha, Trials: *trials}
	if *seed != "" {
		cfg.Seed, err = hex.DecodeString(*seed)
		if err != nil {
			return Config{}, fmt.Errorf("seed: %w", err)
		}
	}
	if cfg.Bytes <= 0 {
		return Config{}, errors.New("bytes must be > 0")
	}
	if cfg.Trials <= 0 {
		return Config{}, errors.New("trials must be > 0")
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return Config{}, errors.New("alpha must be in (0,1)")
	}
	return cfg, nil
}

func algorithmList() string {
	names := make([]string, 0, len(drbg.Algorithms()))
	for _, a := range drbg.Algorithms() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

// Run generates the samples, writes a report to out and reports whether
// every check passed.
func Run(ctx context.Context, cfg Config, out io.Writer) (bool, error) {
	root, err := rootGenerator(ctx, cfg)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(out, "algorithm: %s\n", cfg.Algorithm)

	if cfg.Trials == 1 {
		rep, err := stattest.Battery(root.Next(cfg.Bytes), cfg.Alpha)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "bytes: %d alpha: %g\n", rep.Bytes, rep.Alpha)
		for _, res := range rep.Results {
			fmt.Fprintf(out, "  %-20s %s  p=%.6f\n", res.Name, verdict(res.Pass(rep.Alpha)), res.PValue)
		}
		fmt.Fprintf(out, "  byte mean=%.3f stddev=%.3f\n", rep.Values.Mean, rep.Values.StdDev)
		return rep.Passed(), nil
	}

	// one child per trial, so samples are independent and trials can run
	// in parallel
	readers := make([]io.Reader, cfg.Trials)
	for i := range readers {
		readers[i], err = child(root, cfg.Algorithm, uint64(i))
		if err != nil {
			return false, err
		}
	}
	rep, err := stattest.RunTrials(cfg.Trials, cfg.Bytes, func(i int) io.Reader { return readers[i] }, cfg.Alpha)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(out, "trials: %d bytes: %d alpha: %g min proportion: %.4f\n", rep.Trials, cfg.Bytes, rep.Alpha, rep.MinProportion)
	for _, name := range sortedNames(rep.Passes) {
		prop := rep.Proportion(name)
		fmt.Fprintf(out, "  %-20s %s  %d/%d (%.4f)  mean p=%.4f\n",
			name, verdict(prop >= rep.MinProportion), rep.Passes[name], rep.Trials, prop, rep.PValues[name].Mean)
	}
	return rep.Passed(), nil
}

func sortedNames(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}

func verdict(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func rootGenerator(ctx context.Context, cfg Config) (drbg.Generator, error) {
	if cfg.Algorithm == drbg.PCG {
		var seed uint64
		if len(cfg.Seed) > 0 {
			for _, b := range cfg.Seed[:min(8, len(cfg.Seed))] {
				seed = seed<<8 | uint64(b)
			}
		} else {
			material, err := entropy.Gather(ctx, entropy.NewOSSource(), entropy.MinSeedBytes)
			if err != nil {
				return nil, err
			}
			for _, b := range material[:8] {
				seed = seed<<8 | uint64(b)
			}
			material.Wipe()
		}
		return drbg.NewFast(seed), nil
	}

	seed := append(entropy.SeedMaterial(nil), cfg.Seed...)
	if len(seed) == 0 {
		var err error
		seed, err = entropy.Gather(ctx, entropy.NewOSSource(), drbg.SeedBytes)
		if err != nil {
			return nil, err
		}
	}
	return drbg.New(cfg.Algorithm, seed)
}

func child(root drbg.Generator, alg drbg.Algorithm, i uint64) (drbg.Generator, error) {
	if g, ok := root.(drbg.Secure); ok {
		return drbg.Fork(g, alg)
	}
	return drbg.NewFast(root.(*drbg.FastGenerator).Uint64() ^ i), nil
}
