package app

import (
	"fmt"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"

	"github.com/xtding233/seedpool/internal/config"
	"github.com/xtding233/seedpool/internal/entropy"
)

// BuildSource assembles the entropy pool described by params: one input per
// configured source, each behind continuous health tests when enabled.
func BuildSource(params config.Params, logger hclog.Logger, m *metrics.Metrics) (*entropy.Pool, error) {
	inputs := make([]entropy.PoolSource, 0, len(params.Sources))
	for _, sc := range params.Sources {
		var src entropy.Source
		switch sc.Kind {
		case config.KindOS:
			src = entropy.NewOSSource()
		case config.KindFile:
			src = entropy.NewFileSource(sc.Name, sc.Path)
		default:
			return nil, fmt.Errorf("entropy source %q: unknown kind %q", sc.Name, sc.Kind)
		}
		if params.HealthEnabled {
			src = entropy.HealthChecked(src, params.Health())
		}
		inputs = append(inputs, entropy.PoolSource{Source: src, Required: sc.Required})
	}
	return entropy.NewPool(entropy.PoolConfig{
		Sources: inputs,
		Logger:  logger,
		Metrics: m,
	})
}
