package main

import (
	"math"

	"github.com/pthm-cable/animat/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Starting point of the search
	Integer bool    // Rounded before use
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the genetic algorithm hyper-parameters searched by
// the optimizer. Order must match ApplyToConfig and ExtractFromConfig.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "mutation_rate", Path: "evolution.mutation_rate", Min: 0.001, Max: 0.2, Default: 0.04},
			{Name: "crossover_rate", Path: "evolution.crossover_rate", Min: 0, Max: 1, Default: 0.5},
			{Name: "tournament_size", Path: "evolution.tournament_size", Min: 2, Max: 15, Default: 7, Integer: true},
			{Name: "elite_count", Path: "evolution.elite_count", Min: 0, Max: 10, Default: 5, Integer: true},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize maps raw values onto [0,1] per parameter.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		out[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return out
}

// Denormalize is the inverse of Normalize.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		out[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return out
}

// Clamp bounds every value and rounds integer parameters.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := math.Min(math.Max(v[i], spec.Min), spec.Max)
		if spec.Integer {
			val = math.Round(val)
		}
		out[i] = val
	}
	return out
}

// ApplyToConfig writes clamped parameter values into cfg. The elite count
// is capped by the population size.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Evolution.MutationRate = clamped[0]
	cfg.Evolution.CrossoverRate = clamped[1]
	cfg.Evolution.TournamentSize = int(clamped[2])
	cfg.Evolution.EliteCount = min(int(clamped[3]), cfg.Evolution.Population)
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Evolution.MutationRate,
		cfg.Evolution.CrossoverRate,
		float64(cfg.Evolution.TournamentSize),
		float64(cfg.Evolution.EliteCount),
	}
}
