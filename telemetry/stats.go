package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GenerationStats summarizes the fitness of one evaluated population.
type GenerationStats struct {
	Generation int `csv:"generation"`
	Population int `csv:"population"`

	Best float64 `csv:"best"`
	Avg  float64 `csv:"avg"`
	Min  float64 `csv:"min"`
	Std  float64 `csv:"std"`

	P10 float64 `csv:"p10"`
	P50 float64 `csv:"p50"`
	P90 float64 `csv:"p90"`

	// Index into the evaluated population, first on ties
	BestIndex int `csv:"-"`
}

// ComputeFitnessStats reduces one generation's fitness values. An empty
// slice yields zero statistics.
func ComputeFitnessStats(generation int, fitness []float64) GenerationStats {
	s := GenerationStats{Generation: generation, Population: len(fitness)}
	if len(fitness) == 0 {
		return s
	}

	s.Avg, s.Std = stat.PopMeanStdDev(fitness, nil)
	s.BestIndex = floats.MaxIdx(fitness)
	s.Best = fitness[s.BestIndex]
	s.Min = floats.Min(fitness)

	sorted := make([]float64, len(fitness))
	copy(sorted, fitness)
	sort.Float64s(sorted)
	s.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	s.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)

	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("population", s.Population),
		slog.Float64("best", s.Best),
		slog.Float64("avg", s.Avg),
		slog.Float64("min", s.Min),
		slog.Float64("std", s.Std),
		slog.Float64("p50", s.P50),
	)
}

// LogStats logs the generation summary using slog.
func (s GenerationStats) LogStats() {
	slog.Info("generation",
		"generation", s.Generation,
		"population", s.Population,
		"best", s.Best,
		"avg", s.Avg,
		"min", s.Min,
		"std", s.Std,
		"p10", s.P10,
		"p50", s.P50,
		"p90", s.P90,
	)
}
