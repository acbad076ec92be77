// Package evolve implements the genetic algorithm that breeds animat genomes:
// fitness evaluation in isolated worlds, tournament selection, one-point
// crossover, per-gene mutation and elitism.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/pthm-cable/animat/agent"
	"github.com/pthm-cable/animat/config"
	"github.com/pthm-cable/animat/genome"
	"github.com/pthm-cable/animat/telemetry"
	"github.com/pthm-cable/animat/world"
)

// ErrNotInitialized is returned by operations that need a population.
var ErrNotInitialized = errors.New("evolve: population not initialized")

// ErrPopulationSize is returned when a population size is below 1.
var ErrPopulationSize = errors.New("evolve: population size must be at least 1")

// Params holds the genetic algorithm and evaluation settings.
type Params struct {
	Population     int
	CrossoverRate  float64
	MutationRate   float64
	TournamentSize int
	EliteCount     int
	Workers        int // 0 = GOMAXPROCS
	CacheFitness   bool

	// Evaluation: one animat alone in a fresh world
	World      world.Params
	Agent      agent.Params
	MaxTicks   int
	PerfWindow int
}

// ParamsFor derives evolver parameters from cfg.
func ParamsFor(cfg *config.Config) Params {
	return Params{
		Population:     cfg.Evolution.Population,
		CrossoverRate:  cfg.Evolution.CrossoverRate,
		MutationRate:   cfg.Evolution.MutationRate,
		TournamentSize: cfg.Evolution.TournamentSize,
		EliteCount:     cfg.Evolution.EliteCount,
		Workers:        cfg.Evolution.Workers,
		CacheFitness:   cfg.Evolution.CacheFitness,
		World:          world.ParamsFor(cfg, 1),
		Agent:          agent.ParamsFor(cfg, 1),
		MaxTicks:       cfg.Animat.MaxLifespan,
		PerfWindow:     cfg.Telemetry.PerfWindow,
	}
}

// Statistics is the summary of the most recent generation.
type Statistics struct {
	Generation int
	Best       float64
	Avg        float64
	Min        float64
}

// Scored pairs a genome with the fitness it was recorded at.
type Scored struct {
	Genome  genome.Genome
	Fitness float64
}

// Evolver owns a population of genomes and breeds it one generation at a
// time. Randomness comes only from the rng given to New; parallel
// evaluations draw their seeds from it in a fixed order, so a run is
// reproducible for a given seed and worker count does not matter.
//
// An Evolver is not safe for concurrent use.
type Evolver struct {
	params Params
	rng    *rand.Rand
	ids    agent.IDAllocator
	pool   *workerPool
	perf   *telemetry.PerfCollector

	population []genome.Genome
	generation int
	history    []telemetry.GenerationStats
	ranked     []Scored

	// Fitness recorded for population during the running generation
	cached []float64
}

// New creates an evolver with no population. Call Initialize or Restore
// before evolving.
func New(p Params, rng *rand.Rand) *Evolver {
	return &Evolver{
		params: p,
		rng:    rng,
		pool:   newWorkerPool(p.Workers),
		perf:   telemetry.NewPerfCollector(p.PerfWindow),
	}
}

// Close stops the evaluation workers.
func (e *Evolver) Close() {
	e.pool.stop()
}

// Initialize replaces the population with n random genomes of length
// genomeLength and resets the generation counter and history.
func (e *Evolver) Initialize(n, genomeLength int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrPopulationSize, n)
	}
	if genomeLength != genome.Length {
		return fmt.Errorf("%w: got %d genes, want %d", genome.ErrInvalidLength, genomeLength, genome.Length)
	}

	pop := make([]genome.Genome, n)
	for i := range pop {
		pop[i] = genome.Random(e.rng, genomeLength)
	}
	e.params.Population = n
	e.population = pop
	e.generation = 0
	e.history = nil
	e.ranked = nil
	e.cached = nil
	return nil
}

// Evaluate simulates g alone in a freshly sampled world and returns the mean
// per-tick fitness. Each call draws a new seed, so repeated calls on the
// same genome generally differ.
func (e *Evolver) Evaluate(g genome.Genome) (float64, error) {
	return e.EvaluateWithSeed(g, e.rng.Int63())
}

// EvaluateWithSeed is Evaluate with a pinned random stream. It is a pure
// function of the parameters, g and seed, and safe for concurrent use.
func (e *Evolver) EvaluateWithSeed(g genome.Genome, seed int64) (float64, error) {
	rng := rand.New(rand.NewSource(seed))
	w := world.New(e.params.World, rng)
	a, err := agent.Spawn(e.ids.Next(), e.params.Agent, g, w.Size(), rng)
	if err != nil {
		return 0, fmt.Errorf("evaluate: %w", err)
	}

	var sum float64
	ticks := 0
	for !a.Terminal() && ticks < e.params.MaxTicks {
		if err := a.Step(w, nil); err != nil {
			return 0, fmt.Errorf("evaluate: %w", err)
		}
		sum += a.Fitness()
		ticks++
	}
	if ticks == 0 {
		return 0, nil
	}
	return sum / float64(ticks), nil
}

// evaluateAll evaluates genomes in parallel. Seeds are drawn before dispatch.
func (e *Evolver) evaluateAll(genomes []genome.Genome) ([]float64, error) {
	seeds := make([]int64, len(genomes))
	for i := range seeds {
		seeds[i] = e.rng.Int63()
	}

	fitness := make([]float64, len(genomes))
	errs := make([]error, len(genomes))
	e.pool.run(len(genomes), func(i int) {
		fitness[i], errs[i] = e.EvaluateWithSeed(genomes[i], seeds[i])
	})
	e.perf.AddEvaluations(len(genomes))

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return fitness, nil
}

// SelectParent runs a tournament over TournamentSize distinct members of the
// population and returns a copy of the fittest. Contestants are re-evaluated
// unless CacheFitness is set and the current generation's fitness is known.
func (e *Evolver) SelectParent() (genome.Genome, error) {
	n := len(e.population)
	if n == 0 {
		return nil, ErrNotInitialized
	}

	k := min(max(e.params.TournamentSize, 1), n)
	contestants := e.rng.Perm(n)[:k]

	var scores []float64
	if e.params.CacheFitness && len(e.cached) == n {
		scores = make([]float64, k)
		for i, idx := range contestants {
			scores[i] = e.cached[idx]
		}
	} else {
		entrants := make([]genome.Genome, k)
		for i, idx := range contestants {
			entrants[i] = e.population[idx]
		}
		var err error
		if scores, err = e.evaluateAll(entrants); err != nil {
			return nil, fmt.Errorf("tournament: %w", err)
		}
	}

	best := 0
	for i := 1; i < k; i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return e.population[contestants[best]].Clone(), nil
}

// Crossover recombines two parents. With probability CrossoverRate it cuts
// both at one uniform point in [0, L-1] and swaps the tails; otherwise it
// returns copies of the parents. Both parents must be valid genomes.
func (e *Evolver) Crossover(a, b genome.Genome) (genome.Genome, genome.Genome, error) {
	if len(a) != len(b) {
		return nil, nil, fmt.Errorf("%w: parents have %d and %d genes", genome.ErrInvalidLength, len(a), len(b))
	}
	if err := a.Validate(); err != nil {
		return nil, nil, fmt.Errorf("crossover: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, nil, fmt.Errorf("crossover: %w", err)
	}
	if e.rng.Float64() >= e.params.CrossoverRate {
		return a.Clone(), b.Clone(), nil
	}

	point := e.rng.Intn(len(a))
	c1 := make(genome.Genome, 0, len(a))
	c1 = append(append(c1, a[:point]...), b[point:]...)
	c2 := make(genome.Genome, 0, len(a))
	c2 = append(append(c2, b[:point]...), a[point:]...)
	return c1, c2, nil
}

// Mutate returns a copy of g where each gene independently, with probability
// MutationRate, is replaced by a fresh uniform gene.
func (e *Evolver) Mutate(g genome.Genome) (genome.Genome, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("mutate: %w", err)
	}
	out := g.Clone()
	for i := range out {
		if e.rng.Float64() < e.params.MutationRate {
			out[i] = genome.RandomGene(e.rng)
		}
	}
	return out, nil
}

// EvolveOneGeneration evaluates the population, records its statistics,
// carries the elites over unchanged and fills the rest with mutated
// offspring of tournament winners. The population size is preserved.
func (e *Evolver) EvolveOneGeneration() (telemetry.GenerationStats, error) {
	n := len(e.population)
	if n == 0 {
		return telemetry.GenerationStats{}, ErrNotInitialized
	}

	e.perf.StartGeneration()
	defer e.perf.EndGeneration()
	defer func() { e.cached = nil }()

	e.perf.StartPhase(telemetry.PhaseEvaluate)
	fitness, err := e.evaluateAll(e.population)
	if err != nil {
		return telemetry.GenerationStats{}, fmt.Errorf("generation %d: %w", e.generation, err)
	}

	e.perf.StartPhase(telemetry.PhaseRank)
	stats := telemetry.ComputeFitnessStats(e.generation, fitness)
	ranked := rank(e.population, fitness)

	// History and ranking are committed only once the next population exists.
	e.perf.StartPhase(telemetry.PhaseBreed)
	e.cached = fitness
	next := make([]genome.Genome, 0, n+1)
	for _, s := range ranked[:min(e.params.EliteCount, n)] {
		next = append(next, s.Genome.Clone())
	}
	for len(next) < n {
		p1, err := e.SelectParent()
		if err != nil {
			return stats, fmt.Errorf("generation %d: %w", e.generation, err)
		}
		p2, err := e.SelectParent()
		if err != nil {
			return stats, fmt.Errorf("generation %d: %w", e.generation, err)
		}
		c1, c2, err := e.Crossover(p1, p2)
		if err != nil {
			return stats, fmt.Errorf("generation %d: %w", e.generation, err)
		}
		m1, err := e.Mutate(c1)
		if err != nil {
			return stats, fmt.Errorf("generation %d: %w", e.generation, err)
		}
		m2, err := e.Mutate(c2)
		if err != nil {
			return stats, fmt.Errorf("generation %d: %w", e.generation, err)
		}
		next = append(next, m1, m2)
	}

	e.history = append(e.history, stats)
	e.ranked = ranked
	e.population = next[:n]
	e.generation++
	return stats, nil
}

// rank pairs genomes with their fitness, best first. Ties keep population
// order.
func rank(pop []genome.Genome, fitness []float64) []Scored {
	ranked := make([]Scored, len(pop))
	for i := range pop {
		ranked[i] = Scored{Genome: pop[i], Fitness: fitness[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

// Run evolves up to generations generations, calling fn after each one.
// It stops early when ctx is done or fn returns an error.
func (e *Evolver) Run(ctx context.Context, generations int, fn func(telemetry.GenerationStats) error) error {
	for i := 0; i < generations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := e.EvolveOneGeneration()
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(stats); err != nil {
				return err
			}
		}
	}
	return nil
}

// Statistics returns the generation counter and the fitness summary of the
// last evaluated generation.
func (e *Evolver) Statistics() Statistics {
	s := Statistics{Generation: e.generation}
	if len(e.history) > 0 {
		last := e.history[len(e.history)-1]
		s.Best, s.Avg, s.Min = last.Best, last.Avg, last.Min
	}
	return s
}

// Generation returns the number of completed generations.
func (e *Evolver) Generation() int { return e.generation }

// History returns a copy of every recorded generation summary, oldest first.
func (e *Evolver) History() []telemetry.GenerationStats {
	out := make([]telemetry.GenerationStats, len(e.history))
	copy(out, e.history)
	return out
}

// Population returns copies of the current genomes.
func (e *Evolver) Population() []genome.Genome {
	out := make([]genome.Genome, len(e.population))
	for i, g := range e.population {
		out[i] = g.Clone()
	}
	return out
}

// Ranked returns the previous generation's population with the fitness it
// was recorded at, best first.
func (e *Evolver) Ranked() []Scored {
	out := make([]Scored, len(e.ranked))
	for i, s := range e.ranked {
		out[i] = Scored{Genome: s.Genome.Clone(), Fitness: s.Fitness}
	}
	return out
}

// BestIndividual re-evaluates every genome and returns the fittest. Because
// evaluation is re-sampled, it may disagree with the last recorded elites.
func (e *Evolver) BestIndividual() (Scored, error) {
	if len(e.population) == 0 {
		return Scored{}, ErrNotInitialized
	}
	fitness, err := e.evaluateAll(e.population)
	if err != nil {
		return Scored{}, err
	}

	best := 0
	for i := range fitness {
		if fitness[i] > fitness[best] {
			best = i
		}
	}
	return Scored{Genome: e.population[best].Clone(), Fitness: fitness[best]}, nil
}

// Perf returns timing statistics over the recent generations.
func (e *Evolver) Perf() telemetry.PerfStats {
	return e.perf.Stats()
}

// Checkpoint captures the population and history for resuming.
func (e *Evolver) Checkpoint(seed int64) *telemetry.Checkpoint {
	return &telemetry.Checkpoint{
		Version:    telemetry.CheckpointVersion,
		Seed:       seed,
		Generation: e.generation,
		Population: e.Population(),
		History:    e.History(),
	}
}

// Restore replaces the evolver state with a checkpoint's.
func (e *Evolver) Restore(cp *telemetry.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if len(cp.Population) == 0 {
		return fmt.Errorf("restore: %w", ErrPopulationSize)
	}

	pop := make([]genome.Genome, len(cp.Population))
	for i, g := range cp.Population {
		pop[i] = g.Clone()
	}
	e.population = pop
	e.params.Population = len(pop)
	e.generation = cp.Generation
	e.history = append([]telemetry.GenerationStats(nil), cp.History...)
	e.ranked = nil
	e.cached = nil

	slog.Info("evolver restored", "generation", e.generation, "population", len(pop))
	return nil
}
