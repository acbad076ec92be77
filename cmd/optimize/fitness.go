package main

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/pthm-cable/animat/config"
	"github.com/pthm-cable/animat/evolve"
	"github.com/pthm-cable/animat/telemetry"
)

// hallSize is the number of genomes kept from the best evaluation.
const hallSize = 10

// FitnessEvaluator runs short evolution runs and scores hyper-parameters.
type FitnessEvaluator struct {
	params      *ParamVector
	generations int
	seeds       []int64
	baseConfig  *config.Config

	// Best run tracking
	mu             sync.Mutex
	bestFitness    float64
	bestHallOfFame *telemetry.HallOfFame
	lastBest       float64 // mean final best fitness of the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, generations int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		generations: generations,
		seeds:       seeds,
		baseConfig:  baseCfg,
		bestFitness: math.Inf(1),
	}
}

// BestHallOfFame returns the hall of fame from the best evaluation.
func (fe *FitnessEvaluator) BestHallOfFame() *telemetry.HallOfFame {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestHallOfFame
}

// LastBest returns the mean final best fitness of the most recent evaluation.
func (fe *FitnessEvaluator) LastBest() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastBest
}

// seedResult holds the outcome of one evolution run.
type seedResult struct {
	score float64
	hall  *telemetry.HallOfFame
	err   error
}

// Evaluate computes the objective for a raw parameter vector (lower is
// better): the negated mean, over seeds, of the final generations' average
// of best and mean fitness. A failed run scores 0.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig.Clone()
	fe.params.ApplyToConfig(cfg, x)

	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runEvolution(cfg, s)
		}(i, seed)
	}
	wg.Wait()

	var total float64
	var bestSeed seedResult
	bestSeed.score = math.Inf(-1)
	for _, r := range results {
		if r.err != nil {
			continue
		}
		total += r.score
		if r.score > bestSeed.score {
			bestSeed = r
		}
	}
	mean := total / float64(len(fe.seeds))
	fitness := -mean

	fe.mu.Lock()
	if fitness < fe.bestFitness && bestSeed.hall != nil {
		fe.bestFitness = fitness
		fe.bestHallOfFame = bestSeed.hall
	}
	fe.lastBest = mean
	fe.mu.Unlock()

	return fitness
}

// runEvolution evolves a fresh population under cfg for the configured
// number of generations.
func (fe *FitnessEvaluator) runEvolution(cfg *config.Config, seed int64) seedResult {
	p := evolve.ParamsFor(cfg)
	p.Workers = 1 // seeds already run in parallel

	ev := evolve.New(p, rand.New(rand.NewSource(seed)))
	defer ev.Close()
	if err := ev.Initialize(cfg.Evolution.Population, cfg.Evolution.GenomeLength); err != nil {
		return seedResult{err: err}
	}

	hall := telemetry.NewHallOfFame(hallSize)
	err := ev.Run(context.Background(), fe.generations, func(stats telemetry.GenerationStats) error {
		for _, s := range ev.Ranked() {
			hall.Consider(s.Genome, s.Fitness, stats.Generation)
		}
		return nil
	})
	if err != nil {
		return seedResult{err: err}
	}

	hist := ev.History()
	if len(hist) == 0 {
		return seedResult{hall: hall}
	}
	last := hist[len(hist)-1]
	return seedResult{score: (last.Best + last.Avg) / 2, hall: hall}
}
