// Package episode runs several animats together in one shared world. Each
// animat is an ECS entity carrying its simulated agent and a lifetime record.
package episode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/animat/agent"
	"github.com/pthm-cable/animat/components"
	"github.com/pthm-cable/animat/config"
	"github.com/pthm-cable/animat/genome"
	"github.com/pthm-cable/animat/telemetry"
	"github.com/pthm-cable/animat/world"
)

// ErrNoAgents is returned when an episode is asked to run with fewer than one animat.
var ErrNoAgents = errors.New("episode: at least one animat is required")

// Params holds the settings of one episode.
type Params struct {
	Agents   int
	MaxTicks int
	World    world.Params
	Agent    agent.Params
}

// ParamsFor scales the world and animats to the given number of animats.
// agents < 1 falls back to the configured episode size.
func ParamsFor(cfg *config.Config, agents int) Params {
	if agents < 1 {
		agents = cfg.Episode.Agents
	}
	return Params{
		Agents:   agents,
		MaxTicks: cfg.Derived.EpisodeTicks,
		World:    world.ParamsFor(cfg, agents),
		Agent:    agent.ParamsFor(cfg, agents),
	}
}

// Snapshot is the observable state of an episode for renderers.
type Snapshot struct {
	Tick    int
	Animats []agent.Snapshot // update order
	Food    []r2.Vec
	Water   []r2.Vec
	Hazards []r2.Vec
}

// Runner steps a set of animats in a fixed order against one world.
type Runner struct {
	params     Params
	generation int
	world      *world.World

	ecs     *ecs.World
	mapper  *ecs.Map2[components.Animat, components.Lifetime]
	filter  *ecs.Filter2[components.Animat, components.Lifetime]
	order   []ecs.Entity
	animats []*agent.Agent

	collector *telemetry.Collector
	events    []telemetry.Event
	tick      int
}

// New builds a world for p and spawns p.Agents animats from genomes in
// order. Missing genomes are filled with random ones.
func New(p Params, generation int, genomes []genome.Genome, rng *rand.Rand) (*Runner, error) {
	if p.Agents < 1 {
		return nil, ErrNoAgents
	}

	ecsWorld := ecs.NewWorld()
	r := &Runner{
		params:     p,
		generation: generation,
		world:      world.New(p.World, rng),
		ecs:        ecsWorld,
		mapper:     ecs.NewMap2[components.Animat, components.Lifetime](ecsWorld),
		filter:     ecs.NewFilter2[components.Animat, components.Lifetime](ecsWorld),
		collector:  telemetry.NewCollector(),
	}

	var ids agent.IDAllocator
	for i := 0; i < p.Agents; i++ {
		var g genome.Genome
		if i < len(genomes) {
			g = genomes[i]
		} else {
			g = genome.Random(rng, genome.Length)
		}
		a, err := agent.Spawn(ids.Next(), p.Agent, g, r.world.Size(), rng)
		if err != nil {
			return nil, fmt.Errorf("spawn animat %d: %w", i, err)
		}

		animat := components.Animat{Agent: a, Order: i}
		life := components.Lifetime{Generation: generation}
		r.order = append(r.order, r.mapper.NewEntity(&animat, &life))
		r.animats = append(r.animats, a)
	}
	return r, nil
}

// Tick returns the number of completed ticks.
func (r *Runner) Tick() int { return r.tick }

// World returns the shared world.
func (r *Runner) World() *world.World { return r.world }

// Alive returns the number of live animats.
func (r *Runner) Alive() int {
	n := 0
	for _, a := range r.animats {
		if a.Alive() {
			n++
		}
	}
	return n
}

// Done reports whether the episode has reached its tick cap or every
// animat is terminal.
func (r *Runner) Done() bool {
	if r.params.MaxTicks > 0 && r.tick >= r.params.MaxTicks {
		return true
	}
	for _, a := range r.animats {
		if !a.Terminal() {
			return false
		}
	}
	return true
}

// Step advances every live animat by one tick in spawn order. An animat
// updated later sees the world as left by the ones before it, including
// relocated sources.
func (r *Runner) Step() error {
	if r.Done() {
		return nil
	}
	r.tick++

	for _, e := range r.order {
		animat, life := r.mapper.Get(e)
		a := animat.Agent
		if a.Terminal() {
			continue
		}
		if err := a.Step(r.world, r.animats); err != nil {
			return fmt.Errorf("tick %d: %w", r.tick, err)
		}

		ev := a.LastEvents()
		life.Observe(ev, a.Fitness())
		r.events = telemetry.AppendEvents(r.events[:0], r.tick, a.ID(), ev)
		for _, te := range r.events {
			r.collector.Record(te)
		}
	}
	return nil
}

// Run steps until Done or ctx is cancelled and returns the episode summary.
func (r *Runner) Run(ctx context.Context) (telemetry.EpisodeStats, error) {
	for !r.Done() {
		if err := ctx.Err(); err != nil {
			return telemetry.EpisodeStats{}, err
		}
		if err := r.Step(); err != nil {
			return telemetry.EpisodeStats{}, err
		}
	}
	stats := r.Stats()
	slog.Debug("episode finished", "survivors", stats.Survivors, "ticks", stats.Ticks)
	return stats, nil
}

// Stats summarizes the episode so far. MeanFitness averages the animats'
// mean per-tick fitness.
func (r *Runner) Stats() telemetry.EpisodeStats {
	lifetimes := r.Lifetimes()
	var sum float64
	for _, l := range lifetimes {
		sum += l.MeanFitness
	}
	return r.collector.Summary(r.generation, len(lifetimes), r.tick, r.Alive(), sum/float64(len(lifetimes)))
}

// Lifetimes returns one record per animat in update order.
func (r *Runner) Lifetimes() []telemetry.LifetimeStats {
	out := make([]telemetry.LifetimeStats, 0, len(r.order))
	query := r.filter.Query()
	for query.Next() {
		animat, life := query.Get()
		out = append(out, life.Stats(animat))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Snapshot copies the current state of every animat and world object.
func (r *Runner) Snapshot() Snapshot {
	s := Snapshot{
		Tick:    r.tick,
		Animats: make([]agent.Snapshot, len(r.animats)),
		Food:    r.world.Objects(world.Food),
		Water:   r.world.Objects(world.Water),
		Hazards: r.world.Objects(world.Hazard),
	}
	for i, a := range r.animats {
		s.Animats[i] = a.Snapshot()
	}
	return s
}
