package evolve

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/animat/config"
	"github.com/pthm-cable/animat/genome"
	"github.com/pthm-cable/animat/telemetry"
)

func testParams() Params {
	cfg := config.Default()
	cfg.Animat.MaxLifespan = 60
	p := ParamsFor(cfg)
	p.Population = 12
	p.EliteCount = 3
	p.TournamentSize = 4
	p.Workers = 2
	return p
}

func newTestEvolver(t *testing.T, p Params, seed int64) *Evolver {
	t.Helper()
	e := New(p, rand.New(rand.NewSource(seed)))
	t.Cleanup(e.Close)
	if err := e.Initialize(p.Population, genome.Length); err != nil {
		t.Fatal(err)
	}
	return e
}

func constGenome(v int) genome.Genome {
	g := make(genome.Genome, genome.Length)
	for i := range g {
		g[i] = v
	}
	return g
}

func TestInitialize(t *testing.T) {
	e := New(testParams(), rand.New(rand.NewSource(1)))
	defer e.Close()

	if err := e.Initialize(0, genome.Length); !errors.Is(err, ErrPopulationSize) {
		t.Errorf("Initialize(0) = %v, want ErrPopulationSize", err)
	}
	if err := e.Initialize(5, 40); !errors.Is(err, genome.ErrInvalidLength) {
		t.Errorf("Initialize(len 40) = %v, want ErrInvalidLength", err)
	}
	if err := e.Initialize(5, genome.Length); err != nil {
		t.Fatal(err)
	}

	pop := e.Population()
	if len(pop) != 5 {
		t.Fatalf("population = %d, want 5", len(pop))
	}
	for i, g := range pop {
		if err := g.Validate(); err != nil {
			t.Errorf("genome %d: %v", i, err)
		}
	}
	if s := e.Statistics(); s != (Statistics{}) {
		t.Errorf("fresh statistics = %+v, want zero", s)
	}
}

func TestEvaluateWithSeedIsPure(t *testing.T) {
	e := newTestEvolver(t, testParams(), 1)
	g := e.Population()[0]

	a, err := e.EvaluateWithSeed(g, 99)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.EvaluateWithSeed(g, 99)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same seed gave %v and %v", a, b)
	}
	if a < 0 || a > 1 {
		t.Errorf("fitness %v outside [0, 1]", a)
	}
}

func TestEvaluateEmptyWorld(t *testing.T) {
	p := testParams()
	p.World.Food, p.World.Water, p.World.Hazards = 0, 0, 0
	p.MaxTicks = 50
	e := newTestEvolver(t, p, 1)

	// Batteries fall by one per tick: mean of (200-t)/200 for t = 1..50
	want := (200 - 25.5) / 200
	for _, g := range e.Population()[:3] {
		got, err := e.Evaluate(g)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("fitness = %v, want %v", got, want)
		}
	}
}

func TestEvaluateZeroTicks(t *testing.T) {
	p := testParams()
	p.MaxTicks = 0
	e := newTestEvolver(t, p, 1)

	got, err := e.Evaluate(e.Population()[0])
	if err != nil || got != 0 {
		t.Errorf("Evaluate with no ticks = %v, %v, want 0, nil", got, err)
	}
}

func TestEvaluateRejectsInvalidGenome(t *testing.T) {
	e := newTestEvolver(t, testParams(), 1)
	if _, err := e.Evaluate(make(genome.Genome, 10)); !errors.Is(err, genome.ErrInvalidLength) {
		t.Errorf("Evaluate = %v, want ErrInvalidLength", err)
	}
}

func TestCrossover(t *testing.T) {
	a, b := constGenome(0), constGenome(99)

	t.Run("always", func(t *testing.T) {
		p := testParams()
		p.CrossoverRate = 1
		e := newTestEvolver(t, p, 3)

		for trial := 0; trial < 50; trial++ {
			c1, c2, err := e.Crossover(a, b)
			if err != nil {
				t.Fatal(err)
			}
			if len(c1) != genome.Length || len(c2) != genome.Length {
				t.Fatalf("child lengths %d, %d", len(c1), len(c2))
			}
			point := 0
			for point < len(c1) && c1[point] == 0 {
				point++
			}
			for i := range c1 {
				wantC1, wantC2 := 99, 0
				if i < point {
					wantC1, wantC2 = 0, 99
				}
				if c1[i] != wantC1 || c2[i] != wantC2 {
					t.Fatalf("gene %d: children (%d, %d) not a single-point swap at %d", i, c1[i], c2[i], point)
				}
			}
		}
	})

	t.Run("never", func(t *testing.T) {
		p := testParams()
		p.CrossoverRate = 0
		e := newTestEvolver(t, p, 3)

		c1, c2, err := e.Crossover(a, b)
		if err != nil {
			t.Fatal(err)
		}
		if !c1.Equal(a) || !c2.Equal(b) {
			t.Error("children should equal parents")
		}
		c1[0] = 50
		if a[0] != 0 {
			t.Error("children should not alias parents")
		}
	})

	t.Run("invalid parents", func(t *testing.T) {
		p := testParams()
		p.CrossoverRate = 1
		e := newTestEvolver(t, p, 3)

		bad := constGenome(0)
		bad[5] = genome.MaxGene + 1
		tests := []struct {
			name string
			a, b genome.Genome
			want error
		}{
			{"length mismatch", a, b[:10], genome.ErrInvalidLength},
			{"equal short lengths", make(genome.Genome, 10), make(genome.Genome, 10), genome.ErrInvalidLength},
			{"empty", genome.Genome{}, genome.Genome{}, genome.ErrInvalidLength},
			{"gene out of range", bad, b, genome.ErrGeneRange},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c1, c2, err := e.Crossover(tt.a, tt.b)
				if !errors.Is(err, tt.want) {
					t.Errorf("Crossover = %v, want %v", err, tt.want)
				}
				if c1 != nil || c2 != nil {
					t.Error("children returned alongside an error")
				}
			})
		}
	})
}

func TestMutate(t *testing.T) {
	g := constGenome(42)

	p := testParams()
	p.MutationRate = 0
	e := newTestEvolver(t, p, 4)
	same, err := e.Mutate(g)
	if err != nil {
		t.Fatal(err)
	}
	if !same.Equal(g) {
		t.Error("zero mutation rate changed the genome")
	}

	p.MutationRate = 1
	e = newTestEvolver(t, p, 4)
	m, err := e.Mutate(g)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	changed := 0
	for i := range m {
		if m[i] != 42 {
			changed++
		}
	}
	if changed < genome.Length/2 {
		t.Errorf("only %d genes changed at rate 1", changed)
	}
	if !g.Equal(constGenome(42)) {
		t.Error("Mutate modified its input")
	}

	bad := constGenome(42)
	bad[0] = -1
	tests := []struct {
		name string
		g    genome.Genome
		want error
	}{
		{"short", make(genome.Genome, 5), genome.ErrInvalidLength},
		{"empty", nil, genome.ErrInvalidLength},
		{"gene out of range", bad, genome.ErrGeneRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Mutate(tt.g)
			if !errors.Is(err, tt.want) {
				t.Errorf("Mutate = %v, want %v", err, tt.want)
			}
			if out != nil {
				t.Error("genome returned alongside an error")
			}
		})
	}
}

func TestSelectParent(t *testing.T) {
	e := New(testParams(), rand.New(rand.NewSource(5)))
	defer e.Close()
	if _, err := e.SelectParent(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SelectParent before Initialize = %v", err)
	}

	p := testParams()
	p.CacheFitness = true
	p.TournamentSize = 100 // capped at the population size
	e = newTestEvolver(t, p, 5)

	e.cached = make([]float64, len(e.population))
	e.cached[7] = 0.9
	for i := 0; i < 5; i++ {
		got, err := e.SelectParent()
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(e.population[7]) {
			t.Fatal("whole-population tournament should pick the fittest")
		}
	}
}

func TestSelectParentReevaluates(t *testing.T) {
	for _, seed := range []int64{11, 12, 13} {
		p := testParams()
		p.CacheFitness = false
		e := newTestEvolver(t, p, seed)

		// A twin on the same stream replays the tournament by hand.
		twin := New(p, rand.New(rand.NewSource(seed)))
		t.Cleanup(twin.Close)
		if err := twin.Initialize(p.Population, genome.Length); err != nil {
			t.Fatal(err)
		}
		for i := range e.population {
			if !e.population[i].Equal(twin.population[i]) {
				t.Fatal("twin population differs")
			}
		}

		n := len(twin.population)
		k := min(p.TournamentSize, n)
		contestants := twin.rng.Perm(n)[:k]
		seen := make(map[int]bool, k)
		for _, idx := range contestants {
			if seen[idx] {
				t.Fatalf("contestant %d drawn twice", idx)
			}
			seen[idx] = true
		}
		seeds := make([]int64, k)
		for i := range seeds {
			seeds[i] = twin.rng.Int63()
		}
		best, bestFit := -1, math.Inf(-1)
		for i, idx := range contestants {
			f, err := twin.EvaluateWithSeed(twin.population[idx], seeds[i])
			if err != nil {
				t.Fatal(err)
			}
			if f > bestFit {
				best, bestFit = idx, f
			}
		}

		// Stale cached fitness must be ignored when caching is off.
		e.cached = make([]float64, n)
		for i := range e.cached {
			e.cached[i] = -1
		}
		e.cached[(best+1)%n] = 100

		got, err := e.SelectParent()
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(twin.population[best]) {
			t.Errorf("seed %d: tournament winner differs from fresh evaluation of contestants %v", seed, contestants)
		}
	}
}

func TestEvolveOneGeneration(t *testing.T) {
	p := testParams()
	e := newTestEvolver(t, p, 6)

	for gen := 1; gen <= 3; gen++ {
		stats, err := e.EvolveOneGeneration()
		if err != nil {
			t.Fatal(err)
		}
		if stats.Generation != gen-1 || stats.Population != p.Population {
			t.Errorf("stats = %+v", stats)
		}
		if !(stats.Min <= stats.Avg && stats.Avg <= stats.Best) {
			t.Errorf("min/avg/best out of order: %+v", stats)
		}
		if e.Generation() != gen {
			t.Errorf("generation = %d, want %d", e.Generation(), gen)
		}

		pop := e.Population()
		if len(pop) != p.Population {
			t.Fatalf("population size = %d, want %d", len(pop), p.Population)
		}

		// Elites are carried over unmodified
		ranked := e.Ranked()
		for i := 0; i < p.EliteCount; i++ {
			found := false
			for _, g := range pop {
				if g.Equal(ranked[i].Genome) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("elite %d missing from next generation", i)
			}
		}
		for i := 1; i < len(ranked); i++ {
			if ranked[i].Fitness > ranked[i-1].Fitness {
				t.Fatal("Ranked should be sorted best first")
			}
		}
	}

	hist := e.History()
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	s := e.Statistics()
	if s.Generation != 3 || s.Best != hist[2].Best || s.Avg != hist[2].Avg || s.Min != hist[2].Min {
		t.Errorf("Statistics = %+v, last history = %+v", s, hist[2])
	}
}

func TestEvolveOddPopulationTruncates(t *testing.T) {
	p := testParams()
	p.Population = 7
	p.EliteCount = 2
	e := newTestEvolver(t, p, 7)

	if _, err := e.EvolveOneGeneration(); err != nil {
		t.Fatal(err)
	}
	if n := len(e.Population()); n != 7 {
		t.Errorf("population = %d, want 7", n)
	}
}

func TestEvolveNotInitialized(t *testing.T) {
	e := New(testParams(), rand.New(rand.NewSource(1)))
	defer e.Close()
	if _, err := e.EvolveOneGeneration(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("EvolveOneGeneration = %v, want ErrNotInitialized", err)
	}
	if _, err := e.BestIndividual(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("BestIndividual = %v, want ErrNotInitialized", err)
	}
}

func TestFailedGenerationLeavesStateUnchanged(t *testing.T) {
	p := testParams()
	p.CacheFitness = true
	e := newTestEvolver(t, p, 8)
	if _, err := e.EvolveOneGeneration(); err != nil {
		t.Fatal(err)
	}
	hist, ranked, gen := e.History(), e.Ranked(), e.Generation()

	e.population[len(e.population)-1] = make(genome.Genome, 10)
	e.cached = make([]float64, len(e.population))
	if _, err := e.EvolveOneGeneration(); !errors.Is(err, genome.ErrInvalidLength) {
		t.Fatalf("EvolveOneGeneration = %v, want ErrInvalidLength", err)
	}
	if e.cached != nil {
		t.Error("cached fitness survived a failed generation")
	}
	if len(e.History()) != len(hist) || e.Generation() != gen {
		t.Errorf("history %d, generation %d; want %d, %d", len(e.History()), e.Generation(), len(hist), gen)
	}
	if got := e.Ranked(); len(got) != len(ranked) || !got[0].Genome.Equal(ranked[0].Genome) {
		t.Error("ranking changed after a failed generation")
	}
}

func TestHistoryRecordsEachGenerationOnce(t *testing.T) {
	e := newTestEvolver(t, testParams(), 9)
	if err := e.Run(context.Background(), 4, nil); err != nil {
		t.Fatal(err)
	}
	hist := e.History()
	if len(hist) != e.Generation() {
		t.Fatalf("history length = %d, generation = %d", len(hist), e.Generation())
	}
	for i, h := range hist {
		if h.Generation != i {
			t.Errorf("history[%d].Generation = %d", i, h.Generation)
		}
	}
	if e.cached != nil {
		t.Error("cached fitness outlived the generation")
	}
}

func TestReproducibleAcrossWorkerCounts(t *testing.T) {
	run := func(workers int, cache bool) []genome.Genome {
		p := testParams()
		p.Workers = workers
		p.CacheFitness = cache
		e := newTestEvolver(t, p, 42)
		for i := 0; i < 2; i++ {
			if _, err := e.EvolveOneGeneration(); err != nil {
				t.Fatal(err)
			}
		}
		return e.Population()
	}

	for _, cache := range []bool{false, true} {
		serial, parallel := run(1, cache), run(4, cache)
		for i := range serial {
			if !serial[i].Equal(parallel[i]) {
				t.Fatalf("cache=%v: genome %d differs between 1 and 4 workers", cache, i)
			}
		}
	}
}

func TestBestIndividual(t *testing.T) {
	e := newTestEvolver(t, testParams(), 8)

	best, err := e.BestIndividual()
	if err != nil {
		t.Fatal(err)
	}
	if best.Fitness < 0 || best.Fitness > 1 {
		t.Errorf("best fitness %v outside [0, 1]", best.Fitness)
	}
	found := false
	for _, g := range e.Population() {
		if g.Equal(best.Genome) {
			found = true
		}
	}
	if !found {
		t.Error("best individual is not a population member")
	}
}

func TestRun(t *testing.T) {
	t.Run("stops on cancel", func(t *testing.T) {
		e := newTestEvolver(t, testParams(), 9)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		err := e.Run(ctx, 10, func(stats telemetry.GenerationStats) error {
			if stats.Generation == 1 {
				cancel()
			}
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
		if e.Generation() != 2 {
			t.Errorf("generation = %d, want 2", e.Generation())
		}
	})

	t.Run("stops on callback error", func(t *testing.T) {
		e := newTestEvolver(t, testParams(), 9)
		stop := errors.New("stop")
		err := e.Run(context.Background(), 10, func(telemetry.GenerationStats) error { return stop })
		if !errors.Is(err, stop) || e.Generation() != 1 {
			t.Errorf("Run = %v after %d generations", err, e.Generation())
		}
	})

	t.Run("completes", func(t *testing.T) {
		e := newTestEvolver(t, testParams(), 9)
		if err := e.Run(context.Background(), 2, nil); err != nil {
			t.Fatal(err)
		}
		if e.Generation() != 2 || len(e.History()) != 2 {
			t.Errorf("generation = %d history = %d", e.Generation(), len(e.History()))
		}
	})
}

func TestCheckpointRestore(t *testing.T) {
	e := newTestEvolver(t, testParams(), 10)
	if _, err := e.EvolveOneGeneration(); err != nil {
		t.Fatal(err)
	}

	cp := e.Checkpoint(10)
	if cp.Generation != 1 || len(cp.Population) != testParams().Population || len(cp.History) != 1 {
		t.Fatalf("checkpoint = gen %d pop %d hist %d", cp.Generation, len(cp.Population), len(cp.History))
	}

	r := New(testParams(), rand.New(rand.NewSource(11)))
	defer r.Close()
	if err := r.Restore(cp); err != nil {
		t.Fatal(err)
	}
	if r.Generation() != 1 || len(r.History()) != 1 {
		t.Errorf("restored generation = %d history = %d", r.Generation(), len(r.History()))
	}
	for i, g := range r.Population() {
		if !g.Equal(cp.Population[i]) {
			t.Fatalf("genome %d not restored", i)
		}
	}

	bad := &telemetry.Checkpoint{Version: telemetry.CheckpointVersion, Population: []genome.Genome{{1, 2}}}
	if err := r.Restore(bad); !errors.Is(err, genome.ErrInvalidLength) {
		t.Errorf("Restore(bad) = %v, want ErrInvalidLength", err)
	}
}

func TestWorkerPoolRunsEveryIndex(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		p := newWorkerPool(workers)
		for _, n := range []int{0, 1, 2, 7, 100} {
			hits := make([]int, n)
			p.run(n, func(i int) { hits[i]++ })
			for i, h := range hits {
				if h != 1 {
					t.Fatalf("workers=%d n=%d: index %d ran %d times", workers, n, i, h)
				}
			}
		}
		p.stop()
	}
}
