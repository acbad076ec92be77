package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one generation of the evolver.
const (
	PhaseEvaluate = "evaluate"
	PhaseRank     = "rank"
	PhaseBreed    = "breed"
)

var phases = []string{PhaseEvaluate, PhaseRank, PhaseBreed}

// PerfSample holds timing data for a single generation.
type PerfSample struct {
	Duration    time.Duration
	Evaluations int
	Phases      map[string]time.Duration
}

// PerfCollector tracks evolver timing over a rolling window of generations.
// It is not safe for concurrent use; the evolver drives it from one goroutine.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	evaluations   int
	genStart      time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over windowSize generations.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 20
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartGeneration begins timing a new generation.
func (p *PerfCollector) StartGeneration() {
	p.genStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.evaluations = 0
	p.lastPhase = ""
}

// StartPhase ends the running phase, if any, and begins timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// AddEvaluations counts fitness evaluations performed this generation.
func (p *PerfCollector) AddEvaluations(n int) {
	p.evaluations += n
}

// EndGeneration closes the running phase and records the sample.
func (p *PerfCollector) EndGeneration() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		Duration:    now.Sub(p.genStart),
		Evaluations: p.evaluations,
		Phases:      p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated timing over the window.
type PerfStats struct {
	AvgGeneration time.Duration
	MinGeneration time.Duration
	MaxGeneration time.Duration

	// Average duration and share of generation time per phase
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	EvalsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var total, minGen, maxGen time.Duration
	var evals int
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.Duration
		evals += s.Evaluations
		if i == 0 || s.Duration < minGen {
			minGen = s.Duration
		}
		if s.Duration > maxGen {
			maxGen = s.Duration
		}
		for phase, d := range s.Phases {
			phaseSum[phase] += d
		}
	}

	avg := total / time.Duration(p.sampleCount)
	phaseAvg := make(map[string]time.Duration, len(phaseSum))
	phasePct := make(map[string]float64, len(phaseSum))
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avg) * 100
		}
	}

	var evalsPerSec float64
	if total > 0 {
		evalsPerSec = float64(evals) / total.Seconds()
	}

	return PerfStats{
		AvgGeneration:  avg,
		MinGeneration:  minGen,
		MaxGeneration:  maxGen,
		PhaseAvg:       phaseAvg,
		PhasePct:       phasePct,
		EvalsPerSecond: evalsPerSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_gen_ms", s.AvgGeneration.Milliseconds(),
		"min_gen_ms", s.MinGeneration.Milliseconds(),
		"max_gen_ms", s.MaxGeneration.Milliseconds(),
		"evals_per_sec", int(s.EvalsPerSecond),
	}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_gen_ms", s.AvgGeneration.Milliseconds()),
		slog.Float64("evals_per_sec", s.EvalsPerSecond),
	}
	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Generation  int     `csv:"generation"`
	AvgGenUS    int64   `csv:"avg_gen_us"`
	MinGenUS    int64   `csv:"min_gen_us"`
	MaxGenUS    int64   `csv:"max_gen_us"`
	EvalsPerSec float64 `csv:"evals_per_sec"`
	EvaluatePct float64 `csv:"evaluate_pct"`
	RankPct     float64 `csv:"rank_pct"`
	BreedPct    float64 `csv:"breed_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(generation int) PerfStatsCSV {
	return PerfStatsCSV{
		Generation:  generation,
		AvgGenUS:    s.AvgGeneration.Microseconds(),
		MinGenUS:    s.MinGeneration.Microseconds(),
		MaxGenUS:    s.MaxGeneration.Microseconds(),
		EvalsPerSec: s.EvalsPerSecond,
		EvaluatePct: s.PhasePct[PhaseEvaluate],
		RankPct:     s.PhasePct[PhaseRank],
		BreedPct:    s.PhasePct[PhaseBreed],
	}
}
