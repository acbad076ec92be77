package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/animat/config"
	"github.com/pthm-cable/animat/episode"
	"github.com/pthm-cable/animat/evolve"
	"github.com/pthm-cable/animat/genome"
	"github.com/pthm-cable/animat/telemetry"
)

// session holds the per-run state the CLI updates after every generation.
type session struct {
	cfg       *config.Config
	seed      int64
	evolver   *evolve.Evolver
	output    *telemetry.OutputManager
	hall      *telemetry.HallOfFame
	bookmarks *telemetry.BookmarkDetector

	// Showcase episodes draw from their own stream so they never shift
	// the evolver's random sequence.
	showcaseRng *rand.Rand

	logStats        bool
	showcaseEvery   int
	checkpointEvery int
}

func (s *session) afterGeneration(ctx context.Context, stats telemetry.GenerationStats) error {
	if err := s.output.WriteGeneration(stats); err != nil {
		return fmt.Errorf("write generation: %w", err)
	}

	perf := s.evolver.Perf()
	if err := s.output.WritePerf(perf, stats.Generation); err != nil {
		return fmt.Errorf("write perf: %w", err)
	}
	if s.logStats && s.cfg.Telemetry.LogEvery > 0 && stats.Generation%s.cfg.Telemetry.LogEvery == 0 {
		stats.LogStats()
		perf.LogStats()
	}

	ranked := s.evolver.Ranked()
	for _, r := range ranked {
		s.hall.Consider(r.Genome, r.Fitness, stats.Generation)
	}

	for _, b := range s.bookmarks.Check(stats) {
		b.LogBookmark()
		if err := s.output.WriteBookmark(b); err != nil {
			return fmt.Errorf("write bookmark: %w", err)
		}
		if b.Type == telemetry.BookmarkNewRecord {
			cp := s.evolver.Checkpoint(s.seed)
			cp.Bookmark = &b
			if _, err := s.output.WriteCheckpoint(cp); err != nil {
				return fmt.Errorf("write checkpoint: %w", err)
			}
		}
	}

	if s.checkpointEvery > 0 && s.evolver.Generation()%s.checkpointEvery == 0 {
		if _, err := s.output.WriteCheckpoint(s.evolver.Checkpoint(s.seed)); err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
	}

	if s.showcaseEvery > 0 && stats.Generation%s.showcaseEvery == 0 {
		genomes := make([]genome.Genome, 0, len(ranked))
		for _, r := range ranked {
			genomes = append(genomes, r.Genome)
		}
		if err := s.showcase(ctx, stats.Generation, genomes); err != nil {
			return err
		}
	}
	return nil
}

// showcase runs the best genomes of a generation together in one shared
// world and records how each of them fared.
func (s *session) showcase(ctx context.Context, generation int, genomes []genome.Genome) error {
	runner, err := episode.New(episode.ParamsFor(s.cfg, 0), generation, genomes, s.showcaseRng)
	if err != nil {
		return fmt.Errorf("showcase: %w", err)
	}
	stats, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("showcase: %w", err)
	}

	if s.logStats {
		stats.LogStats()
	}
	if err := s.output.WriteEpisode(stats); err != nil {
		return fmt.Errorf("write episode: %w", err)
	}
	if err := s.output.WriteLifetimes(runner.Lifetimes()); err != nil {
		return fmt.Errorf("write lifetimes: %w", err)
	}
	return nil
}

// finish re-scores the final population and writes the hall of fame and a
// closing checkpoint.
func (s *session) finish() error {
	best, err := s.evolver.BestIndividual()
	if err != nil {
		return err
	}
	s.hall.Consider(best.Genome, best.Fitness, s.evolver.Generation())

	stats := s.evolver.Statistics()
	slog.Info("evolution finished",
		"generation", stats.Generation,
		"best", stats.Best,
		"avg", stats.Avg,
		"min", stats.Min,
		"final_best", best.Fitness,
		"hall_of_fame", s.hall.Size(),
	)

	if err := s.output.WriteHallOfFame(s.hall); err != nil {
		return fmt.Errorf("write hall of fame: %w", err)
	}
	path, err := s.output.WriteCheckpoint(s.evolver.Checkpoint(s.seed))
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if path != "" {
		slog.Info("checkpoint written", "path", path)
	}
	return nil
}
