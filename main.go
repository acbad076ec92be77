package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/animat/config"
	"github.com/pthm-cable/animat/evolve"
	"github.com/pthm-cable/animat/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output generation and perf stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, checkpoints and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	generations := flag.Int("generations", 0, "Generations to evolve (0 = use config)")
	agents := flag.Int("agents", 0, "Animats in the showcase episode (0 = use config)")
	showcaseEvery := flag.Int("showcase-every", 10, "Generations between showcase episodes (0 = never)")
	checkpointEvery := flag.Int("checkpoint-every", 0, "Generations between checkpoints (0 = only at the end)")
	hallSize := flag.Int("hall-size", 10, "Genomes kept in the hall of fame")
	resume := flag.String("resume", "", "Checkpoint file to resume from")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *generations > 0 {
		cfg.Evolution.Generations = *generations
	}
	if *agents > 0 {
		cfg.Episode.Agents = *agents
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	var checkpoint *telemetry.Checkpoint
	if *resume != "" {
		checkpoint, err = telemetry.LoadCheckpoint(*resume)
		if err != nil {
			slog.Error("failed to load checkpoint", "path", *resume, "error", err)
			os.Exit(1)
		}
	}

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 && checkpoint != nil {
		rngSeed = checkpoint.Seed
	}
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ev := evolve.New(evolve.ParamsFor(cfg), rand.New(rand.NewSource(rngSeed)))
	defer ev.Close()

	if checkpoint != nil {
		err = ev.Restore(checkpoint)
	} else {
		err = ev.Initialize(cfg.Evolution.Population, cfg.Evolution.GenomeLength)
	}
	if err != nil {
		slog.Error("failed to set up population", "error", err)
		os.Exit(1)
	}

	s := &session{
		cfg:             cfg,
		seed:            rngSeed,
		evolver:         ev,
		output:          output,
		hall:            telemetry.NewHallOfFame(*hallSize),
		bookmarks:       telemetry.NewBookmarkDetector(20),
		showcaseRng:     rand.New(rand.NewSource(rngSeed + 1)),
		logStats:        *logStats,
		showcaseEvery:   *showcaseEvery,
		checkpointEvery: *checkpointEvery,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting evolution",
		"seed", rngSeed,
		"generation", ev.Generation(),
		"generations", cfg.Evolution.Generations,
		"population", cfg.Evolution.Population,
		"workers", cfg.Evolution.Workers,
		"cache_fitness", cfg.Evolution.CacheFitness,
	)

	err = ev.Run(ctx, cfg.Evolution.Generations, func(stats telemetry.GenerationStats) error {
		return s.afterGeneration(ctx, stats)
	})
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted", "generation", ev.Generation())
	case err != nil:
		slog.Error("evolution failed", "generation", ev.Generation(), "error", err)
		os.Exit(1)
	}

	if err := s.finish(); err != nil {
		slog.Error("failed to write final results", "error", err)
		os.Exit(1)
	}
}
