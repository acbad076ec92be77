// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Genome layout shared with the genome package. Kept here so Validate can
// reject a mismatched genome_length without an import cycle.
const (
	linkParams     = 9
	sensorSlots    = 9
	motorThreshold = 2
)

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Animat    AnimatConfig    `yaml:"animat"`
	Battery   BatteryConfig   `yaml:"battery"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Episode   EpisodeConfig   `yaml:"episode"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds arena dimensions and object counts for a single agent.
// Every value is multiplied by the number of co-simulated agents.
type WorldConfig struct {
	BaseSize    float64 `yaml:"base_size"`
	Padding     float64 `yaml:"padding"`      // Objects never spawn closer than this to a wall
	BaseFood    int     `yaml:"base_food"`
	BaseWater   int     `yaml:"base_water"`
	BaseHazards int     `yaml:"base_hazards"`
}

// AnimatConfig holds body, motion and sensing parameters.
type AnimatConfig struct {
	Radius          float64 `yaml:"radius"`
	SourceRadius    float64 `yaml:"source_radius"`
	MaxSpeed        float64 `yaml:"max_speed"`
	BaseSensorRange float64 `yaml:"base_sensor_range"` // Scaled by agent count
	SideBias        float64 `yaml:"side_bias"`         // Gain on the sensor facing the target
	MaxLifespan     int     `yaml:"max_lifespan"`      // Ticks
	StuckDistance   float64 `yaml:"stuck_distance"`    // Displacement below this counts as stuck
	StuckLimit      int     `yaml:"stuck_limit"`       // Stuck ticks before a random heading
	CollisionDamage float64 `yaml:"collision_damage"`  // Per colliding peer, both batteries
}

// BatteryConfig holds the two energy reserves' capacity and drain.
type BatteryConfig struct {
	Max       float64 `yaml:"max"`
	DecayRate float64 `yaml:"decay_rate"` // Per tick, both batteries
}

// EvolutionConfig holds genetic algorithm parameters.
type EvolutionConfig struct {
	Population     int     `yaml:"population"`
	GenomeLength   int     `yaml:"genome_length"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	MutationRate   float64 `yaml:"mutation_rate"`
	TournamentSize int     `yaml:"tournament_size"`
	EliteCount     int     `yaml:"elite_count"`
	Workers        int     `yaml:"workers"`       // 0 = GOMAXPROCS
	CacheFitness   bool    `yaml:"cache_fitness"` // Tournaments reuse the generation's fitness instead of re-simulating
	Generations    int     `yaml:"generations"`
}

// EpisodeConfig holds the showcase multi-agent episode parameters.
type EpisodeConfig struct {
	Agents   int `yaml:"agents"`
	MaxTicks int `yaml:"max_ticks"` // 0 = animat.max_lifespan
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	LogEvery   int `yaml:"log_every"`   // Generations between log lines
	PerfWindow int `yaml:"perf_window"` // Generations averaged by the perf collector
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SensorSlots  int     // (GenomeLength - 2) / 9
	EpisodeTicks int     // Episode.MaxTicks or Animat.MaxLifespan
	ContactDist  float64 // Animat.Radius + Animat.SourceRadius
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.computeDerived()

	return cfg, nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validation errors.
var (
	ErrGenomeLength = errors.New("genome_length must equal 9*9+2")
	ErrPopulation   = errors.New("population must be at least 2")
	ErrElite        = errors.New("elite_count must be in [0, population]")
	ErrRate         = errors.New("rate must be in [0, 1]")
	ErrTournament   = errors.New("tournament_size must be at least 1")
	ErrNonPositive  = errors.New("value must be positive")
	ErrAgents       = errors.New("episode agents must be at least 1")
	ErrNegative     = errors.New("value must not be negative")
	ErrPadding      = errors.New("padding must be non-negative and leave room inside the arena")
)

// Validate checks the configuration for values the simulation cannot run with.
func (c *Config) Validate() error {
	if c.Evolution.GenomeLength != linkParams*sensorSlots+motorThreshold {
		return fmt.Errorf("evolution.genome_length=%d: %w", c.Evolution.GenomeLength, ErrGenomeLength)
	}
	if c.Evolution.Population < 2 {
		return fmt.Errorf("evolution.population=%d: %w", c.Evolution.Population, ErrPopulation)
	}
	if c.Evolution.EliteCount < 0 || c.Evolution.EliteCount > c.Evolution.Population {
		return fmt.Errorf("evolution.elite_count=%d: %w", c.Evolution.EliteCount, ErrElite)
	}
	if c.Evolution.TournamentSize < 1 {
		return fmt.Errorf("evolution.tournament_size=%d: %w", c.Evolution.TournamentSize, ErrTournament)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"evolution.crossover_rate", c.Evolution.CrossoverRate},
		{"evolution.mutation_rate", c.Evolution.MutationRate},
	} {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("%s=%v: %w", f.name, f.v, ErrRate)
		}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"world.base_size", c.World.BaseSize},
		{"animat.radius", c.Animat.Radius},
		{"animat.source_radius", c.Animat.SourceRadius},
		{"animat.base_sensor_range", c.Animat.BaseSensorRange},
		{"animat.max_lifespan", float64(c.Animat.MaxLifespan)},
		{"battery.max", c.Battery.Max},
		{"battery.decay_rate", c.Battery.DecayRate},
	} {
		if f.v <= 0 {
			return fmt.Errorf("%s=%v: %w", f.name, f.v, ErrNonPositive)
		}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"animat.max_speed", c.Animat.MaxSpeed},
		{"animat.stuck_distance", c.Animat.StuckDistance},
		{"animat.stuck_limit", float64(c.Animat.StuckLimit)},
		{"animat.collision_damage", c.Animat.CollisionDamage},
		{"episode.max_ticks", float64(c.Episode.MaxTicks)},
	} {
		if f.v < 0 {
			return fmt.Errorf("%s=%v: %w", f.name, f.v, ErrNegative)
		}
	}
	if c.World.Padding < 0 || 2*c.World.Padding >= c.World.BaseSize {
		return fmt.Errorf("world.padding=%v with base_size=%v: %w", c.World.Padding, c.World.BaseSize, ErrPadding)
	}
	if c.Episode.Agents < 1 {
		return fmt.Errorf("episode.agents=%d: %w", c.Episode.Agents, ErrAgents)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.SensorSlots = (c.Evolution.GenomeLength - motorThreshold) / linkParams
	c.Derived.EpisodeTicks = c.Episode.MaxTicks
	if c.Derived.EpisodeTicks == 0 {
		c.Derived.EpisodeTicks = c.Animat.MaxLifespan
	}
	c.Derived.ContactDist = c.Animat.Radius + c.Animat.SourceRadius
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
