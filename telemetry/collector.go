package telemetry

import (
	"log/slog"

	"github.com/pthm-cable/animat/agent"
)

// EpisodeStats summarizes one multi-animat episode.
type EpisodeStats struct {
	Generation int `csv:"generation"`
	Agents     int `csv:"agents"`
	Ticks      int `csv:"ticks"`
	Survivors  int `csv:"survivors"`

	Food     int `csv:"food"`
	Water    int `csv:"water"`
	Contacts int `csv:"contacts"`

	StarvationDeaths int `csv:"starvation_deaths"`
	HazardDeaths     int `csv:"hazard_deaths"`
	CollisionDeaths  int `csv:"collision_deaths"`

	MeanFitness float64 `csv:"mean_fitness"`
}

// LogStats logs the episode summary using slog.
func (s EpisodeStats) LogStats() {
	slog.Info("episode",
		"generation", s.Generation,
		"agents", s.Agents,
		"ticks", s.Ticks,
		"survivors", s.Survivors,
		"food", s.Food,
		"water", s.Water,
		"contacts", s.Contacts,
		"starvation_deaths", s.StarvationDeaths,
		"hazard_deaths", s.HazardDeaths,
		"collision_deaths", s.CollisionDeaths,
		"mean_fitness", s.MeanFitness,
	)
}

// Collector counts episode events until flushed.
type Collector struct {
	food     int
	water    int
	contacts int
	deaths   map[agent.Cause]int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{deaths: make(map[agent.Cause]int)}
}

// Record counts one event.
func (c *Collector) Record(ev Event) {
	switch ev.Type {
	case EventFood:
		c.food++
	case EventWater:
		c.water++
	case EventContact:
		c.contacts += ev.Contacts
	case EventDeath:
		c.deaths[ev.Cause]++
	}
}

// Deaths returns the number of recorded deaths with the given cause.
func (c *Collector) Deaths(cause agent.Cause) int {
	return c.deaths[cause]
}

// Summary produces EpisodeStats from the events counted so far.
func (c *Collector) Summary(generation, agents, ticks, survivors int, meanFitness float64) EpisodeStats {
	return EpisodeStats{
		Generation:       generation,
		Agents:           agents,
		Ticks:            ticks,
		Survivors:        survivors,
		Food:             c.food,
		Water:            c.water,
		Contacts:         c.contacts,
		StarvationDeaths: c.deaths[agent.CauseStarvation],
		HazardDeaths:     c.deaths[agent.CauseHazard],
		CollisionDeaths:  c.deaths[agent.CauseCollision],
		MeanFitness:      meanFitness,
	}
}

// Flush is Summary followed by a reset of the counters for the next episode.
func (c *Collector) Flush(generation, agents, ticks, survivors int, meanFitness float64) EpisodeStats {
	stats := c.Summary(generation, agents, ticks, survivors, meanFitness)

	c.food, c.water, c.contacts = 0, 0, 0
	clear(c.deaths)

	return stats
}
