package telemetry

import "log/slog"

// LifetimeStats is the record of one animat's life in an episode.
type LifetimeStats struct {
	Generation int    `csv:"generation"`
	AgentID    uint32 `csv:"agent_id"`
	Order      int    `csv:"order"`

	Ticks    int `csv:"ticks"`
	Food     int `csv:"food"`
	Water    int `csv:"water"`
	Contacts int `csv:"contacts"`

	Alive       bool    `csv:"alive"`
	Cause       string  `csv:"cause"`
	MeanFitness float64 `csv:"mean_fitness"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s LifetimeStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("agent_id", s.AgentID),
		slog.Int("ticks", s.Ticks),
		slog.Int("food", s.Food),
		slog.Int("water", s.Water),
		slog.Int("contacts", s.Contacts),
		slog.String("cause", s.Cause),
		slog.Float64("mean_fitness", s.MeanFitness),
	)
}
