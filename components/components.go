// Package components defines ECS components for the episode runner.
package components

import (
	"github.com/pthm-cable/animat/agent"
	"github.com/pthm-cable/animat/telemetry"
)

// Animat attaches a simulated animat to an entity. Order is the animat's
// fixed position in the per-tick update sequence.
type Animat struct {
	Agent *agent.Agent
	Order int
}

// Lifetime accumulates what happened to one animat over an episode.
type Lifetime struct {
	Generation int
	Ticks      int
	Food       int
	Water      int
	Contacts   int
	FitnessSum float64
	Cause      agent.Cause
}

// Observe folds one stepped tick into the record. Ticks skipped because the
// animat was already terminal must not be observed.
func (l *Lifetime) Observe(ev agent.Events, fitness float64) {
	l.Ticks++
	l.FitnessSum += fitness
	if ev.Food {
		l.Food++
	}
	if ev.Water {
		l.Water++
	}
	l.Contacts += ev.PeerContacts
	if ev.Died != agent.CauseNone {
		l.Cause = ev.Died
	}
}

// MeanFitness returns the average per-tick fitness, or 0 before any tick.
func (l *Lifetime) MeanFitness() float64 {
	if l.Ticks == 0 {
		return 0
	}
	return l.FitnessSum / float64(l.Ticks)
}

// Stats converts the record for CSV output.
func (l *Lifetime) Stats(a *Animat) telemetry.LifetimeStats {
	return telemetry.LifetimeStats{
		Generation:  l.Generation,
		AgentID:     a.Agent.ID(),
		Order:       a.Order,
		Ticks:       l.Ticks,
		Food:        l.Food,
		Water:       l.Water,
		Contacts:    l.Contacts,
		Alive:       a.Agent.Alive(),
		Cause:       l.Cause.String(),
		MeanFitness: l.MeanFitness(),
	}
}
