// Package telemetry provides fitness statistics, episode event counting,
// a hall of fame, checkpoints and CSV experiment output.
package telemetry

import "github.com/pthm-cable/animat/agent"

// EventType identifies telemetry events.
type EventType uint8

const (
	EventFood EventType = iota
	EventWater
	EventContact
	EventDeath
)

// Event represents a single thing that happened to one animat during a tick.
type Event struct {
	Type    EventType
	Tick    int
	AgentID uint32

	Contacts int         // peers touched, for contact events
	Cause    agent.Cause // for death events
}

// AppendEvents converts the outcome of one animat's Step into events.
func AppendEvents(dst []Event, tick int, id uint32, ev agent.Events) []Event {
	if ev.Food {
		dst = append(dst, Event{Type: EventFood, Tick: tick, AgentID: id})
	}
	if ev.Water {
		dst = append(dst, Event{Type: EventWater, Tick: tick, AgentID: id})
	}
	if ev.PeerContacts > 0 {
		dst = append(dst, Event{Type: EventContact, Tick: tick, AgentID: id, Contacts: ev.PeerContacts})
	}
	if ev.Died != agent.CauseNone {
		dst = append(dst, Event{Type: EventDeath, Tick: tick, AgentID: id, Cause: ev.Died})
	}
	return dst
}
