package agent

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/animat/world"
)

// Channel indexes a sensor reading. The order is also the genome slot order.
type Channel uint8

const (
	FoodLeft Channel = iota
	FoodRight
	WaterLeft
	WaterRight
	HazardLeft
	HazardRight
	PeerLeft
	PeerRight
	Reserved // Genome slot carried but never sensed or wired to a wheel
)

// NumSensors is the number of live directional sensors. genome.NumSlots is
// one larger: the last slot is Reserved.
const NumSensors = int(Reserved)

var channelNames = [...]string{
	"food_left", "food_right",
	"water_left", "water_right",
	"hazard_left", "hazard_right",
	"peer_left", "peer_right",
	"reserved",
}

func (c Channel) String() string {
	if int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// Sensors holds one reading per live channel, each >= 0.
type Sensors [NumSensors]float64

// Map returns the readings keyed by channel name.
func (s *Sensors) Map() map[string]float64 {
	m := make(map[string]float64, NumSensors)
	for i, v := range s {
		m[Channel(i).String()] = v
	}
	return m
}

// channelPair returns the left/right channels for a sensed kind.
func channelPair(kind world.Kind) (Channel, Channel) {
	switch kind {
	case world.Food:
		return FoodLeft, FoodRight
	case world.Water:
		return WaterLeft, WaterRight
	case world.Hazard:
		return HazardLeft, HazardRight
	default:
		return PeerLeft, PeerRight
	}
}

// sense recomputes every reading against w and the peer list.
func (a *Agent) sense(w *world.World, peers []*Agent) {
	for _, kind := range world.Kinds {
		target, dist, ok := w.Nearest(a.pos, kind)
		a.senseTarget(kind, target, dist, ok)
	}
	target, dist, ok := world.NearestPeer(a.id, a.pos, peers)
	a.senseTarget(world.Peer, target, dist, ok)
}

// senseTarget writes the left/right readings for one target. The side the
// target lies on reads SideBias times stronger.
func (a *Agent) senseTarget(kind world.Kind, target r2.Vec, dist float64, ok bool) {
	left, right := channelPair(kind)
	a.sensors[left], a.sensors[right] = 0, 0
	if !ok || dist >= a.params.SensorRange {
		return
	}

	d := r2.Sub(target, a.pos)
	bearing := normalizeHeading(math.Atan2(d.Y, d.X) - a.heading)
	magnitude := math.Max(0, 100*(1-dist/a.params.SensorRange))

	if bearing < math.Pi {
		a.sensors[left] = magnitude * a.params.SideBias
		a.sensors[right] = magnitude
	} else {
		a.sensors[left] = magnitude
		a.sensors[right] = magnitude * a.params.SideBias
	}
}
