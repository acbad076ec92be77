// Package world holds the arena shared by animats: food, water and hazard
// positions, nearest-neighbour and contact queries, and replenishment.
package world

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/animat/config"
)

// Kind identifies a class of object an animat can sense.
type Kind uint8

const (
	Food Kind = iota
	Water
	Hazard
	Peer // Other animats, supplied by the caller per query
)

// numPools is the number of object kinds the world stores itself.
const numPools = 3

// Kinds lists the stored object kinds in collision order.
var Kinds = [numPools]Kind{Food, Water, Hazard}

func (k Kind) String() string {
	switch k {
	case Food:
		return "food"
	case Water:
		return "water"
	case Hazard:
		return "hazard"
	case Peer:
		return "peer"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var (
	// ErrNotReplenishable is returned when replacing a kind that is never replenished.
	ErrNotReplenishable = errors.New("world: kind is not replenishable")
	// ErrUnknownObject is returned when the object to replace is not in its pool.
	ErrUnknownObject = errors.New("world: object not in pool")
)

// Params holds the scaled dimensions of one world.
type Params struct {
	Size        float64 // Side length of the square arena
	Padding     float64
	ContactDist float64 // Source radius + animat radius
	AgentRadius float64
	Food        int
	Water       int
	Hazards     int
}

// ParamsFor scales the configured base world to numAgents co-simulated
// animats, keeping object density constant.
func ParamsFor(cfg *config.Config, numAgents int) Params {
	if numAgents < 1 {
		numAgents = 1
	}
	n := float64(numAgents)
	return Params{
		Size:        cfg.World.BaseSize * n,
		Padding:     cfg.World.Padding,
		ContactDist: cfg.Derived.ContactDist,
		AgentRadius: cfg.Animat.Radius,
		Food:        cfg.World.BaseFood * numAgents,
		Water:       cfg.World.BaseWater * numAgents,
		Hazards:     cfg.World.BaseHazards * numAgents,
	}
}

// World is a square arena of side Size holding three object pools.
// It never stores animats; peers are passed to queries that need them.
type World struct {
	params Params
	rng    *rand.Rand
	pools  [numPools][]r2.Vec
}

// New creates a world and samples its initial objects from rng.
func New(p Params, rng *rand.Rand) *World {
	w := &World{params: p, rng: rng}
	w.Reset()
	return w
}

// Params returns the world's dimensions.
func (w *World) Params() Params {
	return w.params
}

// Size returns the arena side length.
func (w *World) Size() float64 {
	return w.params.Size
}

// Reset resamples every food, water and hazard position.
func (w *World) Reset() {
	counts := [numPools]int{w.params.Food, w.params.Water, w.params.Hazards}
	for i, n := range counts {
		pool := make([]r2.Vec, n)
		for j := range pool {
			pool[j] = w.sample()
		}
		w.pools[i] = pool
	}
}

// sample draws a position uniformly within [padding, size-padding]².
func (w *World) sample() r2.Vec {
	lo := w.params.Padding
	span := w.params.Size - 2*lo
	if span < 0 {
		span = 0
	}
	return r2.Vec{
		X: lo + w.rng.Float64()*span,
		Y: lo + w.rng.Float64()*span,
	}
}

func (w *World) pool(kind Kind) []r2.Vec {
	if kind >= numPools {
		return nil
	}
	return w.pools[kind]
}

// Objects returns a copy of the positions of the given kind in pool order.
func (w *World) Objects(kind Kind) []r2.Vec {
	pool := w.pool(kind)
	out := make([]r2.Vec, len(pool))
	copy(out, pool)
	return out
}

// Count returns the number of objects of the given kind.
func (w *World) Count(kind Kind) int {
	return len(w.pool(kind))
}

// Nearest returns the closest object of kind to pos and its distance.
// ok is false and dist is +Inf when the pool is empty. Ties keep the
// earliest object in pool order. Peer has no stored pool; use NearestPeer.
func (w *World) Nearest(pos r2.Vec, kind Kind) (nearest r2.Vec, dist float64, ok bool) {
	return nearestOf(pos, w.pool(kind))
}

func nearestOf(pos r2.Vec, pool []r2.Vec) (r2.Vec, float64, bool) {
	var nearest r2.Vec
	best := math.Inf(1)
	found := false
	for _, p := range pool {
		d := r2.Norm(r2.Sub(p, pos))
		if d < best {
			best = d
			nearest = p
			found = true
		}
	}
	return nearest, best, found
}

// CheckCollision returns the first object of kind, in pool order, whose
// centre lies closer to pos than the contact distance.
func (w *World) CheckCollision(pos r2.Vec, kind Kind) (r2.Vec, bool) {
	for _, p := range w.pool(kind) {
		if r2.Norm(r2.Sub(p, pos)) < w.params.ContactDist {
			return p, true
		}
	}
	return r2.Vec{}, false
}

// Replace removes old from the food or water pool and appends a freshly
// sampled position, which it returns. The pool size never changes.
func (w *World) Replace(kind Kind, old r2.Vec) (r2.Vec, error) {
	if kind != Food && kind != Water {
		return r2.Vec{}, fmt.Errorf("replace %s: %w", kind, ErrNotReplenishable)
	}
	pool := w.pools[kind]
	idx := -1
	for i, p := range pool {
		if p == old {
			idx = i
			break
		}
	}
	if idx < 0 {
		return r2.Vec{}, fmt.Errorf("replace %s at (%.3f, %.3f): %w", kind, old.X, old.Y, ErrUnknownObject)
	}

	fresh := w.sample()
	pool = append(pool[:idx], pool[idx+1:]...)
	w.pools[kind] = append(pool, fresh)
	return fresh, nil
}

// Collides reports whether two animat bodies overlap.
func (w *World) Collides(a, b r2.Vec) bool {
	return r2.Norm(r2.Sub(a, b)) < 2*w.params.AgentRadius
}

// Clamp bounds pos component-wise to [0, Size].
func (w *World) Clamp(pos r2.Vec) r2.Vec {
	return r2.Vec{
		X: clamp(pos.X, 0, w.params.Size),
		Y: clamp(pos.Y, 0, w.params.Size),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
