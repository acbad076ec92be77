// Package agent implements the animat: a two-wheeled reactive agent with
// directional sensors, two batteries and a genome-encoded controller.
package agent

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/animat/config"
	"github.com/pthm-cable/animat/genome"
	"github.com/pthm-cable/animat/world"
)

// Params holds the per-animat constants for one world scale.
type Params struct {
	MaxSpeed        float64
	SensorRange     float64
	SideBias        float64
	BatteryMax      float64
	DecayRate       float64
	StuckDistance   float64
	StuckLimit      int
	CollisionDamage float64
	MaxLifespan     int // 0 = unbounded
}

// ParamsFor derives animat parameters for numAgents co-simulated animats.
// Sensor range scales with the world.
func ParamsFor(cfg *config.Config, numAgents int) Params {
	if numAgents < 1 {
		numAgents = 1
	}
	return Params{
		MaxSpeed:        cfg.Animat.MaxSpeed,
		SensorRange:     cfg.Animat.BaseSensorRange * float64(numAgents),
		SideBias:        cfg.Animat.SideBias,
		BatteryMax:      cfg.Battery.Max,
		DecayRate:       cfg.Battery.DecayRate,
		StuckDistance:   cfg.Animat.StuckDistance,
		StuckLimit:      cfg.Animat.StuckLimit,
		CollisionDamage: cfg.Animat.CollisionDamage,
		MaxLifespan:     cfg.Animat.MaxLifespan,
	}
}

// Cause records why an animat died.
type Cause uint8

const (
	CauseNone Cause = iota
	CauseStarvation
	CauseHazard
	CauseCollision
)

func (c Cause) String() string {
	switch c {
	case CauseStarvation:
		return "starvation"
	case CauseHazard:
		return "hazard"
	case CauseCollision:
		return "collision"
	}
	return "none"
}

// Events records what happened to an animat during its last Step.
type Events struct {
	Food         bool
	Water        bool
	PeerContacts int
	Died         Cause
}

// Agent is one animat. It is mutated only by Step and becomes inert once
// dead or once it has lived Params.MaxLifespan ticks.
type Agent struct {
	id     uint32
	params Params
	rng    *rand.Rand
	ctrl   *Controller
	genome genome.Genome

	pos        r2.Vec
	heading    float64
	b1, b2     float64
	alive      bool
	age        int
	stuck      int
	lastPos    r2.Vec
	trajectory []r2.Vec
	sensors    Sensors
	cause      Cause
	last       Events
}

// New creates a live animat at pos with a random heading and full batteries.
// A nil genome is replaced by a random one. A genome of the wrong length is
// rejected with genome.ErrInvalidLength.
func New(id uint32, p Params, g genome.Genome, pos r2.Vec, rng *rand.Rand) (*Agent, error) {
	if g == nil {
		g = genome.Random(rng, genome.Length)
	}
	ctrl, err := NewController(g)
	if err != nil {
		return nil, fmt.Errorf("agent %d: %w", id, err)
	}
	return &Agent{
		id:         id,
		params:     p,
		rng:        rng,
		ctrl:       ctrl,
		genome:     g.Clone(),
		pos:        pos,
		heading:    rng.Float64() * 2 * math.Pi,
		b1:         p.BatteryMax,
		b2:         p.BatteryMax,
		alive:      true,
		lastPos:    pos,
		trajectory: []r2.Vec{pos},
	}, nil
}

// Spawn creates an animat at a uniformly random position in [0, size]².
func Spawn(id uint32, p Params, g genome.Genome, size float64, rng *rand.Rand) (*Agent, error) {
	pos := r2.Vec{X: rng.Float64() * size, Y: rng.Float64() * size}
	return New(id, p, g, pos, rng)
}

// ID returns the animat's identity.
func (a *Agent) ID() uint32 { return a.id }

// Position returns the current position.
func (a *Agent) Position() r2.Vec { return a.pos }

// Heading returns the heading in [0, 2π).
func (a *Agent) Heading() float64 { return a.heading }

// Alive reports whether the animat is alive.
func (a *Agent) Alive() bool { return a.alive }

// Batteries returns both battery levels.
func (a *Agent) Batteries() (b1, b2 float64) { return a.b1, a.b2 }

// Age returns the number of ticks stepped.
func (a *Agent) Age() int { return a.age }

// Genome returns a copy of the animat's genome.
func (a *Agent) Genome() genome.Genome { return a.genome.Clone() }

// Sensors returns the readings from the last Step.
func (a *Agent) Sensors() Sensors { return a.sensors }

// Cause returns why the animat died, or CauseNone.
func (a *Agent) Cause() Cause { return a.cause }

// LastEvents returns what happened during the last Step.
func (a *Agent) LastEvents() Events { return a.last }

// Terminal reports whether further Step calls are no-ops.
func (a *Agent) Terminal() bool {
	return !a.alive || (a.params.MaxLifespan > 0 && a.age >= a.params.MaxLifespan)
}

// Fitness returns the instantaneous score (b1+b2)/(2·max) in [0, 1].
func (a *Agent) Fitness() float64 {
	return (a.b1 + a.b2) / (2 * a.params.BatteryMax)
}

// Step advances the animat one tick against w. peers may be nil; when
// given it should contain every co-simulated animat, including a itself.
func (a *Agent) Step(w *world.World, peers []*Agent) error {
	if a.Terminal() {
		return nil
	}
	a.last = Events{}
	a.age++

	a.sense(w, peers)

	left, right := a.ctrl.WheelSpeeds(&a.sensors, a.b1, a.b2)
	a.move(left, right, w)
	a.checkStuck()

	a.b1 = math.Max(0, a.b1-a.params.DecayRate)
	a.b2 = math.Max(0, a.b2-a.params.DecayRate)
	if a.b1 == 0 && a.b2 == 0 {
		a.die(CauseStarvation)
		return nil
	}

	for _, kind := range world.Kinds {
		obj, hit := w.CheckCollision(a.pos, kind)
		if !hit {
			continue
		}
		switch kind {
		case world.Hazard:
			a.b1, a.b2 = 0, 0
			a.die(CauseHazard)
			return nil
		case world.Food:
			a.b1 = a.params.BatteryMax
			a.last.Food = true
		case world.Water:
			a.b2 = a.params.BatteryMax
			a.last.Water = true
		}
		if _, err := w.Replace(kind, obj); err != nil {
			return fmt.Errorf("agent %d: %w", a.id, err)
		}
	}

	if peers != nil {
		a.collidePeers(w, peers)
	}
	return nil
}

// move integrates one tick of differential-drive motion. The new heading is
// applied before translating; the position is clamped to the arena.
func (a *Agent) move(left, right float64, w *world.World) {
	linear := (left + right) / 2 * a.params.MaxSpeed
	a.heading = normalizeHeading(a.heading + (right-left)*math.Pi/4)

	dir := r2.Vec{X: math.Cos(a.heading), Y: math.Sin(a.heading)}
	a.pos = w.Clamp(r2.Add(a.pos, r2.Scale(linear, dir)))
	a.trajectory = append(a.trajectory, a.pos)
}

// checkStuck randomizes the heading after StuckLimit ticks of negligible motion.
func (a *Agent) checkStuck() {
	if r2.Norm(r2.Sub(a.pos, a.lastPos)) < a.params.StuckDistance {
		a.stuck++
		if a.stuck > a.params.StuckLimit {
			a.heading = a.rng.Float64() * 2 * math.Pi
			a.stuck = 0
		}
	} else {
		a.stuck = 0
	}
	a.lastPos = a.pos
}

// collidePeers drains both batteries once per overlapping live peer. Each
// animat of a colliding pair pays this in its own Step.
func (a *Agent) collidePeers(w *world.World, peers []*Agent) {
	for _, p := range peers {
		if p == a || p.id == a.id || !p.alive {
			continue
		}
		if !w.Collides(a.pos, p.pos) {
			continue
		}
		a.b1 = math.Max(0, a.b1-a.params.CollisionDamage)
		a.b2 = math.Max(0, a.b2-a.params.CollisionDamage)
		a.last.PeerContacts++
	}
	if a.b1 == 0 && a.b2 == 0 {
		a.die(CauseCollision)
	}
}

func (a *Agent) die(cause Cause) {
	a.alive = false
	a.cause = cause
	a.last.Died = cause
	slog.Debug("animat died", "id", a.id, "cause", cause.String(), "age", a.age)
}

// Snapshot is a read-only copy of an animat's observable state.
type Snapshot struct {
	ID         uint32
	Position   r2.Vec
	Heading    float64
	B1, B2     float64
	Alive      bool
	Age        int
	Trajectory []r2.Vec
}

// Snapshot copies the animat's observable state.
func (a *Agent) Snapshot() Snapshot {
	traj := make([]r2.Vec, len(a.trajectory))
	copy(traj, a.trajectory)
	return Snapshot{
		ID:         a.id,
		Position:   a.pos,
		Heading:    a.heading,
		B1:         a.b1,
		B2:         a.b2,
		Alive:      a.alive,
		Age:        a.age,
		Trajectory: traj,
	}
}
