package world

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/animat/config"
)

func testParams() Params {
	return Params{
		Size:        200,
		Padding:     10,
		ContactDist: 21,
		AgentRadius: 5,
		Food:        3,
		Water:       3,
		Hazards:     3,
	}
}

func newTestWorld(seed int64) *World {
	return New(testParams(), rand.New(rand.NewSource(seed)))
}

func inPaddedBounds(p r2.Vec, params Params) bool {
	lo, hi := params.Padding, params.Size-params.Padding
	return p.X >= lo && p.X <= hi && p.Y >= lo && p.Y <= hi
}

func TestParamsForScalesWithAgents(t *testing.T) {
	cfg := config.Default()

	one := ParamsFor(cfg, 1)
	four := ParamsFor(cfg, 4)

	if four.Size != 4*one.Size {
		t.Errorf("size = %v, want %v", four.Size, 4*one.Size)
	}
	if four.Food != 4*one.Food || four.Water != 4*one.Water || four.Hazards != 4*one.Hazards {
		t.Errorf("counts did not scale: %+v vs %+v", four, one)
	}
	if four.Padding != one.Padding {
		t.Errorf("padding should not scale: %v vs %v", four.Padding, one.Padding)
	}
}

func TestResetSamplesWithinPadding(t *testing.T) {
	w := newTestWorld(1)
	for _, kind := range Kinds {
		objs := w.Objects(kind)
		if len(objs) != 3 {
			t.Errorf("%s count = %d, want 3", kind, len(objs))
		}
		for _, p := range objs {
			if !inPaddedBounds(p, w.Params()) {
				t.Errorf("%s at %v outside padded bounds", kind, p)
			}
		}
	}

	before := w.Objects(Food)
	w.Reset()
	after := w.Objects(Food)
	if before[0] == after[0] {
		t.Error("Reset should resample positions")
	}
}

func TestNearest(t *testing.T) {
	w := newTestWorld(1)
	w.pools[Food] = []r2.Vec{{X: 100, Y: 100}, {X: 60, Y: 50}, {X: 40, Y: 50}}

	got, dist, ok := w.Nearest(r2.Vec{X: 50, Y: 50}, Food)
	if !ok {
		t.Fatal("expected a nearest food")
	}
	// Tie between (60,50) and (40,50): first in pool order wins
	if got != (r2.Vec{X: 60, Y: 50}) {
		t.Errorf("nearest = %v, want (60,50)", got)
	}
	if math.Abs(dist-10) > 1e-12 {
		t.Errorf("dist = %v, want 10", dist)
	}

	// Pure: same inputs, same outputs
	got2, dist2, ok2 := w.Nearest(r2.Vec{X: 50, Y: 50}, Food)
	if got2 != got || dist2 != dist || ok2 != ok {
		t.Error("Nearest should be a pure function of world state")
	}
}

func TestNearestEmptyPool(t *testing.T) {
	w := newTestWorld(1)
	w.pools[Water] = nil

	_, dist, ok := w.Nearest(r2.Vec{X: 50, Y: 50}, Water)
	if ok {
		t.Error("empty pool should report no object")
	}
	if !math.IsInf(dist, 1) {
		t.Errorf("dist = %v, want +Inf", dist)
	}

	// Peer has no stored pool
	if _, dist, ok := w.Nearest(r2.Vec{}, Peer); ok || !math.IsInf(dist, 1) {
		t.Errorf("Nearest(Peer) = (%v, %v), want none", dist, ok)
	}
}

func TestCheckCollisionAndReplace(t *testing.T) {
	w := newTestWorld(7)
	food := r2.Vec{X: 51, Y: 50}
	w.pools[Food] = []r2.Vec{food}

	got, hit := w.CheckCollision(r2.Vec{X: 50, Y: 50}, Food)
	if !hit || got != food {
		t.Fatalf("CheckCollision = (%v, %v), want (%v, true)", got, hit, food)
	}

	fresh, err := w.Replace(Food, food)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if w.Count(Food) != 1 {
		t.Errorf("food count = %d, want 1", w.Count(Food))
	}
	if fresh == food {
		t.Error("replacement should be a new position")
	}
	if !inPaddedBounds(fresh, w.Params()) {
		t.Errorf("replacement %v outside padded bounds", fresh)
	}
	for _, p := range w.Objects(Food) {
		if p == food {
			t.Error("consumed position still in pool")
		}
	}
}

func TestCheckCollisionOrder(t *testing.T) {
	w := newTestWorld(1)
	w.pools[Hazard] = []r2.Vec{{X: 60, Y: 50}, {X: 51, Y: 50}}

	got, hit := w.CheckCollision(r2.Vec{X: 50, Y: 50}, Hazard)
	if !hit || got != (r2.Vec{X: 60, Y: 50}) {
		t.Errorf("CheckCollision = (%v, %v), want first in pool order", got, hit)
	}

	if _, hit := w.CheckCollision(r2.Vec{X: 150, Y: 150}, Hazard); hit {
		t.Error("distant position should not collide")
	}
}

func TestReplaceErrors(t *testing.T) {
	w := newTestWorld(1)

	hazards := w.Objects(Hazard)
	if _, err := w.Replace(Hazard, hazards[0]); !errors.Is(err, ErrNotReplenishable) {
		t.Errorf("Replace(Hazard) = %v, want ErrNotReplenishable", err)
	}
	if w.Count(Hazard) != 3 {
		t.Errorf("hazard pool changed: %d", w.Count(Hazard))
	}

	before := w.Objects(Water)
	if _, err := w.Replace(Water, r2.Vec{X: -1, Y: -1}); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("Replace(unknown) = %v, want ErrUnknownObject", err)
	}
	after := w.Objects(Water)
	for i := range before {
		if before[i] != after[i] {
			t.Error("failed Replace must not mutate the pool")
		}
	}
}

func TestCollidesSymmetric(t *testing.T) {
	w := newTestWorld(1)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		a := r2.Vec{X: rng.Float64() * 30, Y: rng.Float64() * 30}
		b := r2.Vec{X: rng.Float64() * 30, Y: rng.Float64() * 30}
		if w.Collides(a, b) != w.Collides(b, a) {
			t.Fatalf("Collides not symmetric for %v, %v", a, b)
		}
	}

	if !w.Collides(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 9.9, Y: 0}) {
		t.Error("bodies 9.9 apart should collide with radius 5")
	}
	if w.Collides(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 10, Y: 0}) {
		t.Error("bodies exactly 10 apart should not collide")
	}
}

func TestClamp(t *testing.T) {
	w := newTestWorld(1)
	got := w.Clamp(r2.Vec{X: -5, Y: 250})
	if got != (r2.Vec{X: 0, Y: 200}) {
		t.Errorf("Clamp = %v, want (0,200)", got)
	}
}

type stubPeer struct {
	id    uint32
	pos   r2.Vec
	alive bool
}

func (p stubPeer) ID() uint32       { return p.id }
func (p stubPeer) Position() r2.Vec { return p.pos }
func (p stubPeer) Alive() bool      { return p.alive }

var _ Body = stubPeer{}

func TestNearestPeer(t *testing.T) {
	peers := []stubPeer{
		{id: 1, pos: r2.Vec{X: 50, Y: 50}, alive: true},  // self
		{id: 2, pos: r2.Vec{X: 52, Y: 50}, alive: false}, // dead
		{id: 3, pos: r2.Vec{X: 80, Y: 50}, alive: true},
		{id: 4, pos: r2.Vec{X: 50, Y: 70}, alive: true},
	}

	got, dist, ok := NearestPeer(1, r2.Vec{X: 50, Y: 50}, peers)
	if !ok || got != (r2.Vec{X: 50, Y: 70}) || dist != 20 {
		t.Errorf("NearestPeer = (%v, %v, %v), want ((50,70), 20, true)", got, dist, ok)
	}

	_, dist, ok = NearestPeer(1, r2.Vec{X: 50, Y: 50}, peers[:2])
	if ok || !math.IsInf(dist, 1) {
		t.Errorf("NearestPeer with only self and dead = (%v, %v), want none", dist, ok)
	}
}
