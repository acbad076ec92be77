package world

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Body is another animat as seen by a sensing animat.
type Body interface {
	ID() uint32
	Position() r2.Vec
	Alive() bool
}

// NearestPeer returns the closest live peer to pos, skipping the peer whose
// ID is self. ok is false and dist is +Inf when no other live peer exists.
func NearestPeer[P Body](self uint32, pos r2.Vec, peers []P) (nearest r2.Vec, dist float64, ok bool) {
	dist = math.Inf(1)
	for _, p := range peers {
		if p.ID() == self || !p.Alive() {
			continue
		}
		q := p.Position()
		if d := r2.Norm(r2.Sub(q, pos)); d < dist {
			dist = d
			nearest = q
			ok = true
		}
	}
	return nearest, dist, ok
}
