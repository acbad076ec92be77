package agent

import (
	"math"
	"sync/atomic"
)

const twoPi = 2 * math.Pi

// normalizeHeading wraps a heading to [0, 2π).
func normalizeHeading(h float64) float64 {
	h = math.Mod(h, twoPi)
	if h < 0 {
		h += twoPi
	}
	if h >= twoPi {
		h = 0
	}
	return h
}

// IDAllocator hands out animat identities. It is owned by whatever creates
// animats and is safe for concurrent use.
type IDAllocator struct {
	next atomic.Uint32
}

// Next returns the next identity, starting at 1.
func (a *IDAllocator) Next() uint32 {
	return a.next.Add(1)
}
