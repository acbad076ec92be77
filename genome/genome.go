// Package genome defines the fixed-length integer genome that encodes an
// animat's sensorimotor links.
package genome

import (
	"errors"
	"fmt"
	"math/rand"
)

// Genome layout.
const (
	LinkParams = 9   // Parameters per sensorimotor link
	NumSlots   = 9   // Link slots encoded in a genome
	Length     = 83  // LinkParams*NumSlots + 2 wheel thresholds
	MaxGene    = 99  // Genes lie in [0, MaxGene]
	geneValues = 100 // MaxGene + 1
)

// ErrInvalidLength is returned when a genome does not have Length genes.
var ErrInvalidLength = errors.New("genome: invalid length")

// ErrGeneRange is returned when a gene lies outside [0, MaxGene].
var ErrGeneRange = errors.New("genome: gene out of range")

// Genome is an ordered sequence of genes in [0, MaxGene].
type Genome []int

// Random returns a genome of n genes drawn uniformly from [0, MaxGene].
func Random(rng *rand.Rand, n int) Genome {
	g := make(Genome, n)
	for i := range g {
		g[i] = RandomGene(rng)
	}
	return g
}

// RandomGene draws a single gene uniformly from [0, MaxGene].
func RandomGene(rng *rand.Rand) int {
	return rng.Intn(geneValues)
}

// Validate checks length and gene range.
func (g Genome) Validate() error {
	if len(g) != Length {
		return fmt.Errorf("%w: got %d genes, want %d", ErrInvalidLength, len(g), Length)
	}
	for i, v := range g {
		if v < 0 || v > MaxGene {
			return fmt.Errorf("%w: gene %d = %d", ErrGeneRange, i, v)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (g Genome) Clone() Genome {
	if g == nil {
		return nil
	}
	cp := make(Genome, len(g))
	copy(cp, g)
	return cp
}

// Link returns the LinkParams genes of slot i.
func (g Genome) Link(i int) []int {
	start := i * LinkParams
	return g[start : start+LinkParams]
}

// Thresholds returns the raw left and right wheel threshold genes.
func (g Genome) Thresholds() (left, right int) {
	return g[len(g)-2], g[len(g)-1]
}

// Equal reports whether two genomes carry the same genes.
func (g Genome) Equal(other Genome) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if g[i] != other[i] {
			return false
		}
	}
	return true
}
