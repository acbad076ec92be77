package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pthm-cable/animat/genome"
)

// HallEntry is one genome that scored well in some generation.
type HallEntry struct {
	Genome     genome.Genome `json:"genome"`
	Fitness    float64       `json:"fitness"`
	Generation int           `json:"generation"`
}

// HallOfFame keeps the best distinct genomes seen across a run, sorted by
// descending recorded fitness.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
}

// NewHallOfFame creates a hall holding at most maxSize entries.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Consider offers a genome to the hall. It returns true if the genome was
// added or its recorded fitness improved. A genome already present is never
// duplicated.
func (hof *HallOfFame) Consider(g genome.Genome, fitness float64, generation int) bool {
	for i := range hof.entries {
		if !hof.entries[i].Genome.Equal(g) {
			continue
		}
		if fitness <= hof.entries[i].Fitness {
			return false
		}
		hof.entries = append(hof.entries[:i], hof.entries[i+1:]...)
		break
	}

	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].Fitness < fitness
	})
	if idx >= hof.maxSize {
		return false
	}

	entry := HallEntry{Genome: g.Clone(), Fitness: fitness, Generation: generation}
	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry

	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}
	return true
}

// Size returns the number of entries.
func (hof *HallOfFame) Size() int {
	return len(hof.entries)
}

// Best returns the highest-fitness entry.
func (hof *HallOfFame) Best() (HallEntry, bool) {
	if len(hof.entries) == 0 {
		return HallEntry{}, false
	}
	return hof.entries[0], true
}

// Entries returns a copy of the hall, best first.
func (hof *HallOfFame) Entries() []HallEntry {
	out := make([]HallEntry, len(hof.entries))
	for i, e := range hof.entries {
		out[i] = HallEntry{Genome: e.Genome.Clone(), Fitness: e.Fitness, Generation: e.Generation}
	}
	return out
}

// Genomes returns copies of the stored genomes, best first.
func (hof *HallOfFame) Genomes() []genome.Genome {
	out := make([]genome.Genome, len(hof.entries))
	for i, e := range hof.entries {
		out[i] = e.Genome.Clone()
	}
	return out
}

// MarshalJSON serializes the hall as a list of entries.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(hof.entries, "", "  ")
}

// LoadHallOfFameFromFile reads a hall written by MarshalJSON. Entries whose
// genome fails validation are rejected.
func LoadHallOfFameFromFile(path string, maxSize int) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var entries []HallEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(max(maxSize, len(entries)))
	for i, e := range entries {
		if err := e.Genome.Validate(); err != nil {
			return nil, fmt.Errorf("hall of fame entry %d: %w", i, err)
		}
		hof.Consider(e.Genome, e.Fitness, e.Generation)
	}
	return hof, nil
}
