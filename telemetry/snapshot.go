package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pthm-cable/animat/genome"
)

// CheckpointVersion is incremented when the format changes.
const CheckpointVersion = 1

// ErrCheckpointVersion is returned when loading a checkpoint written by an
// incompatible version.
var ErrCheckpointVersion = errors.New("telemetry: unsupported checkpoint version")

// Checkpoint holds everything needed to resume an evolution run.
type Checkpoint struct {
	Version    int   `json:"version"`
	Seed       int64 `json:"seed"`
	Generation int   `json:"generation"`

	Population []genome.Genome   `json:"population"`
	History    []GenerationStats `json:"history"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// Validate checks the version and every genome.
func (cp *Checkpoint) Validate() error {
	if cp.Version != CheckpointVersion {
		return fmt.Errorf("%w: %d", ErrCheckpointVersion, cp.Version)
	}
	for i, g := range cp.Population {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("checkpoint genome %d: %w", i, err)
		}
	}
	return nil
}

// SaveCheckpoint writes a checkpoint to dir and returns its path.
func SaveCheckpoint(cp *Checkpoint, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}

	name := fmt.Sprintf("checkpoint_%d", cp.Generation)
	if cp.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(cp.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("checkpoint_%d_%s", cp.Generation, sanitized)
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	return path, nil
}

// LoadCheckpoint reads and validates a checkpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return &cp, nil
}
