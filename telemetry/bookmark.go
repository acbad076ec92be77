package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkNewRecord  BookmarkType = "new_record"
	BookmarkStagnation BookmarkType = "stagnation"
	BookmarkCollapse   BookmarkType = "collapse"
	BookmarkConverged  BookmarkType = "converged"
)

// Bookmark marks a generation worth looking at.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Generation  int          `csv:"generation" json:"generation"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"generation", b.Generation,
		"description", b.Description,
	)
}

// Thresholds for bookmark detection.
const (
	recordMargin      = 0.02 // relative gain over the previous record
	collapseDrop      = 0.30 // relative drop of avg below the rolling mean
	convergedSpread   = 0.01 // std/avg below which the population has converged
	stagnationMinimum = 5
)

// BookmarkDetector watches generation statistics for records, stagnation,
// collapses and convergence.
type BookmarkDetector struct {
	history     []GenerationStats
	historySize int
	historyIdx  int
	historyFull bool

	record          float64
	haveRecord      bool
	sinceRecord     int
	stagnationFired bool
	convergedFired  bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < stagnationMinimum {
		historySize = stagnationMinimum
	}
	return &BookmarkDetector{
		history:     make([]GenerationStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats GenerationStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkRecord(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkStagnation(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkCollapse(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkConverged(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats GenerationStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []GenerationStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkRecord fires when the best fitness beats the previous record by
// more than recordMargin. The first generation only seeds the record.
func (bd *BookmarkDetector) checkRecord(stats GenerationStats) *Bookmark {
	if !bd.haveRecord {
		bd.record, bd.haveRecord = stats.Best, true
		return nil
	}
	if stats.Best <= bd.record {
		bd.sinceRecord++
		return nil
	}

	old := bd.record
	bd.record = stats.Best
	bd.sinceRecord = 0
	bd.stagnationFired = false
	if stats.Best <= old*(1+recordMargin) {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkNewRecord,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("Best fitness %.4f beats previous record %.4f", stats.Best, old),
	}
}

// checkStagnation fires once when no record has been set for historySize
// generations.
func (bd *BookmarkDetector) checkStagnation(stats GenerationStats) *Bookmark {
	if bd.stagnationFired || bd.sinceRecord < bd.historySize {
		return nil
	}
	bd.stagnationFired = true
	return &Bookmark{
		Type:        BookmarkStagnation,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("No improvement on %.4f for %d generations", bd.record, bd.sinceRecord),
	}
}

// checkCollapse fires when average fitness drops well below its rolling mean.
func (bd *BookmarkDetector) checkCollapse(stats GenerationStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var sum float64
	for _, h := range history {
		sum += h.Avg
	}
	mean := sum / float64(len(history))
	if mean <= 0 || stats.Avg >= mean*(1-collapseDrop) {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkCollapse,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("Average fitness %.4f dropped %.0f%% below rolling mean %.4f", stats.Avg, (1-stats.Avg/mean)*100, mean),
	}
}

// checkConverged fires once when the population's fitness spread collapses.
func (bd *BookmarkDetector) checkConverged(stats GenerationStats) *Bookmark {
	if bd.convergedFired || stats.Avg <= 0 || stats.Population < 2 {
		return nil
	}
	if stats.Std/stats.Avg >= convergedSpread {
		return nil
	}
	bd.convergedFired = true
	return &Bookmark{
		Type:        BookmarkConverged,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("Fitness spread %.4f around mean %.4f", stats.Std, stats.Avg),
	}
}
