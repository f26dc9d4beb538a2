// Package stall implements the Stall Detector's three independent
// predicates: no-commit stall, consecutive failures, and circular
// (paraphrased-repeat) approaches via Jaccard word-set similarity.
package stall

import (
	"strings"

	"github.com/rasen-dev/rasen/internal/types"
)

// Config holds the thresholds for each predicate.
type Config struct {
	MaxNoCommitSessions    int
	MaxConsecutiveFailures int
	CircularFixThreshold   float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxNoCommitSessions:    3,
		MaxConsecutiveFailures: 5,
		CircularFixThreshold:   0.3,
	}
}

// NoCommitCounter tracks, per subtask, the number of consecutive session
// results with zero commits. The counts live in memory only: the Loop
// Driver keeps one counter for the whole run and feeds it each session
// result, and a restarted process starts again from zero.
type NoCommitCounter struct {
	counts map[string]int
}

// NewNoCommitCounter returns an empty counter.
func NewNoCommitCounter() *NoCommitCounter {
	return &NoCommitCounter{counts: make(map[string]int)}
}

// Observe records one session result's commit count for subtaskID and
// reports whether the no-commit stall threshold has now been reached.
func (c *NoCommitCounter) Observe(subtaskID string, commits int, cfg Config) bool {
	if commits > 0 {
		c.counts[subtaskID] = 0
		return false
	}
	c.counts[subtaskID]++
	threshold := cfg.MaxNoCommitSessions
	if threshold <= 0 {
		threshold = 3
	}
	return c.counts[subtaskID] >= threshold
}

// Count returns the current consecutive no-commit count for subtaskID.
func (c *NoCommitCounter) Count(subtaskID string) int {
	return c.counts[subtaskID]
}

// ConsecutiveFailureCounter tracks, across all subtasks, the number of
// consecutive failed post-session processings.
type ConsecutiveFailureCounter struct {
	count int
}

// Observe records one post-session outcome and reports whether the
// consecutive-failure threshold has now been reached. Any success resets
// the counter to zero.
func (c *ConsecutiveFailureCounter) Observe(success bool, cfg Config) bool {
	if success {
		c.count = 0
		return false
	}
	c.count++
	threshold := cfg.MaxConsecutiveFailures
	if threshold <= 0 {
		threshold = 5
	}
	return c.count >= threshold
}

// Count returns the current consecutive-failure count.
func (c *ConsecutiveFailureCounter) Count() int {
	return c.count
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "from": true, "have": true, "will": true, "are": true,
	"was": true, "were": true, "been": true, "then": true, "than": true,
}

// wordSet tokenizes s into a set of lower-cased words longer than two
// characters, skipping a small stop-word list.
func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) <= 2 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

// Jaccard computes the Jaccard similarity of the word sets of a and b.
func Jaccard(a, b string) float64 {
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// IsCircular reports whether approach is a near-paraphrase of at least two
// of the (up to three) prior approaches: its Jaccard similarity against
// each must be >= threshold for >= 2 of the comparisons to count as
// circular.
func IsCircular(approach string, priorApproaches []string, cfg Config) bool {
	threshold := cfg.CircularFixThreshold
	if threshold <= 0 {
		threshold = 0.3
	}
	recent := priorApproaches
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	matches := 0
	for _, prior := range recent {
		if Jaccard(approach, prior) >= threshold {
			matches++
		}
	}
	return matches >= 2
}

// Verdict is the Stall Detector's combined answer for one subtask at one
// point in the loop.
type Verdict struct {
	Stalled bool
	Reason  types.TerminationReason
}

// Evaluate combines the no-commit and circular-approach predicates for a
// single subtask into one verdict. Consecutive-failure evaluation is
// global rather than per-subtask and is exposed separately via
// ConsecutiveFailureCounter so the orchestrator can compose it across
// subtasks.
func Evaluate(noCommitStalled bool, approach string, priorApproaches []string, cfg Config) Verdict {
	if noCommitStalled {
		return Verdict{Stalled: true, Reason: types.ReasonStalled}
	}
	if approach != "" && IsCircular(approach, priorApproaches, cfg) {
		return Verdict{Stalled: true, Reason: types.ReasonLoopThrashing}
	}
	return Verdict{}
}
