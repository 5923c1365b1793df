package errtrack

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lanemc/observability-kit/internal/domain"
)

const (
	maxNormalizedLength = 100
	maxPatternExamples  = 3
)

var (
	// Path-like substrings, optionally with :line:col suffixes.
	pathPattern = regexp.MustCompile(`(?:/[\w.\-]+)+(?::\d+(?::\d+)?)?`)
	// Long hex runs: ids, hashes, addresses.
	hexPattern = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)
	numPattern = regexp.MustCompile(`\d+`)
)

// Normalize collapses the variable parts of an error message so recurring
// errors that differ only in paths, line numbers, ids, or addresses map to
// one pattern. The substitution order matters: paths first (they contain
// digits), then hex runs, then bare digit runs.
func Normalize(message string) string {
	msg := pathPattern.ReplaceAllString(message, "<path>")
	msg = hexPattern.ReplaceAllString(msg, "<hex>")
	msg = numPattern.ReplaceAllString(msg, "<num>")
	msg = strings.ToLower(msg)
	if runes := []rune(msg); len(runes) > maxNormalizedLength {
		msg = string(runes[:maxNormalizedLength])
	}
	return msg
}

// PatternKey classifies a record into its deduplication key.
func PatternKey(rec domain.ErrorRecord) string {
	return rec.Type + ":" + rec.Name + ":" + Normalize(rec.Message)
}

// Matcher deduplicates error occurrences into named patterns.
type Matcher struct {
	mu       sync.Mutex
	patterns map[string]*domain.ErrorPattern
	order    []string
	now      func() time.Time
}

// NewMatcher constructs a Matcher. A nil clock uses the wall clock.
func NewMatcher(now func() time.Time) *Matcher {
	if now == nil {
		now = time.Now
	}
	return &Matcher{
		patterns: make(map[string]*domain.ErrorPattern),
		now:      now,
	}
}

// Record folds one error occurrence into its pattern, creating the pattern
// on first sight. Examples are a capped illustrative sample.
func (m *Matcher) Record(rec domain.ErrorRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := PatternKey(rec)
	pattern, ok := m.patterns[key]
	if !ok {
		m.patterns[key] = &domain.ErrorPattern{
			Key:       key,
			Type:      rec.Type,
			Name:      rec.Name,
			Message:   Normalize(rec.Message),
			Severity:  rec.Severity,
			FirstSeen: now,
			LastSeen:  now,
			Count:     1,
			Examples:  []domain.ErrorRecord{rec},
		}
		m.order = append(m.order, key)
		return
	}
	pattern.Count++
	pattern.LastSeen = now
	pattern.Severity = rec.Severity
	if len(pattern.Examples) < maxPatternExamples {
		pattern.Examples = append(pattern.Examples, rec)
	}
}

// Top returns up to n patterns ordered by count descending. Ties keep the
// original insertion order.
func (m *Matcher) Top(n int) []domain.ErrorPattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snapshotLocked()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Recent returns up to n patterns ordered by last occurrence, newest first.
func (m *Matcher) Recent(n int) []domain.ErrorPattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snapshotLocked()
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Cleanup removes every pattern whose last occurrence precedes now-maxAge
// and reports how many were removed. Irreversible.
func (m *Matcher) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	kept := m.order[:0]
	removed := 0
	for _, key := range m.order {
		if m.patterns[key].LastSeen.Before(cutoff) {
			delete(m.patterns, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
	return removed
}

// Len reports the number of live patterns.
func (m *Matcher) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patterns)
}

// snapshotLocked copies patterns in insertion order.
func (m *Matcher) snapshotLocked() []domain.ErrorPattern {
	out := make([]domain.ErrorPattern, 0, len(m.order))
	for _, key := range m.order {
		pattern := *m.patterns[key]
		pattern.Examples = append([]domain.ErrorRecord(nil), pattern.Examples...)
		out = append(out, pattern)
	}
	return out
}
