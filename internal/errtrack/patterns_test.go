package errtrack

import (
	"strings"
	"testing"
	"time"

	"github.com/lanemc/observability-kit/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"path with line and column",
			"Cannot read X at /app/foo.js:42:7",
			"cannot read x at <path>",
		},
		{
			"bare path",
			"ENOENT: no such file /var/data/input.csv",
			"enoent: no such file <path>",
		},
		{
			"digit runs",
			"timeout after 3000 ms on attempt 7",
			"timeout after <num> ms on attempt <num>",
		},
		{
			"hex run",
			"session deadbeef4242cafe expired",
			"session <hex> expired",
		},
		{
			"short hex stays",
			"code ab12 rejected",
			"code ab<num> rejected",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeDeterministicAndTruncated(t *testing.T) {
	msg := "failed at /srv/app/handler.go:10:2 with id 123456"
	if Normalize(msg) != Normalize(msg) {
		t.Fatalf("normalization must be deterministic")
	}
	long := strings.Repeat("x", 500)
	if got := Normalize(long); len([]rune(got)) != 100 {
		t.Fatalf("expected truncation to 100 characters, got %d", len([]rune(got)))
	}
}

func TestPatternCollapse(t *testing.T) {
	m := NewMatcher(nil)
	m.Record(domain.ErrorRecord{Type: "exception", Name: "TypeError", Message: "Cannot read X at /app/foo.js:42:7"})
	m.Record(domain.ErrorRecord{Type: "exception", Name: "TypeError", Message: "Cannot read X at /app/bar.js:99:3"})

	if m.Len() != 1 {
		t.Fatalf("expected messages to collapse into one pattern, got %d", m.Len())
	}
	top := m.Top(1)
	if top[0].Count != 2 {
		t.Fatalf("expected collapsed count 2, got %d", top[0].Count)
	}
}

func TestPatternExampleCap(t *testing.T) {
	m := NewMatcher(nil)
	for i := 0; i < 10; i++ {
		m.Record(domain.ErrorRecord{Type: "exception", Name: "Error", Message: "boom"})
	}
	top := m.Top(1)
	if top[0].Count != 10 {
		t.Fatalf("expected count 10, got %d", top[0].Count)
	}
	if len(top[0].Examples) != 3 {
		t.Fatalf("expected exactly 3 stored examples, got %d", len(top[0].Examples))
	}
}

func TestTopOrderStableOnTies(t *testing.T) {
	m := NewMatcher(nil)
	m.Record(domain.ErrorRecord{Type: "exception", Name: "First", Message: "a"})
	m.Record(domain.ErrorRecord{Type: "exception", Name: "Second", Message: "b"})
	m.Record(domain.ErrorRecord{Type: "exception", Name: "Frequent", Message: "c"})
	m.Record(domain.ErrorRecord{Type: "exception", Name: "Frequent", Message: "c"})

	top := m.Top(3)
	if top[0].Name != "Frequent" {
		t.Fatalf("expected most frequent pattern first, got %s", top[0].Name)
	}
	if top[1].Name != "First" || top[2].Name != "Second" {
		t.Fatalf("ties must keep insertion order, got %s then %s", top[1].Name, top[2].Name)
	}
}

func TestRecentOrdering(t *testing.T) {
	current := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	m := NewMatcher(func() time.Time { return current })

	m.Record(domain.ErrorRecord{Type: "exception", Name: "Old", Message: "a"})
	current = current.Add(time.Hour)
	m.Record(domain.ErrorRecord{Type: "exception", Name: "New", Message: "b"})

	recent := m.Recent(2)
	if recent[0].Name != "New" || recent[1].Name != "Old" {
		t.Fatalf("expected newest-first ordering, got %s then %s", recent[0].Name, recent[1].Name)
	}
}

func TestCleanupMonotonic(t *testing.T) {
	current := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	m := NewMatcher(func() time.Time { return current })

	m.Record(domain.ErrorRecord{Type: "exception", Name: "Stale", Message: "a"})
	current = current.Add(25 * time.Hour)
	m.Record(domain.ErrorRecord{Type: "exception", Name: "Fresh", Message: "b"})

	removed := m.Cleanup(24 * time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 removed pattern, got %d", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 surviving pattern, got %d", m.Len())
	}
	survivors := m.Recent(0)
	if survivors[0].Name != "Fresh" {
		t.Fatalf("cleanup removed the wrong pattern: %s", survivors[0].Name)
	}
	cutoff := current.Add(-24 * time.Hour)
	for _, p := range survivors {
		if p.LastSeen.Before(cutoff) {
			t.Fatalf("pattern %s older than cutoff survived", p.Name)
		}
	}
}
