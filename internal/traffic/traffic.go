// Package traffic keeps sliding windows of upstream call outcomes so the health
// endpoint can tell when an upstream is failing.
package traffic

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// maxAge bounds how long outcomes are retained regardless of the queried window.
const maxAge = 5 * time.Minute

var defaultTracker = NewTracker(clockwork.NewRealClock())

// RecordOutcome records the result of a call to upstream. A nil err counts as success.
func RecordOutcome(upstream string, err error) {
	defaultTracker.RecordOutcome(upstream, err)
}

// ErrorRate returns (errorCount, totalCount) for upstream within the window.
func ErrorRate(upstream string, window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(upstream, window)
}

// Upstreams returns the names of upstreams with recorded outcomes, sorted.
func Upstreams() []string {
	return defaultTracker.Upstreams()
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains per-upstream windows of success and error timestamps.
type Tracker struct {
	mu    sync.Mutex
	clock clockwork.Clock
	byKey map[string]*window
}

type window struct {
	successes []time.Time
	errors    []time.Time
}

// NewTracker returns a Tracker reading time from clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock, byKey: make(map[string]*window)}
}

// RecordOutcome appends a success (err == nil) or error timestamp for upstream.
func (t *Tracker) RecordOutcome(upstream string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	w, ok := t.byKey[upstream]
	if !ok {
		w = &window{}
		t.byKey[upstream] = w
	}
	if err != nil {
		w.errors = append(w.errors, now)
	} else {
		w.successes = append(w.successes, now)
	}
	w.prune(now.Add(-maxAge))
}

// ErrorRate returns (errorCount, totalCount) within the window ending now.
func (t *Tracker) ErrorRate(upstream string, d time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.byKey[upstream]
	if !ok {
		return 0, 0
	}
	cutoff := t.clock.Now().Add(-d)
	errs := countSince(w.errors, cutoff)
	return errs, errs + countSince(w.successes, cutoff)
}

// Upstreams returns the names with at least one recorded outcome, sorted.
func (t *Tracker) Upstreams() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byKey))
	for k := range t.byKey {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey = make(map[string]*window)
}

// prune drops timestamps before cutoff. Slices are append-only, so they stay sorted.
func (w *window) prune(cutoff time.Time) {
	w.successes = dropBefore(w.successes, cutoff)
	w.errors = dropBefore(w.errors, cutoff)
}

func dropBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(times) && times[i].Before(cutoff); i++ {
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}
