// Package pending tracks navigations and redirects that have not yet been
// attached to a committed window table.
package pending

import (
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pagegraph/internal/graph/diag"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// DefaultMaxAge is long enough to catch redirects on slow, high-RTT connections
const DefaultMaxAge = 2 * time.Minute

// Entry is the provisional state of a URL that is mid-navigation or mid-redirect
type Entry struct {
	InitTime   time.Time
	Properties resource.Properties
}

// Tracker is the age-bounded pending navigation map. An entry is valid while
// the tail of its forward chain is younger than the age bound, and a link is
// valid while both ends exist and were created within the age bound of each
// other.
type Tracker struct {
	*LinkedMap[*Entry]
	maxAge time.Duration
	now    func() time.Time
	report *diag.Reporter
}

// Option configures a Tracker
type Option func(*Tracker)

// WithMaxAge overrides the age bound
func WithMaxAge(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.maxAge = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates an empty tracker
func NewTracker(report *diag.Reporter, opts ...Option) *Tracker {
	t := &Tracker{
		maxAge: DefaultMaxAge,
		now:    time.Now,
		report: report,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.LinkedMap = NewLinkedMap[*Entry](t.entriesNotTooFarApart, t.isEntryRecentEnough, report)
	return t
}

// MaxAge returns the configured age bound
func (t *Tracker) MaxAge() time.Duration {
	return t.maxAge
}

// AddDocument creates a fresh entry for url, stamped with the current time.
// The entry's request time starts out equal to its creation time.
func (t *Tracker) AddDocument(url string) *Entry {
	now := t.now()
	entry := &Entry{
		InitTime:   now,
		Properties: resource.Properties{RequestTime: &now},
	}
	if !t.AddEntry(url, entry) {
		return nil
	}
	return entry
}

// WithinAgeBound reports whether a link prev -> next would be valid
func (t *Tracker) WithinAgeBound(prev, next string) bool {
	return t.entriesNotTooFarApart(t.LinkedMap, prev, next)
}

// Sweep drops every entry whose chain has aged out
func (t *Tracker) Sweep() {
	t.RemoveEntriesNotMatching(t.isEntryRecentEnough)
}

func (t *Tracker) entriesNotTooFarApart(m *LinkedMap[*Entry], prev, next string) bool {
	if !m.HasEntry(prev) || !m.HasEntry(next) {
		return false
	}
	p, _ := m.GetEntry(prev)
	n, _ := m.GetEntry(next)
	if p == nil || n == nil || p.InitTime.IsZero() || n.InitTime.IsZero() {
		return false
	}
	diff := n.InitTime.Sub(p.InitTime)
	if diff < 0 {
		t.report.Anomaly(diag.KindNegativeDelta, "Pending entries out of order",
			zap.String("prev", prev), zap.String("next", next), zap.Duration("diff", diff))
		return false
	}
	return diff < t.maxAge
}

func (t *Tracker) isEntryRecentEnough(m *LinkedMap[*Entry], key string) bool {
	if key == "" || m == nil {
		return false
	}
	tail, ok := m.GetTail(key)
	if !ok {
		return false
	}
	entry, _ := m.GetEntry(tail)
	if entry == nil || entry.InitTime.IsZero() {
		return false
	}
	diff := t.now().Sub(entry.InitTime)
	if diff < 0 {
		t.report.Anomaly(diag.KindNegativeDelta, "Pending entry created in the future",
			zap.String("url", key), zap.Duration("diff", diff))
		return false
	}
	return diff < t.maxAge
}
