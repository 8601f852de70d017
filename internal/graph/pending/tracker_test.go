package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(nil, WithClock(clock.Now)), clock
}

func TestTrackerAddDocument(t *testing.T) {
	tracker, clock := newTestTracker(t)

	entry := tracker.AddDocument("https://a.com/")
	require.NotNil(t, entry)
	assert.True(t, clock.now.Equal(entry.InitTime))
	require.NotNil(t, entry.Properties.RequestTime)
	assert.True(t, clock.now.Equal(*entry.Properties.RequestTime))

	got, ok := tracker.GetEntry("https://a.com/")
	assert.True(t, ok)
	assert.Same(t, entry, got)

	assert.Nil(t, tracker.AddDocument(""))
	assert.Equal(t, DefaultMaxAge, tracker.MaxAge())
}

func TestTrackerAgeBoundExpiry(t *testing.T) {
	tracker, clock := newTestTracker(t)
	tracker.AddDocument("https://a.com/")

	clock.Advance(DefaultMaxAge - time.Second)
	assert.True(t, tracker.HasEntry("https://a.com/"))

	// Expires purely through elapsed time
	clock.Advance(2 * time.Second)
	assert.False(t, tracker.HasEntry("https://a.com/"))
	assert.Equal(t, 0, tracker.Len())
}

func TestTrackerValidityFollowsChainTail(t *testing.T) {
	tracker, clock := newTestTracker(t)
	tracker.AddDocument("https://a.com/")
	clock.Advance(90 * time.Second)
	tracker.AddDocument("https://b.com/")
	require.True(t, tracker.LinkNext("https://a.com/", "https://b.com/"))

	// a.com is older than the bound but its tail is not
	clock.Advance(60 * time.Second)
	assert.True(t, tracker.HasEntry("https://a.com/"))
	tail, ok := tracker.GetTail("https://a.com/")
	assert.True(t, ok)
	assert.Equal(t, "https://b.com/", tail)

	clock.Advance(DefaultMaxAge)
	assert.False(t, tracker.HasEntry("https://b.com/"))
	assert.False(t, tracker.HasEntry("https://a.com/"))
}

func TestTrackerRejectsOutOfOrderLink(t *testing.T) {
	report, logs := newObservedReporter()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(report, WithClock(clock.Now))

	tracker.AddDocument("https://late.com/")
	clock.Advance(-10 * time.Second)
	tracker.AddDocument("https://early.com/")
	clock.Advance(10 * time.Second)

	assert.True(t, tracker.WithinAgeBound("https://early.com/", "https://late.com/"))
	assert.False(t, tracker.WithinAgeBound("https://late.com/", "https://early.com/"))
	assert.False(t, tracker.LinkNext("https://late.com/", "https://early.com/"))
	assert.GreaterOrEqual(t, logs.FilterMessage("Pending entries out of order").Len(), 1)

	assert.False(t, tracker.WithinAgeBound("https://early.com/", "https://missing.com/"))
}

func TestTrackerLinkRespectsMaxAge(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(nil, WithClock(clock.Now), WithMaxAge(10*time.Second))
	assert.Equal(t, 10*time.Second, tracker.MaxAge())

	tracker.AddDocument("https://a.com/")
	clock.Advance(5 * time.Second)
	tracker.AddDocument("https://b.com/")
	assert.True(t, tracker.LinkNext("https://a.com/", "https://b.com/"))

	clock.Advance(9 * time.Second)
	// a.com alone would be stale, through its tail it is not
	assert.True(t, tracker.HasEntry("https://a.com/"))
	clock.Advance(2 * time.Second)
	assert.False(t, tracker.HasEntry("https://a.com/"))
}

func TestTrackerSweep(t *testing.T) {
	tracker, clock := newTestTracker(t)
	tracker.AddDocument("https://old.com/")
	clock.Advance(90 * time.Second)
	tracker.AddDocument("https://fresh.com/")
	clock.Advance(60 * time.Second)

	assert.Equal(t, 2, tracker.Len())
	tracker.Sweep()
	assert.Equal(t, []string{"https://fresh.com/"}, tracker.Keys())
}

func TestTrackerCycleInvalidatesEntries(t *testing.T) {
	report, logs := newObservedReporter()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(report, WithClock(clock.Now))

	tracker.AddDocument("https://a.com/")
	tracker.AddDocument("https://b.com/")
	require.True(t, tracker.LinkNext("https://a.com/", "https://b.com/"))
	require.True(t, tracker.LinkNext("https://b.com/", "https://a.com/"))

	_, ok := tracker.GetTail("https://a.com/")
	assert.False(t, ok)
	assert.Greater(t, logs.FilterMessage("Found cycle in linked list").Len(), 0)
}
