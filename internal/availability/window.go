package availability

import (
	"sort"
	"sync"
	"time"

	"github.com/bookline-ai/bookline/internal/bookings"
)

// Window is a contiguous free interval [Start, End) within a ProviderDay.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the window's length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether the instant falls inside the window.
func (w Window) Contains(at time.Time) bool {
	return !at.Before(w.Start) && at.Before(w.End)
}

// computeWindows derives the free windows of a day from its committed
// bookings: the complement of the booked intervals within [dayStart,
// dayEnd). Bookings occupy [DateTime, DateTime+slotDuration). The result
// is sorted, disjoint, and together with the booked intervals covers the
// whole operating day exactly.
func computeWindows(dayStart, dayEnd time.Time, booked []bookings.Booking, slotDuration time.Duration) []Window {
	intervals := make([]Window, 0, len(booked))
	for _, b := range booked {
		start := b.DateTime
		end := start.Add(slotDuration)
		if !end.After(dayStart) || !start.Before(dayEnd) {
			continue
		}
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		intervals = append(intervals, Window{Start: start, End: end})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start.Before(intervals[j].Start) })

	windows := make([]Window, 0, len(intervals)+1)
	cursor := dayStart
	for _, iv := range intervals {
		if iv.Start.After(cursor) {
			windows = append(windows, Window{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(dayEnd) {
		windows = append(windows, Window{Start: cursor, End: dayEnd})
	}
	return windows
}

// windowCache holds the last published windows per ProviderDay. Commits
// publish here before returning so a successful commit is never observed
// alongside stale availability.
type windowCache struct {
	mu      sync.RWMutex
	windows map[string][]Window
}

func newWindowCache() *windowCache {
	return &windowCache{windows: make(map[string][]Window)}
}

func (c *windowCache) publish(key string, windows []Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[key] = windows
}

func (c *windowCache) get(key string) ([]Window, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.windows[key]
	return w, ok
}
