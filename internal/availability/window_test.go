package availability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline-ai/bookline/internal/bookings"
)

func bookedAt(instants ...time.Time) []bookings.Booking {
	out := make([]bookings.Booking, len(instants))
	for i, at := range instants {
		out[i] = bookings.Booking{ID: "b", ProviderID: "prov", DateTime: at}
	}
	return out
}

func TestComputeWindowsEmptyDay(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	windows := computeWindows(start, end, nil, time.Hour)

	require.Len(t, windows, 1)
	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, end, windows[0].End)
}

func TestComputeWindowsSplitsAroundBookings(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	booked := bookedAt(
		start.Add(10*time.Hour),
		start.Add(14*time.Hour),
	)

	windows := computeWindows(start, end, booked, time.Hour)

	require.Len(t, windows, 3)
	assert.Equal(t, Window{Start: start, End: start.Add(10 * time.Hour)}, windows[0])
	assert.Equal(t, Window{Start: start.Add(11 * time.Hour), End: start.Add(14 * time.Hour)}, windows[1])
	assert.Equal(t, Window{Start: start.Add(15 * time.Hour), End: end}, windows[2])
}

func TestComputeWindowsMergesAdjacentBookings(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	booked := bookedAt(
		start.Add(9*time.Hour),
		start.Add(10*time.Hour),
		start.Add(11*time.Hour),
	)

	windows := computeWindows(start, end, booked, time.Hour)

	require.Len(t, windows, 2)
	assert.Equal(t, Window{Start: start, End: start.Add(9 * time.Hour)}, windows[0])
	assert.Equal(t, Window{Start: start.Add(12 * time.Hour), End: end}, windows[1])
}

func TestComputeWindowsClampsToDayBounds(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC)
	booked := bookedAt(
		start.Add(-30*time.Minute),     // spills into the day from before opening
		end.Add(-30*time.Minute),       // spills past closing
		start.Add(-2*time.Hour),        // entirely before the day
		end.Add(time.Hour),             // entirely after the day
		start.Add(3*time.Hour+30*time.Minute),
	)

	windows := computeWindows(start, end, booked, time.Hour)

	require.Len(t, windows, 2)
	assert.Equal(t, Window{Start: start.Add(30 * time.Minute), End: start.Add(3*time.Hour + 30*time.Minute)}, windows[0])
	assert.Equal(t, Window{Start: start.Add(4*time.Hour + 30*time.Minute), End: end.Add(-30 * time.Minute)}, windows[1])
}

func TestComputeWindowsFullyBookedDay(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	booked := bookedAt(start, start.Add(time.Hour))

	windows := computeWindows(start, end, booked, time.Hour)
	assert.Empty(t, windows)
}

// The free windows plus the booked slots must tile the day exactly.
func TestComputeWindowsComplementInvariant(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	booked := bookedAt(
		start.Add(2*time.Hour),
		start.Add(7*time.Hour+30*time.Minute),
		start.Add(8*time.Hour),
		start.Add(20*time.Hour),
	)

	windows := computeWindows(start, end, booked, time.Hour)

	var free time.Duration
	prevEnd := start
	for _, w := range windows {
		assert.True(t, w.End.After(w.Start), "windows must be non-empty")
		assert.False(t, w.Start.Before(prevEnd), "windows must be sorted and disjoint")
		for _, b := range booked {
			bookedEnd := b.DateTime.Add(time.Hour)
			overlap := w.Start.Before(bookedEnd) && b.DateTime.Before(w.End)
			assert.False(t, overlap, "window %v overlaps booking at %v", w, b.DateTime)
		}
		free += w.Duration()
		prevEnd = w.End
	}

	// 4 bookings, one pair overlapping by 30m, so 3.5h booked in total.
	assert.Equal(t, 24*time.Hour-(3*time.Hour+30*time.Minute), free)
}

func TestWindowContains(t *testing.T) {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(time.Hour)}

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(start.Add(59*time.Minute)))
	assert.False(t, w.Contains(start.Add(time.Hour)))
	assert.False(t, w.Contains(start.Add(-time.Second)))
}

func TestWindowCachePublishAndGet(t *testing.T) {
	cache := newWindowCache()

	_, ok := cache.get("prov|2026-06-01")
	assert.False(t, ok)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	published := []Window{{Start: start, End: start.Add(time.Hour)}}
	cache.publish("prov|2026-06-01", published)

	got, ok := cache.get("prov|2026-06-01")
	require.True(t, ok)
	assert.Equal(t, published, got)
}

func TestDayLocksSerializePerKey(t *testing.T) {
	locks := newDayLocks()

	var mu sync.Mutex
	counters := map[string]int{}
	maxSeen := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		key := "a"
		if i%2 == 1 {
			key = "b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			locks.acquire(key)
			defer locks.release(key)

			mu.Lock()
			counters[key]++
			if counters[key] > maxSeen[key] {
				maxSeen[key] = counters[key]
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counters[key]--
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	// At most one holder per key at any instant, and the map drains.
	assert.Equal(t, 1, maxSeen["a"])
	assert.Equal(t, 1, maxSeen["b"])
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}
