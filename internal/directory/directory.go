package directory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Directory resolves the operating timezone of a business. Day boundaries
// for conflict checking are always anchored to this zone, never to the
// caller's zone or UTC.
type Directory interface {
	TimeZone(ctx context.Context, businessID string) (*time.Location, error)
}

// StaticDirectory maps business ids to timezones, validated at
// construction.
type StaticDirectory struct {
	zones map[string]*time.Location
}

// NewStaticDirectory builds a directory from businessID -> IANA zone name.
func NewStaticDirectory(zoneNames map[string]string) (*StaticDirectory, error) {
	zones := make(map[string]*time.Location, len(zoneNames))
	for businessID, name := range zoneNames {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("directory: invalid timezone %q for business %s: %w", name, businessID, err)
		}
		zones[businessID] = loc
	}
	return &StaticDirectory{zones: zones}, nil
}

// TimeZone returns the business's zone.
func (d *StaticDirectory) TimeZone(ctx context.Context, businessID string) (*time.Location, error) {
	loc, ok := d.zones[businessID]
	if !ok {
		return nil, fmt.Errorf("directory: unknown business %s", businessID)
	}
	return loc, nil
}

// FixedDirectory answers every lookup with the same zone, for
// single-tenant deployments where the operating timezone is plain
// configuration.
type FixedDirectory struct {
	zone *time.Location
}

// NewFixedDirectory builds a directory pinned to one IANA zone.
func NewFixedDirectory(zoneName string) (*FixedDirectory, error) {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return nil, fmt.Errorf("directory: invalid timezone %q: %w", zoneName, err)
	}
	return &FixedDirectory{zone: loc}, nil
}

// TimeZone returns the pinned zone for any business.
func (d *FixedDirectory) TimeZone(ctx context.Context, businessID string) (*time.Location, error) {
	return d.zone, nil
}

// CachedDirectory memoizes zone lookups from a slower upstream directory.
// Lookups happen on every availability call, so remote-backed directories
// should be wrapped.
type CachedDirectory struct {
	upstream Directory

	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewCachedDirectory wraps upstream with an in-process cache.
func NewCachedDirectory(upstream Directory) *CachedDirectory {
	return &CachedDirectory{
		upstream: upstream,
		cache:    make(map[string]*time.Location),
	}
}

// TimeZone returns the cached zone, consulting upstream on first use.
// Errors are not cached, so transient upstream failures retry.
func (d *CachedDirectory) TimeZone(ctx context.Context, businessID string) (*time.Location, error) {
	d.mu.Lock()
	if loc, ok := d.cache[businessID]; ok {
		d.mu.Unlock()
		return loc, nil
	}
	d.mu.Unlock()

	loc, err := d.upstream.TimeZone(ctx, businessID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache[businessID] = loc
	d.mu.Unlock()
	return loc, nil
}
