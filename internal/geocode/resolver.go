// Package geocode resolves parsed location codes to coordinates using an
// external lookup table, memoizing results in a per-resolver cache.
package geocode

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/location"
)

var (
	// ErrUnknownLocation is returned when the table has no entry for a code
	ErrUnknownLocation = errors.New("unknown location")

	// ErrFlightExcluded is returned for flight codes when the resolver's
	// flight policy excludes them
	ErrFlightExcluded = errors.New("flight location excluded")
)

// Table is a read-only coordinate lookup keyed by full location path
type Table interface {
	Lookup(key string) (calculator.Coordinate, bool)
}

// MapTable is an in-memory Table. Keys are matched case-insensitively.
type MapTable map[string]calculator.Coordinate

// Lookup implements Table
func (t MapTable) Lookup(key string) (calculator.Coordinate, bool) {
	c, ok := t[strings.ToUpper(strings.TrimSpace(key))]
	return c, ok
}

// Add stores a coordinate under a normalized key
func (t MapTable) Add(key string, c calculator.Coordinate) {
	t[strings.ToUpper(strings.TrimSpace(key))] = c
}

// Cache memoizes resolved coordinates. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (calculator.Coordinate, bool)
	Put(key string, c calculator.Coordinate)
}

// MemoryCache is a map-backed Cache guarded by a read-mostly lock
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]calculator.Coordinate
}

// NewMemoryCache creates an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]calculator.Coordinate)}
}

// Get implements Cache
func (c *MemoryCache) Get(key string) (calculator.Coordinate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coord, ok := c.entries[key]
	return coord, ok
}

// Put implements Cache
func (c *MemoryCache) Put(key string, coord calculator.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = coord
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// FlightPolicy controls how flight codes are resolved
type FlightPolicy int

const (
	// FlightDestination resolves flights to the arrival airport
	FlightDestination FlightPolicy = iota
	// FlightExclude rejects flights with ErrFlightExcluded
	FlightExclude
)

// Stats reports cache effectiveness
type Stats struct {
	Hits   int64
	Misses int64
}

// Resolver maps location codes to coordinates
type Resolver struct {
	table  Table
	cache  Cache
	policy FlightPolicy

	hits   atomic.Int64
	misses atomic.Int64
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache injects a cache implementation
func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithFlightPolicy sets the flight resolution policy
func WithFlightPolicy(p FlightPolicy) ResolverOption {
	return func(r *Resolver) { r.policy = p }
}

// NewResolver creates a resolver over table with a fresh MemoryCache unless
// one is injected
func NewResolver(table Table, opts ...ResolverOption) *Resolver {
	r := &Resolver{table: table, policy: FlightDestination}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewMemoryCache()
	}
	return r
}

// Resolve returns the coordinate for code. Flights resolve to their
// destination airport unless the resolver excludes them.
func (r *Resolver) Resolve(code location.Code) (calculator.Coordinate, error) {
	switch code.Kind() {
	case location.KindHome, location.KindPlace:
	case location.KindFlight:
		if r.policy == FlightExclude {
			return calculator.Coordinate{}, fmt.Errorf("%w: %s", ErrFlightExcluded, code)
		}
	default:
		return calculator.Coordinate{}, fmt.Errorf("%w: unparsed code", ErrUnknownLocation)
	}

	return r.ResolveKey(code.LookupKey())
}

// ResolveKey looks up a raw table key, e.g. a region path such as US/OH
func (r *Resolver) ResolveKey(key string) (calculator.Coordinate, error) {
	if c, ok := r.cache.Get(key); ok {
		r.hits.Add(1)
		return c, nil
	}
	r.misses.Add(1)

	c, ok := r.table.Lookup(key)
	if !ok {
		return calculator.Coordinate{}, fmt.Errorf("%w: %s", ErrUnknownLocation, key)
	}
	r.cache.Put(key, c)

	return c, nil
}

// Stats returns cache hit and miss counts
func (r *Resolver) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}
