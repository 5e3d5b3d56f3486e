// Package cache holds the in-process Location Cache: the current position
// of every tracked driver plus a bounded trail of recent positions.
package cache

import (
	"slices"
	"strings"
	"sync"

	"fleet-realtime/internal/domain/geo"
)

// DefaultCapacity is the per-driver history size.
const DefaultCapacity = 100

type entry struct {
	current *geo.Location
	history *trail
}

// Cache is safe for concurrent use. Every mutation runs under one lock so an
// update is atomic with respect to other handlers touching the same driver.
type Cache struct {
	mu                sync.RWMutex
	capacity          int
	accuracyThreshold float64
	drivers           map[string]*entry
}

// New builds a cache. accuracyThreshold <= 0 disables the accuracy filter.
func New(capacity int, accuracyThreshold float64) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity:          capacity,
		accuracyThreshold: accuracyThreshold,
		drivers:           make(map[string]*entry),
	}
}

// Update validates reading and, when it is acceptable, replaces the driver's
// current location and appends it to the trail. Rejected readings leave the
// cache untouched.
func (c *Cache) Update(reading geo.Reading) (geo.Location, error) {
	if err := reading.Validate(c.accuracyThreshold); err != nil {
		return geo.Location{}, err
	}
	loc := reading.Normalize()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.drivers[loc.DriverID]
	if !ok {
		e = &entry{history: newTrail(c.capacity)}
		c.drivers[loc.DriverID] = e
	}
	cur := loc.Clone()
	e.current = &cur
	e.history.push(loc.Clone())

	return loc, nil
}

// Current returns a copy of the driver's last accepted location.
func (c *Cache) Current(driverID string) (geo.Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.drivers[strings.TrimSpace(driverID)]
	if !ok || e.current == nil {
		return geo.Location{}, false
	}
	return e.current.Clone(), true
}

// History returns the trail oldest first. The slice is a snapshot.
func (c *Cache) History(driverID string) []geo.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.drivers[strings.TrimSpace(driverID)]
	if !ok {
		return nil
	}
	return e.history.snapshot()
}

// AllCurrent returns a snapshot of every current location keyed by driver.
func (c *Cache) AllCurrent() map[string]geo.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]geo.Location, len(c.drivers))
	for id, e := range c.drivers {
		if e.current != nil {
			out[id] = e.current.Clone()
		}
	}
	return out
}

// Sorted returns current locations ordered by driver id.
func (c *Cache) Sorted() []geo.Location {
	all := c.AllCurrent()
	out := make([]geo.Location, 0, len(all))
	for _, loc := range all {
		out = append(out, loc)
	}
	slices.SortFunc(out, func(a, b geo.Location) int { return strings.Compare(a.DriverID, b.DriverID) })
	return out
}

// Remove drops the driver's current location. The trail is kept.
func (c *Cache) Remove(driverID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.drivers[strings.TrimSpace(driverID)]
	if !ok || e.current == nil {
		return false
	}
	e.current = nil
	return true
}

// ActiveCount is the number of drivers with a current location.
func (c *Cache) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.drivers {
		if e.current != nil {
			n++
		}
	}
	return n
}
