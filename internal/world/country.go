// Package world holds the country model: cities, their agent indexes, and the
// geography used to pick travel destinations.
package world

import (
	"errors"
	"fmt"

	"github.com/talgya/epiworld/internal/agents"
	"github.com/talgya/epiworld/internal/collections"
)

var (
	// ErrNoCities is returned when a country would have no cities.
	ErrNoCities = errors.New("country has no cities")

	// ErrUnknownCity is returned for a city index outside the country.
	ErrUnknownCity = errors.New("unknown city")

	// ErrCacheMismatch is returned by Audit when a cached count disagrees
	// with the city's index.
	ErrCacheMismatch = errors.New("city cache mismatch")
)

// AgentIndex is the per-city agent container.
type AgentIndex = collections.Index[*agents.Agent]

// CityRecord is one row of population input.
type CityRecord struct {
	Code       int32   `json:"city_id"`
	Population int     `json:"population"`
	Infected   int     `json:"infected"`
	Lat        float64 `json:"latitude"`
	Lon        float64 `json:"longitude"`
	Area       float64 `json:"area"` // km²
}

// City is a location with its own agent index. Population and Infected are
// caches of the index contents, kept current by every move, death and status
// change.
type City struct {
	Index      agents.CityID `json:"index"`
	Code       int32         `json:"city_id"`
	Lat        float64       `json:"latitude"`
	Lon        float64       `json:"longitude"`
	Area       float64       `json:"area"`
	Population int           `json:"population"`
	Infected   int           `json:"infected"`

	Agents *AgentIndex `json:"-"`
}

// Density returns residents per km², or 0 for a city without area.
func (c *City) Density() float64 {
	if c.Area <= 0 {
		return 0
	}
	return float64(c.Population) / c.Area
}

// CityDistance is one entry of the scratch distance table.
type CityDistance struct {
	City     agents.CityID
	Distance float64
}

// Country is the ordered list of cities plus per-step scratch state.
type Country struct {
	Cities    []*City
	Distances []CityDistance

	moved []bool // indexed by agent id
}

// NewCountry builds the city list from records. When spawner is non-nil each
// city is seeded with its recorded population, infected residents first;
// otherwise the cities are left empty for a checkpoint to fill.
func NewCountry(records []CityRecord, spawner *agents.Spawner) (*Country, error) {
	if len(records) == 0 {
		return nil, ErrNoCities
	}
	c := &Country{
		Cities:    make([]*City, len(records)),
		Distances: make([]CityDistance, len(records)),
	}
	for i, rec := range records {
		idx, err := collections.NewIndex[*agents.Agent](rec.Population / 10)
		if err != nil {
			return nil, fmt.Errorf("city %d index: %w", rec.Code, err)
		}
		c.Cities[i] = &City{
			Index:  agents.CityID(i),
			Code:   rec.Code,
			Lat:    rec.Lat,
			Lon:    rec.Lon,
			Area:   rec.Area,
			Agents: idx,
		}
		if spawner == nil {
			continue
		}
		for _, a := range spawner.SpawnCity(agents.CityID(i), rec.Population, rec.Infected) {
			if err := c.AddAgent(agents.CityID(i), a); err != nil {
				return nil, fmt.Errorf("seed city %d: %w", rec.Code, err)
			}
		}
	}
	if spawner != nil {
		c.ResetMoved(int(spawner.NextID()))
	}
	return c, nil
}

// City returns the city at index i.
func (c *Country) City(i agents.CityID) (*City, error) {
	if i < 0 || int(i) >= len(c.Cities) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCity, i)
	}
	return c.Cities[i], nil
}

// CityByCode finds a city by its external code with a linear scan.
func (c *Country) CityByCode(code int32) (*City, bool) {
	for _, city := range c.Cities {
		if city.Code == code {
			return city, true
		}
	}
	return nil, false
}

// AddAgent indexes a under city i and updates the caches.
func (c *Country) AddAgent(i agents.CityID, a *agents.Agent) error {
	city, err := c.City(i)
	if err != nil {
		return err
	}
	if err := city.Agents.Add(a); err != nil {
		return err
	}
	city.Population++
	if a.IsInfected() {
		city.Infected++
	}
	return nil
}

// RemoveAt takes the agent at (bucket, slot) out of city i and updates the
// caches.
func (c *Country) RemoveAt(i agents.CityID, bucket, slot int) (*agents.Agent, error) {
	city, err := c.City(i)
	if err != nil {
		return nil, err
	}
	a, err := city.Agents.RemoveAt(bucket, slot)
	if err != nil {
		return nil, err
	}
	city.Population--
	if a.IsInfected() {
		city.Infected--
	}
	return a, nil
}

// Move relocates the agent at (bucket, slot) of city from into city to.
// If the destination rejects the agent it is put back into the source.
func (c *Country) Move(from agents.CityID, bucket, slot int, to agents.CityID) (*agents.Agent, error) {
	if _, err := c.City(to); err != nil {
		return nil, err
	}
	a, err := c.RemoveAt(from, bucket, slot)
	if err != nil {
		return nil, err
	}
	if err := c.AddAgent(to, a); err != nil {
		if rerr := c.AddAgent(from, a); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	return a, nil
}

// ── Moved flags ──────────────────────────────────────────────────────

// ResetMoved sizes the moved-flag array for n agent ids and clears it.
func (c *Country) ResetMoved(n int) {
	if cap(c.moved) >= n {
		c.moved = c.moved[:n]
		clear(c.moved)
		return
	}
	c.moved = make([]bool, n)
}

// ClearMoved clears every moved flag.
func (c *Country) ClearMoved() {
	clear(c.moved)
}

// HasMoved reports whether the agent has moved during the current step.
func (c *Country) HasMoved(id agents.AgentID) bool {
	return id < agents.AgentID(len(c.moved)) && c.moved[id]
}

// MarkMoved flags the agent as moved, growing the array when needed.
func (c *Country) MarkMoved(id agents.AgentID) {
	if id >= agents.AgentID(len(c.moved)) {
		grown := make([]bool, id+1)
		copy(grown, c.moved)
		c.moved = grown
	}
	c.moved[id] = true
}

// ── Aggregates ───────────────────────────────────────────────────────

// TotalPopulation sums the population caches.
func (c *Country) TotalPopulation() int {
	n := 0
	for _, city := range c.Cities {
		n += city.Population
	}
	return n
}

// TotalInfected sums the infected caches.
func (c *Country) TotalInfected() int {
	n := 0
	for _, city := range c.Cities {
		n += city.Infected
	}
	return n
}

// CountStatuses scans every index and counts agents per status.
func (c *Country) CountStatuses() map[agents.Status]int {
	counts := make(map[agents.Status]int, 3)
	for _, city := range c.Cities {
		city.Agents.Each(func(a *agents.Agent) bool {
			counts[a.Status]++
			return true
		})
	}
	return counts
}

// MaxAgentID returns the largest id indexed anywhere, or false when the
// country is empty.
func (c *Country) MaxAgentID() (agents.AgentID, bool) {
	var maxID agents.AgentID
	found := false
	for _, city := range c.Cities {
		city.Agents.Each(func(a *agents.Agent) bool {
			if !found || a.ID > maxID {
				maxID = a.ID
				found = true
			}
			return true
		})
	}
	return maxID, found
}

// Audit recomputes every city's caches by scanning its index and reports the
// first disagreement. It is for tests and post-load checks; stepping never
// rescans.
func (c *Country) Audit() error {
	for _, city := range c.Cities {
		infected := 0
		city.Agents.Each(func(a *agents.Agent) bool {
			if a.IsInfected() {
				infected++
			}
			return true
		})
		if city.Population != city.Agents.Len() {
			return fmt.Errorf("%w: city %d population %d, indexed %d",
				ErrCacheMismatch, city.Code, city.Population, city.Agents.Len())
		}
		if city.Infected != infected {
			return fmt.Errorf("%w: city %d infected %d, indexed %d",
				ErrCacheMismatch, city.Code, city.Infected, infected)
		}
	}
	return nil
}

// Destroy drops every agent from every city.
func (c *Country) Destroy() {
	for _, city := range c.Cities {
		city.Agents.Destroy()
		city.Population = 0
		city.Infected = 0
	}
	c.moved = nil
}
