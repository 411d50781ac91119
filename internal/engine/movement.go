// Movement: hourly travel between cities and the commute back home.
package engine

import (
	"fmt"

	"github.com/talgya/epiworld/internal/agents"
	"github.com/talgya/epiworld/internal/world"
)

// SimulationStep runs one hour: every city in index order refreshes its
// distance table and sends a fraction of its not-yet-moved agents to a
// destination picked from a sampled travel distance. Infection spread runs
// once all cities are done.
//
// A failed move aborts the rest of the step; moves already made stay.
func (s *Simulation) SimulationStep() error {
	if s == nil || s.Country == nil {
		return ErrNilSimulation
	}
	c := s.Country
	c.ClearMoved()

	for i := range c.Cities {
		from := agents.CityID(i)
		if err := c.RefreshDistances(from); err != nil {
			return err
		}
		if err := s.moveFrom(from); err != nil {
			return err
		}
	}
	return s.SpreadPhenomenon()
}

func (s *Simulation) moveFrom(from agents.CityID) error {
	c := s.Country
	idx := c.Cities[from].Agents

	for b := 0; b < idx.BucketCount(); b++ {
		for slot := 0; slot < idx.BucketLen(b); {
			a, _ := idx.Get(b, slot)
			if c.HasMoved(a.ID) || !s.uniform.Chance(s.Config.MovingFraction) {
				slot++
				continue
			}
			c.MarkMoved(a.ID)

			dist, err := s.travel.Next()
			if err != nil {
				return fmt.Errorf("travel distance: %w", err)
			}
			to := c.Distances[world.InterpolationSearch(dist, c.Distances)].City
			if to == from {
				// Sampled beyond every other city; the agent stays.
				slot++
				continue
			}
			if _, err := c.Move(from, b, slot, to); err != nil {
				return fmt.Errorf("move agent %d: %w", a.ID, err)
			}
			s.Stats.Moves++
			// The next agent has shifted into this slot.
		}
	}
	return nil
}

// GoBackHome sends every agent that is away from home back with probability
// threshold.
func (s *Simulation) GoBackHome(threshold float64) error {
	if s == nil || s.Country == nil {
		return ErrNilSimulation
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: %g", ErrThreshold, threshold)
	}
	c := s.Country

	for i, city := range c.Cities {
		here := agents.CityID(i)
		idx := city.Agents
		for b := 0; b < idx.BucketCount(); b++ {
			for slot := 0; slot < idx.BucketLen(b); {
				a, _ := idx.Get(b, slot)
				if a.HomeCity == here || !s.uniform.Chance(threshold) {
					slot++
					continue
				}
				if _, err := c.Move(here, b, slot, a.HomeCity); err != nil {
					return fmt.Errorf("return agent %d home: %w", a.ID, err)
				}
				s.Stats.Homecomings++
			}
		}
	}
	return nil
}
