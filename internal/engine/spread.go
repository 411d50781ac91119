// Infection spread within each city.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/epiworld/internal/agents"
	"github.com/talgya/epiworld/internal/world"
)

// SpreadPhenomenon infects new agents city by city. Every infected agent
// contributes contact × density × meeting factor, with the contact fraction
// resampled into [0, 1]; the rounded sum is how many residents are drawn at
// random (bucket, then slot). Drawn susceptible agents become infected;
// infected and recovered ones are left alone.
func (s *Simulation) SpreadPhenomenon() error {
	if s == nil || s.Country == nil {
		return ErrNilSimulation
	}
	for _, city := range s.Country.Cities {
		if err := s.spreadIn(city); err != nil {
			return fmt.Errorf("city %d: %w", city.Code, err)
		}
	}
	return nil
}

func (s *Simulation) spreadIn(city *world.City) error {
	if city.Infected == 0 || city.Population == 0 {
		return nil
	}
	density := city.Density()

	var pressure float64
	var sampleErr error
	city.Agents.Each(func(a *agents.Agent) bool {
		if !a.IsInfected() {
			return true
		}
		f, err := s.contact.NextInRange(0, 1)
		if err != nil {
			sampleErr = err
			return false
		}
		pressure += f * density * s.Config.MeetingFactor
		return true
	})
	if sampleErr != nil {
		return fmt.Errorf("contact fraction: %w", sampleErr)
	}

	toInfect := int(math.Min(math.Round(pressure), float64(city.Population)))
	for n := 0; n < toInfect; n++ {
		a, ok := s.pickResident(city.Agents)
		if !ok {
			break
		}
		if a.Infect() {
			city.Infected++
			s.Stats.NewInfections++
		}
	}
	return nil
}

// pickResident draws a random bucket, stepping forward past empty ones, then
// a random slot within it.
func (s *Simulation) pickResident(idx *world.AgentIndex) (*agents.Agent, bool) {
	n := idx.BucketCount()
	if n == 0 || idx.Len() == 0 {
		return nil, false
	}
	start := s.uniform.Intn(n)
	for i := 0; i < n; i++ {
		b := (start + i) % n
		if l := idx.BucketLen(b); l > 0 {
			return idx.Get(b, s.uniform.Intn(l))
		}
	}
	return nil, false
}
