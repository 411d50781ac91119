// Population dynamics: the daily infection status cycle and deaths.
package engine

import (
	"fmt"

	"github.com/talgya/epiworld/internal/agents"
)

// UpdateCitizenStatuses runs once per simulated day. Every non-susceptible
// agent ages one day in its status. Infected agents may die (removed for
// good); survivors recover once their timer reaches a sampled infection
// duration. Recovered agents lose immunity once their timer reaches a
// sampled immunity duration.
func (s *Simulation) UpdateCitizenStatuses() error {
	if s == nil || s.Country == nil {
		return ErrNilSimulation
	}
	c := s.Country
	recovered := 0

	for i, city := range c.Cities {
		here := agents.CityID(i)
		idx := city.Agents
		for b := 0; b < idx.BucketCount(); b++ {
			for slot := 0; slot < idx.BucketLen(b); {
				a, _ := idx.Get(b, slot)
				died, err := s.advance(here, b, slot, a)
				if err != nil {
					return err
				}
				if died {
					continue
				}
				if a.Status == agents.Recovered {
					recovered++
				}
				slot++
			}
		}
	}
	s.Stats.Recovered = recovered
	return nil
}

// advance applies one day to a. It reports true when the agent died and was
// removed from (bucket, slot).
func (s *Simulation) advance(here agents.CityID, bucket, slot int, a *agents.Agent) (bool, error) {
	if a.Status == agents.Susceptible {
		return false, nil
	}
	a.Tick()

	switch a.Status {
	case agents.Infected:
		if s.uniform.Chance(s.Config.DeathThreshold) {
			if _, err := s.Country.RemoveAt(here, bucket, slot); err != nil {
				return false, fmt.Errorf("remove dead agent %d: %w", a.ID, err)
			}
			s.Stats.Deaths++
			return true, nil
		}
		d, err := s.infection.Next()
		if err != nil {
			return false, fmt.Errorf("infection duration: %w", err)
		}
		if float64(a.StatusTimer) >= d && a.Recover() {
			s.Country.Cities[here].Infected--
			s.Stats.Recoveries++
		}

	case agents.Recovered:
		d, err := s.immunity.Next()
		if err != nil {
			return false, fmt.Errorf("immunity duration: %w", err)
		}
		if float64(a.StatusTimer) >= d && a.LoseImmunity() {
			s.Stats.ImmunityLost++
		}
	}
	return false, nil
}
