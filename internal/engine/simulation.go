// Simulation ties the country, the configuration, and the samplers together
// and advances the epidemic hour by hour.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/epiworld/internal/config"
	"github.com/talgya/epiworld/internal/entropy"
	"github.com/talgya/epiworld/internal/world"
)

// HoursPerDay is the number of movement steps in one simulated day.
const HoursPerDay = 24

// Sampler stream offsets. Each stochastic concern draws from its own stream
// of the run seed.
const (
	streamTravel = iota + 1
	streamInfection
	streamImmunity
	streamContact
	streamUniform
)

var (
	// ErrNilSimulation is returned by every step called on a nil simulation
	// or one without a country.
	ErrNilSimulation = errors.New("nil simulation")

	// ErrThreshold is returned for a homecoming threshold outside [0, 1].
	ErrThreshold = errors.New("threshold outside [0, 1]")
)

// Simulation holds the complete epidemic state.
type Simulation struct {
	Country *world.Country
	Config  *config.Config
	Seed    int64

	Day  uint32 // completed days; also the frame number
	Hour int    // hours completed within the current day

	// Stats accumulates the counters of the day in progress.
	Stats DayStats

	travel    *entropy.Gaussian
	infection *entropy.Gaussian
	immunity  *entropy.Gaussian
	contact   *entropy.Gaussian
	uniform   *entropy.Uniform
}

// NewSimulation wires samplers for cfg around an already populated country.
// A zero seed is replaced by one from crypto/rand.
func NewSimulation(c *world.Country, cfg *config.Config, seed int64) (*Simulation, error) {
	if c == nil || cfg == nil {
		return nil, ErrNilSimulation
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	seed = entropy.Seed(seed)
	strategy := cfg.Strategy()

	s := &Simulation{
		Country:   c,
		Config:    cfg,
		Seed:      seed,
		travel:    entropy.NewGaussian(entropy.NewRand(seed, streamTravel), cfg.TravelMean, cfg.TravelStdDev, strategy),
		infection: entropy.NewGaussian(entropy.NewRand(seed, streamInfection), cfg.InfectionMean, cfg.InfectionStdDev, strategy),
		immunity:  entropy.NewGaussian(entropy.NewRand(seed, streamImmunity), cfg.ImmunityMean, cfg.ImmunityStdDev, strategy),
		contact:   entropy.NewGaussian(entropy.NewRand(seed, streamContact), cfg.ContactMean, cfg.ContactStdDev, strategy),
		uniform:   entropy.NewUniform(entropy.NewRand(seed, streamUniform)),
	}
	s.Stats.Day = s.Day + 1
	return s, nil
}

// SetDay positions the simulation after day completed days (used when
// resuming from a checkpoint).
func (s *Simulation) SetDay(day uint32) {
	s.Day = day
	s.Hour = 0
	s.Stats = DayStats{Day: day + 1}
}

// homeThreshold returns the homecoming probability for the hour just
// completed: high on every HomeInterval-th hour, low otherwise.
func (s *Simulation) homeThreshold(hour int) float64 {
	if (hour+1)%s.Config.HomeInterval == 0 {
		return s.Config.HomeHigh
	}
	return s.Config.HomeLow
}

// SimulateDay runs 24 hourly steps, each followed by homecoming, then the
// daily status update. It returns the finished day's statistics.
func (s *Simulation) SimulateDay() (DayStats, error) {
	if s == nil || s.Country == nil {
		return DayStats{}, ErrNilSimulation
	}
	for s.Hour < HoursPerDay {
		if err := s.SimulationStep(); err != nil {
			return DayStats{}, fmt.Errorf("day %d hour %d: %w", s.Day+1, s.Hour, err)
		}
		if err := s.GoBackHome(s.homeThreshold(s.Hour)); err != nil {
			return DayStats{}, fmt.Errorf("day %d hour %d homecoming: %w", s.Day+1, s.Hour, err)
		}
		s.Hour++
	}
	if err := s.UpdateCitizenStatuses(); err != nil {
		return DayStats{}, fmt.Errorf("day %d status update: %w", s.Day+1, err)
	}

	s.Day++
	s.Hour = 0
	stats := s.Stats
	stats.Population = s.Country.TotalPopulation()
	stats.Infected = s.Country.TotalInfected()
	stats.Susceptible = stats.Population - stats.Infected - stats.Recovered
	s.Stats = DayStats{Day: s.Day + 1}

	s.logDay(stats)
	return stats, nil
}

func (s *Simulation) logDay(st DayStats) {
	slog.Info("daily report",
		"day", st.Day,
		"population", humanize.Comma(int64(st.Population)),
		"infected", humanize.Comma(int64(st.Infected)),
		"recovered", humanize.Comma(int64(st.Recovered)),
		"new_infections", st.NewInfections,
		"recoveries", st.Recoveries,
		"deaths", st.Deaths,
		"moves", humanize.Comma(int64(st.Moves)),
	)
}

// Snapshot copies the per-city caches into an immutable view.
func (s *Simulation) Snapshot(last DayStats) *Snapshot {
	cities := make([]CitySnapshot, len(s.Country.Cities))
	for i, c := range s.Country.Cities {
		cities[i] = CitySnapshot{
			Code:       c.Code,
			Lat:        c.Lat,
			Lon:        c.Lon,
			Population: c.Population,
			Infected:   c.Infected,
		}
	}
	return &Snapshot{Day: s.Day, Stats: last, Cities: cities}
}
