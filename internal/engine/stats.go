package engine

import (
	"sync/atomic"
	"time"
)

// DayStats are the counters of one simulated day. Population, Infected,
// Recovered and Susceptible are end-of-day totals; the rest count events
// during the day.
type DayStats struct {
	Day           uint32 `json:"day" db:"day"`
	Population    int    `json:"population" db:"population"`
	Infected      int    `json:"infected" db:"infected"`
	Recovered     int    `json:"recovered" db:"recovered"`
	Susceptible   int    `json:"susceptible" db:"susceptible"`
	NewInfections int    `json:"new_infections" db:"new_infections"`
	Recoveries    int    `json:"recoveries" db:"recoveries"`
	ImmunityLost  int    `json:"immunity_lost" db:"immunity_lost"`
	Deaths        int    `json:"deaths" db:"deaths"`
	Moves         int    `json:"moves" db:"moves"`
	Homecomings   int    `json:"homecomings" db:"homecomings"`
}

// CitySnapshot is the published state of one city.
type CitySnapshot struct {
	Code       int32   `json:"city_id"`
	Lat        float64 `json:"latitude"`
	Lon        float64 `json:"longitude"`
	Population int     `json:"population"`
	Infected   int     `json:"infected"`
}

// Snapshot is the state at the end of a completed day. Readers outside the
// stepping goroutine only ever see snapshots, never the live country.
type Snapshot struct {
	Day       uint32         `json:"day"`
	Published time.Time      `json:"published"`
	Stats     DayStats       `json:"stats"`
	Cities    []CitySnapshot `json:"cities"`
}

// Board holds the latest published snapshot.
type Board struct {
	latest atomic.Pointer[Snapshot]
}

// Publish replaces the current snapshot.
func (b *Board) Publish(s *Snapshot) {
	if s.Published.IsZero() {
		s.Published = time.Now().UTC()
	}
	b.latest.Store(s)
}

// Latest returns the most recent snapshot, or nil before the first publish.
func (b *Board) Latest() *Snapshot {
	if b == nil {
		return nil
	}
	return b.latest.Load()
}
