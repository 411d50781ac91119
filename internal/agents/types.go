// Package agents provides the agent data model and the infection status cycle.
package agents

import "fmt"

// AgentID is a unique identifier for an agent.
type AgentID uint64

// CityID is the position of a city in the country's city list.
type CityID = int32

// Status is an agent's infection state.
type Status uint8

const (
	Susceptible Status = iota
	Infected
	Recovered
)

func (s Status) String() string {
	switch s {
	case Susceptible:
		return "susceptible"
	case Infected:
		return "infected"
	case Recovered:
		return "recovered"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	return s <= Recovered
}

// MaxStatusTimer is where the days-in-status counter saturates. The
// checkpoint stores the timer in a single byte.
const MaxStatusTimer = 255

// Agent is one simulated person.
type Agent struct {
	ID          AgentID `json:"id"`
	HomeCity    CityID  `json:"home_city"`
	Status      Status  `json:"status"`
	StatusTimer uint8   `json:"status_timer"` // days since the last transition
}

// Key satisfies collections.Keyed so agents can live in an Index.
func (a *Agent) Key() int64 {
	return int64(a.ID)
}

// IsNil reports a nil agent pointer.
func (a *Agent) IsNil() bool { return a == nil }

// IsInfected is shorthand used by the cache bookkeeping.
func (a *Agent) IsInfected() bool {
	return a.Status == Infected
}

// Tick advances the days-in-status counter, saturating at MaxStatusTimer.
func (a *Agent) Tick() {
	if a.StatusTimer < MaxStatusTimer {
		a.StatusTimer++
	}
}

// Infect moves a susceptible agent to Infected. Infected and recovered agents
// are left alone; the return value says whether a transition happened.
func (a *Agent) Infect() bool {
	if a.Status != Susceptible {
		return false
	}
	a.transition(Infected)
	return true
}

// Recover moves an infected agent to Recovered.
func (a *Agent) Recover() bool {
	if a.Status != Infected {
		return false
	}
	a.transition(Recovered)
	return true
}

// LoseImmunity moves a recovered agent back to Susceptible.
func (a *Agent) LoseImmunity() bool {
	if a.Status != Recovered {
		return false
	}
	a.transition(Susceptible)
	return true
}

func (a *Agent) transition(to Status) {
	a.Status = to
	a.StatusTimer = 0
}
