// Agent spawning: creates the initial population of each city.
package agents

// Spawner issues agents with sequential, globally unique ids.
type Spawner struct {
	nextID AgentID
}

// NewSpawner creates a spawner whose first agent gets id 0.
func NewSpawner() *Spawner {
	return &Spawner{}
}

// SetNextID sets the next agent ID to be issued (used when restoring from a checkpoint).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the id the next spawned agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

// Spawn creates a single agent with the given home and status.
func (s *Spawner) Spawn(home CityID, status Status) *Agent {
	a := &Agent{
		ID:       s.nextID,
		HomeCity: home,
		Status:   status,
	}
	s.nextID++
	return a
}

// SpawnCity creates the residents of one city. Infected agents are issued
// first, then susceptible ones, so a city's infected residents hold the
// lowest ids of its block.
func (s *Spawner) SpawnCity(home CityID, population, infected int) []*Agent {
	if infected > population {
		infected = population
	}
	if infected < 0 {
		infected = 0
	}
	out := make([]*Agent, 0, max(population, 0))
	for i := 0; i < population; i++ {
		status := Susceptible
		if i < infected {
			status = Infected
		}
		out = append(out, s.Spawn(home, status))
	}
	return out
}
