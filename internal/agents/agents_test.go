package agents

import "testing"

func TestStatusCycle(t *testing.T) {
	a := &Agent{ID: 1}
	a.Tick()
	a.Tick()

	steps := []struct {
		name string
		fn   func() bool
		want Status
	}{
		{"infect", a.Infect, Infected},
		{"recover", a.Recover, Recovered},
		{"lose immunity", a.LoseImmunity, Susceptible},
	}
	for _, s := range steps {
		a.Tick()
		if !s.fn() {
			t.Fatalf("%s: transition refused from %v", s.name, a.Status)
		}
		if a.Status != s.want {
			t.Errorf("%s: Status = %v, want %v", s.name, a.Status, s.want)
		}
		if a.StatusTimer != 0 {
			t.Errorf("%s: StatusTimer = %d, want 0", s.name, a.StatusTimer)
		}
	}
}

func TestTransitionsOutOfOrderRefused(t *testing.T) {
	cases := []struct {
		from Status
		fn   func(*Agent) bool
	}{
		{Infected, (*Agent).Infect},
		{Recovered, (*Agent).Infect},
		{Susceptible, (*Agent).Recover},
		{Recovered, (*Agent).Recover},
		{Susceptible, (*Agent).LoseImmunity},
		{Infected, (*Agent).LoseImmunity},
	}
	for _, c := range cases {
		a := &Agent{Status: c.from, StatusTimer: 7}
		if c.fn(a) {
			t.Errorf("transition from %v succeeded", c.from)
		}
		if a.Status != c.from || a.StatusTimer != 7 {
			t.Errorf("refused transition mutated agent: %+v", a)
		}
	}
}

func TestTickSaturates(t *testing.T) {
	a := &Agent{StatusTimer: MaxStatusTimer - 1}
	a.Tick()
	a.Tick()
	if a.StatusTimer != MaxStatusTimer {
		t.Errorf("StatusTimer = %d, want %d", a.StatusTimer, MaxStatusTimer)
	}
}

func TestSpawnCity_InfectedFirst(t *testing.T) {
	s := NewSpawner()
	s.SetNextID(100)

	got := s.SpawnCity(3, 5, 2)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i, a := range got {
		if a.ID != AgentID(100+i) {
			t.Errorf("agent %d ID = %d, want %d", i, a.ID, 100+i)
		}
		if a.HomeCity != 3 {
			t.Errorf("agent %d HomeCity = %d, want 3", i, a.HomeCity)
		}
		want := Susceptible
		if i < 2 {
			want = Infected
		}
		if a.Status != want {
			t.Errorf("agent %d Status = %v, want %v", i, a.Status, want)
		}
	}
	if s.NextID() != 105 {
		t.Errorf("NextID = %d, want 105", s.NextID())
	}
}

func TestSpawnCity_ClampsInfected(t *testing.T) {
	got := NewSpawner().SpawnCity(0, 2, 9)
	for _, a := range got {
		if a.Status != Infected {
			t.Errorf("Status = %v, want infected", a.Status)
		}
	}
	if len(NewSpawner().SpawnCity(0, 0, 0)) != 0 {
		t.Error("empty city spawned agents")
	}
}

func TestAgentKey(t *testing.T) {
	a := &Agent{ID: 42}
	if a.Key() != 42 {
		t.Errorf("Key = %d, want 42", a.Key())
	}
	if a.IsNil() {
		t.Error("IsNil on a live agent")
	}
	var none *Agent
	if !none.IsNil() {
		t.Error("IsNil on a nil agent = false")
	}
}
