package world

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/talgya/epiworld/internal/agents"
)

func twoCities() []CityRecord {
	return []CityRecord{
		{Code: 500011, Population: 100, Infected: 10, Lat: 50.08, Lon: 14.42, Area: 10},
		{Code: 500012, Population: 50, Infected: 0, Lat: 49.19, Lon: 16.61, Area: 5},
	}
}

func TestNewCountry_Seeded(t *testing.T) {
	c, err := NewCountry(twoCities(), agents.NewSpawner())
	if err != nil {
		t.Fatalf("NewCountry: %v", err)
	}
	if c.Cities[0].Population != 100 || c.Cities[0].Infected != 10 {
		t.Errorf("city A = %d/%d, want 100/10", c.Cities[0].Population, c.Cities[0].Infected)
	}
	if c.Cities[1].Population != 50 || c.Cities[1].Infected != 0 {
		t.Errorf("city B = %d/%d, want 50/0", c.Cities[1].Population, c.Cities[1].Infected)
	}
	if c.Cities[0].Agents.BucketCount() != 10 {
		t.Errorf("city A buckets = %d, want 10", c.Cities[0].Agents.BucketCount())
	}
	if err := c.Audit(); err != nil {
		t.Errorf("Audit: %v", err)
	}

	// Infected residents get the lowest ids of the first city.
	a, ok := c.Cities[0].Agents.Find(0)
	if !ok || a.Status != agents.Infected {
		t.Errorf("agent 0 = %+v, want infected", a)
	}
	b, ok := c.Cities[1].Agents.Find(100)
	if !ok || b.HomeCity != 1 {
		t.Errorf("agent 100 = %+v, want home city 1", b)
	}
}

func TestNewCountry_Skeleton(t *testing.T) {
	c, err := NewCountry(twoCities(), nil)
	if err != nil {
		t.Fatalf("NewCountry: %v", err)
	}
	if c.TotalPopulation() != 0 {
		t.Errorf("skeleton population = %d, want 0", c.TotalPopulation())
	}
	if _, err := NewCountry(nil, nil); !errors.Is(err, ErrNoCities) {
		t.Errorf("NewCountry(nil) = %v, want ErrNoCities", err)
	}
}

func TestCountry_MoveKeepsCaches(t *testing.T) {
	c, _ := NewCountry(twoCities(), agents.NewSpawner())

	// Move every agent of city A's bucket 0 to city B.
	moved := 0
	infectedMoved := 0
	for c.Cities[0].Agents.BucketLen(0) > 0 {
		a, err := c.Move(0, 0, 0, 1)
		if err != nil {
			t.Fatalf("Move: %v", err)
		}
		moved++
		if a.IsInfected() {
			infectedMoved++
		}
	}
	if got := c.Cities[0].Population + c.Cities[1].Population; got != 150 {
		t.Errorf("total population = %d, want 150", got)
	}
	if c.Cities[1].Population != 50+moved {
		t.Errorf("B population = %d, want %d", c.Cities[1].Population, 50+moved)
	}
	if c.Cities[1].Infected != infectedMoved {
		t.Errorf("B infected = %d, want %d", c.Cities[1].Infected, infectedMoved)
	}
	if err := c.Audit(); err != nil {
		t.Errorf("Audit: %v", err)
	}

	if _, err := c.Move(0, 0, 0, 7); !errors.Is(err, ErrUnknownCity) {
		t.Errorf("Move to unknown city = %v, want ErrUnknownCity", err)
	}
}

func TestCountry_AuditDetectsMismatch(t *testing.T) {
	c, _ := NewCountry(twoCities(), agents.NewSpawner())
	c.Cities[1].Infected = 3
	if err := c.Audit(); !errors.Is(err, ErrCacheMismatch) {
		t.Errorf("Audit = %v, want ErrCacheMismatch", err)
	}
}

func TestCountry_MovedFlags(t *testing.T) {
	c, _ := NewCountry(twoCities(), agents.NewSpawner())
	if c.HasMoved(5) {
		t.Fatal("fresh country reports a move")
	}
	c.MarkMoved(5)
	c.MarkMoved(1000) // beyond the seeded range
	if !c.HasMoved(5) || !c.HasMoved(1000) {
		t.Error("MarkMoved not recorded")
	}
	c.ClearMoved()
	if c.HasMoved(5) || c.HasMoved(1000) {
		t.Error("ClearMoved left flags set")
	}
}

func TestPlanarDistance(t *testing.T) {
	a := &City{Lat: 50, Lon: 14}
	b := &City{Lat: 51, Lon: 14}
	if d := PlanarDistance(a, b); math.Abs(d-KmPerDegree) > 1e-9 {
		t.Errorf("one degree of latitude = %v, want %v", d, KmPerDegree)
	}
	c := &City{Lat: 50, Lon: 15}
	want := KmPerDegree * math.Cos(50*math.Pi/180)
	if d := PlanarDistance(a, c); math.Abs(d-want) > 1e-9 {
		t.Errorf("one degree of longitude at 50N = %v, want %v", d, want)
	}
	if d := PlanarDistance(a, a); d != 0 {
		t.Errorf("self distance = %v, want 0", d)
	}
}

func TestRefreshDistances_SortedWithSourceLast(t *testing.T) {
	recs := Generate(SmallTestConfig())
	c, err := NewCountry(recs, nil)
	if err != nil {
		t.Fatalf("NewCountry: %v", err)
	}
	for src := range c.Cities {
		if err := c.RefreshDistances(agents.CityID(src)); err != nil {
			t.Fatalf("RefreshDistances(%d): %v", src, err)
		}
		for i := 1; i < len(c.Distances); i++ {
			if c.Distances[i-1].Distance > c.Distances[i].Distance {
				t.Fatalf("table not sorted at %d", i)
			}
		}
		last := c.Distances[len(c.Distances)-1]
		if last.City != agents.CityID(src) || !math.IsInf(last.Distance, 1) {
			t.Errorf("last entry = %+v, want source %d at +Inf", last, src)
		}
	}
	if err := c.RefreshDistances(-1); !errors.Is(err, ErrUnknownCity) {
		t.Errorf("RefreshDistances(-1) = %v, want ErrUnknownCity", err)
	}
}

func table(ds ...float64) []CityDistance {
	out := make([]CityDistance, len(ds))
	for i, d := range ds {
		out[i] = CityDistance{City: agents.CityID(i), Distance: d}
	}
	return out
}

func TestInterpolationSearch_Boundaries(t *testing.T) {
	tab := table(2, 5, 9, 14, 30)
	cases := []struct {
		target float64
		want   int
	}{
		{-10, 0},
		{1.9, 0},
		{2, 0},
		{5, 1},
		{9, 2},
		{10, 3},
		{30, 4},
		{31, 4},
		{math.NaN(), 0},
	}
	for _, c := range cases {
		if got := InterpolationSearch(c.target, tab); got != c.want {
			t.Errorf("InterpolationSearch(%v) = %d, want %d", c.target, got, c.want)
		}
	}
	if got := InterpolationSearch(1, nil); got != -1 {
		t.Errorf("empty table = %d, want -1", got)
	}
}

func TestInterpolationSearch_OvershootingGuess(t *testing.T) {
	// The first guess for 40 lands on 50, above the target.
	tab := table(0, 1, 2, 50, 51, 52)
	if got := InterpolationSearch(40, tab); got != 3 {
		t.Errorf("InterpolationSearch(40) = %d, want 3", got)
	}
}

func TestInterpolationSearch_InfiniteTail(t *testing.T) {
	tab := table(3, 8, math.Inf(1))
	if got := InterpolationSearch(100, tab); got != 2 {
		t.Errorf("beyond finite range = %d, want 2", got)
	}
	if got := InterpolationSearch(4, tab); got != 1 {
		t.Errorf("InterpolationSearch(4) = %d, want 1", got)
	}
}

func TestInterpolationSearch_StaysInsideTable(t *testing.T) {
	// A NaN distance sorts first; no target may index past the table.
	tabs := [][]CityDistance{
		table(math.NaN(), 4, 9, math.Inf(1)),
		table(math.Inf(1)),
		table(math.Inf(1), math.Inf(1)),
		table(7),
	}
	for i, tab := range tabs {
		for _, q := range []float64{-1, 0, 4, 5, 9, 1e9, math.Inf(1), math.NaN()} {
			if got := InterpolationSearch(q, tab); got < 0 || got >= len(tab) {
				t.Errorf("table %d: InterpolationSearch(%v) = %d, want slot in [0, %d)", i, q, got, len(tab))
			}
		}
	}
}

func TestInterpolationSearch_FinitePrefix(t *testing.T) {
	// The source slot is +Inf; targets inside the finite range never reach it.
	tab := table(1, 2, 3, 4, 5, 6, 7, 8, math.Inf(1))
	for q, want := range map[float64]int{0.5: 0, 4: 3, 7.5: 7, 8: 7, 8.01: 8} {
		if got := InterpolationSearch(q, tab); got != want {
			t.Errorf("InterpolationSearch(%v) = %d, want %d", q, got, want)
		}
	}
}

func TestInterpolationSearch_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ds := make([]float64, 200)
	for i := range ds {
		ds[i] = rng.ExpFloat64() * 50
	}
	tab := table(ds...)
	sortTable(tab)

	prev := 0
	for q := -5.0; q < 600; q += 0.25 {
		got := InterpolationSearch(q, tab)
		if got < prev {
			t.Fatalf("query %v returned %d after %d", q, got, prev)
		}
		if got < 0 || got >= len(tab) {
			t.Fatalf("query %v returned out-of-range %d", q, got)
		}
		prev = got
	}
}

func sortTable(tab []CityDistance) {
	for i := 1; i < len(tab); i++ {
		for j := i; j > 0 && tab[j].Distance < tab[j-1].Distance; j-- {
			tab[j], tab[j-1] = tab[j-1], tab[j]
		}
	}
}

func TestLoadCityRecords_CzechHeader(t *testing.T) {
	in := "kod_obce,nazev,pocet_obyvatel,pocet_nakazenych,latitude,longitude,vymera\n" +
		"554782,Praha,1300000,12,50.0755,14.4378,496.21\n" +
		"582786,Brno,380000,0,49.1951,16.6068,\"230,22\"\n"
	recs, err := LoadCityRecords(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadCityRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	want := CityRecord{Code: 582786, Population: 380000, Lat: 49.1951, Lon: 16.6068, Area: 230.22}
	if recs[1] != want {
		t.Errorf("recs[1] = %+v, want %+v", recs[1], want)
	}
	if recs[0].Infected != 12 {
		t.Errorf("Praha infected = %d, want 12", recs[0].Infected)
	}
}

func TestLoadCityRecords_Errors(t *testing.T) {
	cases := map[string]string{
		"missing column": "city_id,population,latitude,longitude,area\n1,2,3,4,5\n",
		"bad number":     "city_id,population,infected,latitude,longitude,area\n1,abc,0,3,4,5\n",
		"too infected":   "city_id,population,infected,latitude,longitude,area\n1,2,3,3,4,5\n",
		"no rows":        "city_id,population,infected,latitude,longitude,area\n",
	}
	invalid := map[string]string{
		"nan latitude":  "city_id,population,infected,latitude,longitude,area\n1,50,0,NaN,16.6,5\n",
		"inf longitude": "city_id,population,infected,latitude,longitude,area\n1,50,0,49.1,+Inf,5\n",
		"inf area":      "city_id,population,infected,latitude,longitude,area\n1,50,0,49.1,16.6,-Inf\n",
		"negative area": "city_id,population,infected,latitude,longitude,area\n1,50,0,49.1,16.6,-2\n",
	}
	for name, in := range invalid {
		if _, err := LoadCityRecords(strings.NewReader(in)); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("%s: err = %v, want ErrInvalidValue", name, err)
		}
		cases[name] = in
	}
	for name, in := range cases {
		if _, err := LoadCityRecords(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	_, err := LoadCityRecords(strings.NewReader(cases["missing column"]))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("missing column err = %v, want ErrMissingColumn", err)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg)
	b := Generate(cfg)
	if len(a) != cfg.Cities {
		t.Fatalf("len = %d, want %d", len(a), cfg.Cities)
	}
	infected := 0
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("record %d differs between runs", i)
		}
		if a[i].Population <= 0 || a[i].Area <= 0 {
			t.Errorf("record %d has population %d area %v", i, a[i].Population, a[i].Area)
		}
		if a[i].Lat < cfg.MinLat || a[i].Lat > cfg.MaxLat {
			t.Errorf("record %d latitude %v outside box", i, a[i].Lat)
		}
		infected += a[i].Infected
	}
	if infected != cfg.InfectedCities*cfg.InfectedPerCity {
		t.Errorf("infected = %d, want %d", infected, cfg.InfectedCities*cfg.InfectedPerCity)
	}
}
