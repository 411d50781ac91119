// Synthetic country generation using layered simplex noise.
// Used when no population table is supplied: cities are scattered over a
// bounding box and their populations follow a noise-shaped density field.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds synthetic country parameters.
type GenConfig struct {
	Cities          int     // Number of cities
	Seed            int64   // Random seed (0 = random)
	MinLat          float64 // Bounding box, degrees
	MaxLat          float64
	MinLon          float64
	MaxLon          float64
	MaxPopulation   int // Population of the densest city
	InfectedCities  int // Cities seeded with infection
	InfectedPerCity int // Infected residents per seeded city
}

// DefaultGenConfig returns a country roughly the size of Czechia.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Cities:          600,
		MinLat:          48.6,
		MaxLat:          51.0,
		MinLon:          12.1,
		MaxLon:          18.8,
		MaxPopulation:   20000,
		InfectedCities:  3,
		InfectedPerCity: 10,
	}
}

// SmallTestConfig returns a tiny country for rapid iteration.
func SmallTestConfig() GenConfig {
	cfg := DefaultGenConfig()
	cfg.Cities = 12
	cfg.Seed = 42
	cfg.MaxPopulation = 500
	cfg.InfectedCities = 1
	cfg.InfectedPerCity = 5
	return cfg
}

// Generate creates city records. The same seed always yields the same
// country.
func Generate(cfg GenConfig) []CityRecord {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	// Two noise layers: settlement density and land area per resident.
	densityNoise := opensimplex.NewNormalized(seed)
	sprawlNoise := opensimplex.NewNormalized(seed + 1)

	records := make([]CityRecord, 0, cfg.Cities)
	for i := 0; i < cfg.Cities; i++ {
		lat := cfg.MinLat + rng.Float64()*(cfg.MaxLat-cfg.MinLat)
		lon := cfg.MinLon + rng.Float64()*(cfg.MaxLon-cfg.MinLon)

		density := octaveNoise(densityNoise, lat, lon, 4, 1.5, 0.5)
		sprawl := octaveNoise(sprawlNoise, lat, lon, 2, 0.8, 0.5)

		// Sharpen the field so a few cities dominate, like real settlement sizes.
		pop := int(math.Pow(density, 4)*float64(cfg.MaxPopulation)) + 10 + rng.Intn(50)
		area := 2 + sprawl*40 + float64(pop)/500

		records = append(records, CityRecord{
			Code:       int32(500000 + i),
			Population: pop,
			Lat:        lat,
			Lon:        lon,
			Area:       math.Round(area*100) / 100,
		})
	}

	// Seed infection in the most populous cities.
	for n := 0; n < cfg.InfectedCities && n < len(records); n++ {
		best := -1
		for i, r := range records {
			if r.Infected == 0 && (best < 0 || r.Population > records[best].Population) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		records[best].Infected = min(cfg.InfectedPerCity, records[best].Population)
		if records[best].Infected == 0 {
			break
		}
	}
	return records
}

// octaveNoise sums several noise octaves and normalises back to [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
