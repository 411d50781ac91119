package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/epiworld/internal/entropy"
)

const complete = `# epidemic parameters
travel_mean: 15
travel_stddev: 25
infection_mean: 12
infection_stddev: 2.5
immunity_mean: 60
immunity_stddev: 10
meeting_factor: 0.02
moving_fraction: 0.1
death_threshold: 0.001
home_high: 0.9
home_low: 0.1

seed: 1234
gaussian: fast
`

func TestParse_Complete(t *testing.T) {
	cfg, err := Parse(strings.NewReader(complete))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.TravelMean != 15 || cfg.TravelStdDev != 25 {
		t.Errorf("travel = %v/%v, want 15/25", cfg.TravelMean, cfg.TravelStdDev)
	}
	if cfg.InfectionStdDev != 2.5 {
		t.Errorf("InfectionStdDev = %v, want 2.5", cfg.InfectionStdDev)
	}
	if cfg.Seed != 1234 {
		t.Errorf("Seed = %d, want 1234", cfg.Seed)
	}
	if cfg.Strategy() != entropy.StrategyFast {
		t.Errorf("Strategy = %v, want fast", cfg.Strategy())
	}
	// Keys not in the file keep their defaults.
	if cfg.HomeInterval != Default().HomeInterval {
		t.Errorf("HomeInterval = %d, want default %d", cfg.HomeInterval, Default().HomeInterval)
	}
}

func TestParse_MissingKeys(t *testing.T) {
	in := strings.Replace(complete, "home_low: 0.1\n", "", 1)
	_, err := Parse(strings.NewReader(in))
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("err = %v, want ErrMissingKey", err)
	}
	if !strings.Contains(err.Error(), "home_low") {
		t.Errorf("error %q does not name home_low", err)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{"no separator", "travel_mean 15", ErrMalformed},
		{"unknown key", "colour: blue", ErrUnknownKey},
		{"out of range", "moving_fraction: 1.5", ErrInvalid},
		{"bad strategy", "gaussian: ziggurat", ErrInvalid},
		{"nan probability", "moving_fraction: NaN", ErrInvalid},
		{"nan threshold", "death_threshold: NaN", ErrInvalid},
		{"nan factor", "meeting_factor: NaN", ErrInvalid},
		{"infinite mean", "infection_mean: +Inf", ErrInvalid},
		{"infinite stddev", "immunity_stddev: Inf", ErrInvalid},
		{"infinite travel", "travel_mean: -Inf", ErrInvalid},
		{"nan travel", "travel_mean: NaN", ErrInvalid},
	}
	for _, c := range cases {
		_, err := Parse(strings.NewReader(complete + c.line + "\n"))
		if !errors.Is(err, c.want) {
			t.Errorf("%s: err = %v, want %v", c.name, err, c.want)
		}
	}

	if _, err := Parse(strings.NewReader(complete + "travel_mean: far\n")); err == nil {
		t.Error("non-numeric value accepted")
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative death", func(c *Config) { c.DeathThreshold = -0.1 }},
		{"home high above one", func(c *Config) { c.HomeHigh = 1.2 }},
		{"negative stddev", func(c *Config) { c.TravelStdDev = -1 }},
		{"zero infection mean", func(c *Config) { c.InfectionMean = 0 }},
		{"home interval zero", func(c *Config) { c.HomeInterval = 0 }},
		{"negative days", func(c *Config) { c.Days = -1 }},
		{"nan home low", func(c *Config) { c.HomeLow = math.NaN() }},
		{"infinite contact stddev", func(c *Config) { c.ContactStdDev = math.Inf(1) }},
	}
	for _, c := range cases {
		cfg := Default()
		c.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: Validate = %v, want ErrInvalid", c.name, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte(complete), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MeetingFactor != 0.02 {
		t.Errorf("MeetingFactor = %v, want 0.02", cfg.MeetingFactor)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}
