// Package config holds the simulation parameters. A Config is built once at
// startup, validated, and then passed by pointer to the engine and its
// samplers; nothing mutates it afterwards.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/talgya/epiworld/internal/entropy"
)

var (
	// ErrMalformed is returned for a line that is not key:value.
	ErrMalformed = errors.New("malformed config line")

	// ErrMissingKey is returned when a required key is absent.
	ErrMissingKey = errors.New("missing config key")

	// ErrUnknownKey is returned for keys the simulation does not know.
	ErrUnknownKey = errors.New("unknown config key")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("invalid config value")
)

// Config is the full set of engine parameters.
type Config struct {
	Seed int64 `json:"seed"` // 0 draws a seed from crypto/rand

	TravelMean   float64 `json:"travel_mean"` // km
	TravelStdDev float64 `json:"travel_stddev"`

	InfectionMean   float64 `json:"infection_mean"` // days
	InfectionStdDev float64 `json:"infection_stddev"`

	ImmunityMean   float64 `json:"immunity_mean"` // days
	ImmunityStdDev float64 `json:"immunity_stddev"`

	ContactMean   float64 `json:"contact_mean"`
	ContactStdDev float64 `json:"contact_stddev"`

	MeetingFactor  float64 `json:"meeting_factor"`
	MovingFraction float64 `json:"moving_fraction"`
	DeathThreshold float64 `json:"death_threshold"`

	HomeHigh     float64 `json:"home_high"`
	HomeLow      float64 `json:"home_low"`
	HomeInterval int     `json:"home_interval"` // hours

	CheckpointInterval int    `json:"checkpoint_interval"` // days, 0 = only on shutdown
	Days               int    `json:"days"`                // 0 = run until stopped
	Gaussian           string `json:"gaussian"`            // "polar" or "fast"
}

// RequiredKeys must appear in every config file.
var RequiredKeys = []string{
	"travel_mean", "travel_stddev",
	"infection_mean", "infection_stddev",
	"immunity_mean", "immunity_stddev",
	"meeting_factor", "moving_fraction", "death_threshold",
	"home_high", "home_low",
}

// Default returns a config with every parameter set to a sane value.
func Default() *Config {
	return &Config{
		TravelMean:         20,
		TravelStdDev:       30,
		InfectionMean:      14,
		InfectionStdDev:    3,
		ImmunityMean:       90,
		ImmunityStdDev:     20,
		ContactMean:        0.5,
		ContactStdDev:      0.25,
		MeetingFactor:      0.01,
		MovingFraction:     0.05,
		DeathThreshold:     0.0005,
		HomeHigh:           0.8,
		HomeLow:            0.05,
		HomeInterval:       8,
		CheckpointInterval: 10,
		Gaussian:           "polar",
	}
}

// Load reads and validates a key:value config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads key:value lines over Default(). Blank lines and lines starting
// with '#' are skipped. Every key in RequiredKeys must be present, and the
// result must pass Validate.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	seen := make(map[string]bool)

	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: %w: %q", line, ErrMalformed, text)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if err := cfg.set(key, value); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var missing []string
	for _, k := range RequiredKeys {
		if !seen[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	floats := map[string]*float64{
		"travel_mean":      &c.TravelMean,
		"travel_stddev":    &c.TravelStdDev,
		"infection_mean":   &c.InfectionMean,
		"infection_stddev": &c.InfectionStdDev,
		"immunity_mean":    &c.ImmunityMean,
		"immunity_stddev":  &c.ImmunityStdDev,
		"contact_mean":     &c.ContactMean,
		"contact_stddev":   &c.ContactStdDev,
		"meeting_factor":   &c.MeetingFactor,
		"moving_fraction":  &c.MovingFraction,
		"death_threshold":  &c.DeathThreshold,
		"home_high":        &c.HomeHigh,
		"home_low":         &c.HomeLow,
	}
	ints := map[string]*int{
		"home_interval":       &c.HomeInterval,
		"checkpoint_interval": &c.CheckpointInterval,
		"days":                &c.Days,
	}

	if p, ok := floats[key]; ok {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*p = v
		return nil
	}
	if p, ok := ints[key]; ok {
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*p = v
		return nil
	}
	switch key {
	case "seed":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		c.Seed = v
		return nil
	case "gaussian":
		c.Gaussian = value
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Validate checks every parameter against its documented range.
func (c *Config) Validate() error {
	var errs []error
	finite := func(name string, v float64) bool {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%w: %s = %g, want a finite number", ErrInvalid, name, v))
			return false
		}
		return true
	}
	prob := func(name string, v float64) {
		if finite(name, v) && (v < 0 || v > 1) {
			errs = append(errs, fmt.Errorf("%w: %s = %g, want [0, 1]", ErrInvalid, name, v))
		}
	}
	nonNeg := func(name string, v float64) {
		if finite(name, v) && v < 0 {
			errs = append(errs, fmt.Errorf("%w: %s = %g, want >= 0", ErrInvalid, name, v))
		}
	}
	positive := func(name string, v float64) {
		if finite(name, v) && v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s = %g, want > 0", ErrInvalid, name, v))
		}
	}

	finite("travel_mean", c.TravelMean)
	prob("moving_fraction", c.MovingFraction)
	prob("death_threshold", c.DeathThreshold)
	prob("home_high", c.HomeHigh)
	prob("home_low", c.HomeLow)
	prob("contact_mean", c.ContactMean)
	nonNeg("travel_stddev", c.TravelStdDev)
	nonNeg("infection_stddev", c.InfectionStdDev)
	nonNeg("immunity_stddev", c.ImmunityStdDev)
	nonNeg("contact_stddev", c.ContactStdDev)
	nonNeg("meeting_factor", c.MeetingFactor)
	positive("infection_mean", c.InfectionMean)
	positive("immunity_mean", c.ImmunityMean)

	if c.HomeInterval < 1 || c.HomeInterval > 24 {
		errs = append(errs, fmt.Errorf("%w: home_interval = %d, want 1..24", ErrInvalid, c.HomeInterval))
	}
	if c.CheckpointInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: checkpoint_interval = %d, want >= 0", ErrInvalid, c.CheckpointInterval))
	}
	if c.Days < 0 {
		errs = append(errs, fmt.Errorf("%w: days = %d, want >= 0", ErrInvalid, c.Days))
	}
	if _, err := entropy.ParseStrategy(c.Gaussian); err != nil {
		errs = append(errs, fmt.Errorf("%w: gaussian: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

// Strategy returns the configured Gaussian strategy. Validate guarantees it
// parses.
func (c *Config) Strategy() entropy.Strategy {
	s, _ := entropy.ParseStrategy(c.Gaussian)
	return s
}
