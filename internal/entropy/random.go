// Package entropy provides the seeded random sources that drive every
// stochastic decision of the simulation.
// Seeds fall back to crypto/rand when the configuration does not fix one.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
	"time"
)

// Seed returns configured unchanged when it is non-zero, otherwise a fresh
// seed from crypto/rand.
func Seed(configured int64) int64 {
	if configured != 0 {
		return configured
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand should never fail; fall back to the clock.
		slog.Warn("crypto seed unavailable, using clock", "error", err)
		return time.Now().UnixNano()
	}
	s := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if s == 0 {
		s = 1
	}
	return s
}

// NewRand returns a math/rand generator for the given seed. Each consumer
// derives its own stream by offsetting the base seed, so adding a consumer
// does not perturb the others.
func NewRand(seed, stream int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed + stream))
}

// Uniform draws from [0, 1).
type Uniform struct {
	rng *mrand.Rand
}

// NewUniform wraps rng. A nil rng yields a nil *Uniform.
func NewUniform(rng *mrand.Rand) *Uniform {
	if rng == nil {
		return nil
	}
	return &Uniform{rng: rng}
}

// Float returns a value in [0, 1).
func (u *Uniform) Float() float64 {
	return u.rng.Float64()
}

// Intn returns a value in [0, n). n must be positive.
func (u *Uniform) Intn(n int) int {
	return u.rng.Intn(n)
}

// Chance reports whether a [0, 1) draw fell below p.
func (u *Uniform) Chance(p float64) bool {
	return u.rng.Float64() < p
}
