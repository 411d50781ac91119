package entropy

import (
	"errors"
	"fmt"
	"math"
	mrand "math/rand"
	"strings"
)

var (
	// ErrNilSource is returned by every method called on a nil Gaussian.
	ErrNilSource = errors.New("nil random source")

	// ErrRejectionLimit is returned when a rejection loop exceeds MaxRejections.
	ErrRejectionLimit = errors.New("rejection sampling limit exceeded")

	// ErrUnknownStrategy is returned by ParseStrategy.
	ErrUnknownStrategy = errors.New("unknown gaussian strategy")
)

// MaxRejections bounds every rejection-sampling loop in this package.
const MaxRejections = 10000

// Strategy selects how uniform deviates on (-1, 1) are produced for the
// polar method.
type Strategy uint8

const (
	// StrategyPolar draws proper uniforms: 2*Float64()-1.
	StrategyPolar Strategy = iota

	// StrategyFast scales a raw 15-bit integer linearly into [-1, 1].
	// Both endpoints are reachable and the grid is coarse, so the deviates
	// are biased. Opt-in only.
	StrategyFast
)

// fastScale maps [0, 32767] onto [-1, 1].
const fastScale = 0.000061037018951994385

func (s Strategy) String() string {
	if s == StrategyFast {
		return "fast"
	}
	return "polar"
}

// ParseStrategy accepts "polar" or "fast" (case-insensitive).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "polar":
		return StrategyPolar, nil
	case "fast":
		return StrategyFast, nil
	}
	return StrategyPolar, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Gaussian produces normal deviates with the polar method. Each accepted
// uniform pair yields two deviates; the second is cached and returned by the
// next call without drawing. A Gaussian is not safe for concurrent use.
type Gaussian struct {
	rng      *mrand.Rand
	strategy Strategy
	mean     float64
	std      float64

	hasSpare bool
	spare    float64
}

// NewGaussian creates a sampler with default parameters mean and std.
func NewGaussian(rng *mrand.Rand, mean, std float64, strategy Strategy) *Gaussian {
	if rng == nil {
		return nil
	}
	return &Gaussian{rng: rng, strategy: strategy, mean: mean, std: std}
}

// Mean returns the configured mean.
func (g *Gaussian) Mean() float64 { return g.mean }

// StdDev returns the configured standard deviation.
func (g *Gaussian) StdDev() float64 { return g.std }

// Strategy returns the uniform generation strategy in use.
func (g *Gaussian) Strategy() Strategy { return g.strategy }

// Standard returns a standard normal deviate.
func (g *Gaussian) Standard() (float64, error) {
	if g == nil {
		return 0, ErrNilSource
	}
	if g.hasSpare {
		g.hasSpare = false
		return g.spare, nil
	}

	for i := 0; i < MaxRejections; i++ {
		v1, v2 := g.uniform(), g.uniform()
		s := v1*v1 + v2*v2
		if s >= 1 || s == 0 {
			continue
		}
		f := math.Sqrt(-2 * math.Log(s) / s)
		g.spare = v2 * f
		g.hasSpare = true
		return v1 * f, nil
	}
	return 0, ErrRejectionLimit
}

func (g *Gaussian) uniform() float64 {
	if g.strategy == StrategyFast {
		return float64(g.rng.Intn(32768))*fastScale - 1
	}
	return 2*g.rng.Float64() - 1
}

// Next returns a deviate with the configured mean and standard deviation.
func (g *Gaussian) Next() (float64, error) {
	if g == nil {
		return 0, ErrNilSource
	}
	return g.NextWith(g.mean, g.std)
}

// NextWith returns a deviate with an explicit mean and standard deviation.
func (g *Gaussian) NextWith(mean, std float64) (float64, error) {
	z, err := g.Standard()
	if err != nil {
		return 0, err
	}
	return mean + z*std, nil
}

// NextInRange resamples until the deviate falls inside [lo, hi].
func (g *Gaussian) NextInRange(lo, hi float64) (float64, error) {
	if g == nil {
		return 0, ErrNilSource
	}
	for i := 0; i < MaxRejections; i++ {
		v, err := g.Next()
		if err != nil {
			return 0, err
		}
		if v >= lo && v <= hi {
			return v, nil
		}
	}
	return 0, fmt.Errorf("range [%g, %g] with mean %g std %g: %w", lo, hi, g.mean, g.std, ErrRejectionLimit)
}
