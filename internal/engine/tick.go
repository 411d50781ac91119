// Package engine provides the epidemic stepper and the day loop that drives it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyStarted is returned by Start after the first successful call.
var ErrAlreadyStarted = errors.New("engine already started")

// Engine drives the simulation forward one day per step.
type Engine struct {
	Interval time.Duration // Base day interval at speed 1 (0 = as fast as possible)
	MaxDays  uint32        // Stop after this many days (0 = unbounded)

	// Step advances one day. Populated during setup.
	Step func() (DayStats, error)

	// OnDay runs after every completed day with that day's stats.
	OnDay func(day uint32, stats DayStats)

	day     atomic.Uint32
	speed   atomic.Uint64 // float64 bits
	started atomic.Bool
	running atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewEngine creates an engine positioned after day completed days.
func NewEngine(day uint32) *Engine {
	e := &Engine{
		Interval: 0,
		stop:     make(chan struct{}),
	}
	e.day.Store(day)
	e.SetSpeed(1.0)
	return e
}

// Day returns the number of completed days.
func (e *Engine) Day() uint32 { return e.day.Load() }

// Speed returns the pacing multiplier: 1.0 = one day per Interval, 0 = paused.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes the pacing multiplier. Negative values pause.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Started reports whether Start has ever succeeded.
func (e *Engine) Started() bool { return e.started.Load() }

// TryStart claims the one-time start gate. Only the first caller gets true.
func (e *Engine) TryStart() bool {
	return e.started.CompareAndSwap(false, true)
}

// Start launches Run on its own goroutine, exactly once per engine. done,
// when non-nil, receives Run's result.
func (e *Engine) Start(ctx context.Context, done func(error)) error {
	if !e.TryStart() {
		return ErrAlreadyStarted
	}
	go func() {
		err := e.run(ctx)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Run claims the start gate and blocks until the loop ends: Stop, context
// cancellation, MaxDays reached, or a step error.
func (e *Engine) Run(ctx context.Context) error {
	if !e.TryStart() {
		return ErrAlreadyStarted
	}
	return e.run(ctx)
}

func (e *Engine) run(ctx context.Context) error {
	if e.Step == nil {
		return errors.New("engine has no step function")
	}
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "day", e.Day(), "speed", e.Speed())

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "day", e.Day(), "reason", ctx.Err())
			return nil
		case <-e.stop:
			slog.Info("simulation engine stopped", "day", e.Day())
			return nil
		default:
		}
		if e.MaxDays > 0 && e.Day() >= e.MaxDays {
			slog.Info("simulation finished", "days", e.Day())
			return nil
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			e.sleep(ctx, 100*time.Millisecond)
			continue
		}

		start := time.Now()
		if err := e.step(); err != nil {
			return err
		}

		// Sleep for the remainder of the day interval, adjusted for speed.
		if e.Interval > 0 {
			target := time.Duration(float64(e.Interval) / speed)
			if elapsed := time.Since(start); elapsed < target {
				e.sleep(ctx, target-elapsed)
			}
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-e.stop:
	}
}

// step advances the simulation by one day.
func (e *Engine) step() error {
	stats, err := e.Step()
	if err != nil {
		return fmt.Errorf("day %d: %w", e.Day()+1, err)
	}
	day := e.day.Add(1)
	if e.OnDay != nil {
		e.OnDay(day, stats)
	}
	return nil
}

// Stop halts the loop after the current day.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}
