// Command epiworld runs the agent-based epidemic simulation of a country.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/epiworld/internal/agents"
	"github.com/talgya/epiworld/internal/api"
	"github.com/talgya/epiworld/internal/config"
	"github.com/talgya/epiworld/internal/control"
	"github.com/talgya/epiworld/internal/engine"
	"github.com/talgya/epiworld/internal/entropy"
	"github.com/talgya/epiworld/internal/metrics"
	"github.com/talgya/epiworld/internal/persistence"
	"github.com/talgya/epiworld/internal/world"
)

func main() {
	setupLogging(envOrDefault("EPIWORLD_LOG_LEVEL", "info"))
	if err := run(); err != nil {
		slog.Error("epiworld failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run() error {
	configPath := os.Getenv("EPIWORLD_CONFIG")
	dataDir := envOrDefault("EPIWORLD_DATA", "data")
	populationPath := os.Getenv("EPIWORLD_POPULATION")
	controlAddr := envOrDefault("EPIWORLD_CONTROL_ADDR", ":4242")
	apiPort := envIntOrDefault("EPIWORLD_API_PORT", 8080)
	adminKey := os.Getenv("EPIWORLD_ADMIN_KEY")
	autostart := envBoolOrDefault("EPIWORLD_AUTOSTART", false)
	intervalMs := envIntOrDefault("EPIWORLD_INTERVAL_MS", 0)

	dbPath := filepath.Join(dataDir, "epiworld.db")
	checkpointPath := filepath.Join(dataDir, "save.bin")
	frameDir := filepath.Join(dataDir, "frames")

	// ── Configuration ─────────────────────────────────────────────────
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		slog.Info("config loaded", "path", configPath)
	} else {
		slog.Warn("EPIWORLD_CONFIG not set, using default parameters")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	seed := entropy.Seed(cfg.Seed)
	runID := uuid.NewString()
	for k, v := range map[string]string{
		persistence.MetaRunID:     runID,
		persistence.MetaSeed:      strconv.FormatInt(seed, 10),
		persistence.MetaStartedAt: time.Now().UTC().Format(time.RFC3339),
	} {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	// ── Country ───────────────────────────────────────────────────────
	records, err := loadRecords(populationPath, seed)
	if err != nil {
		return err
	}
	country, startDay, err := loadCountry(records, checkpointPath)
	if err != nil {
		return err
	}
	defer country.Destroy()

	counts := country.CountStatuses()
	slog.Info("country ready",
		"run_id", runID,
		"cities", len(country.Cities),
		"agents", country.TotalPopulation(),
		"infected", counts[agents.Infected],
		"recovered", counts[agents.Recovered],
		"day", startDay,
	)

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(country, cfg, seed)
	if err != nil {
		return err
	}
	sim.SetDay(startDay)

	board := &engine.Board{}
	board.Publish(sim.Snapshot(engine.DayStats{
		Day:         startDay,
		Population:  country.TotalPopulation(),
		Infected:    counts[agents.Infected],
		Recovered:   counts[agents.Recovered],
		Susceptible: counts[agents.Susceptible],
	}))
	if startDay == 0 {
		if _, err := persistence.WriteFrame(frameDir, country, 0); err != nil {
			return err
		}
	}

	saveCheckpoint := func(day uint32) {
		start := time.Now()
		n, err := persistence.SaveCheckpoint(checkpointPath, country, day)
		metrics.RecordCheckpoint(time.Since(start), err)
		if err != nil {
			slog.Error("checkpoint failed", "day", day, "error", err)
			return
		}
		if _, err := db.RecordSnapshot("checkpoint", day, checkpointPath); err != nil {
			slog.Error("checkpoint log failed", "error", err)
		}
		slog.Info("checkpoint saved", "day", day, "agents", n, "took", time.Since(start).Round(time.Millisecond))
	}

	eng := engine.NewEngine(startDay)
	eng.Interval = time.Duration(intervalMs) * time.Millisecond
	eng.MaxDays = uint32(cfg.Days)

	var stepStart time.Time
	eng.Step = func() (engine.DayStats, error) {
		stepStart = time.Now()
		return sim.SimulateDay()
	}
	eng.OnDay = func(day uint32, stats engine.DayStats) {
		metrics.RecordDay(stats, time.Since(stepStart))
		board.Publish(sim.Snapshot(stats))

		path, err := persistence.WriteFrame(frameDir, country, day)
		if err != nil {
			slog.Error("frame write failed", "day", day, "error", err)
		} else if _, err := db.RecordSnapshot("frame", day, path); err != nil {
			slog.Error("frame log failed", "day", day, "error", err)
		}
		if err := db.SaveDayStats(stats); err != nil {
			slog.Error("daily stats save failed", "day", day, "error", err)
		}
		if cfg.CheckpointInterval > 0 && day%uint32(cfg.CheckpointInterval) == 0 {
			saveCheckpoint(day)
		}
	}

	// ── Services ──────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	engineDone := make(chan error, 1)
	launch := func() error {
		return eng.Start(gctx, func(err error) { engineDone <- err })
	}

	if adminKey == "" {
		slog.Warn("EPIWORLD_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Board:    board,
		Eng:      eng,
		History:  db,
		FrameDir: frameDir,
		Port:     apiPort,
		AdminKey: adminKey,
		Launch:   launch,
	}
	controlServer := &control.Server{
		Addr:         controlAddr,
		FrameDir:     frameDir,
		Launch:       launch,
		Shutdown:     stop,
		WriteTimeout: 30 * time.Second,
	}

	g.Go(func() error { return apiServer.ListenAndServe(gctx) })
	g.Go(func() error { return controlServer.ListenAndServe(gctx) })
	g.Go(func() error {
		select {
		case err := <-engineDone:
			if err != nil {
				return fmt.Errorf("engine: %w", err)
			}
			saveCheckpoint(eng.Day())
			slog.Info("simulation finished, still serving", "day", eng.Day())
			<-gctx.Done()
			return nil
		case <-gctx.Done():
		}

		eng.Stop()
		if eng.Started() {
			if err := <-engineDone; err != nil {
				slog.Error("engine stopped with error", "error", err)
			}
		}
		if eng.Day() > startDay {
			slog.Info("final checkpoint...")
			saveCheckpoint(eng.Day())
		}
		return nil
	})

	if autostart {
		if err := launch(); err != nil {
			return err
		}
	} else {
		slog.Info("waiting for start command", "control", controlAddr, "api_port", apiPort)
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("simulation stopped", "day", eng.Day())
	return nil
}

// loadRecords reads the population table, or generates a synthetic country
// when no file is configured.
func loadRecords(path string, seed int64) ([]world.CityRecord, error) {
	if path != "" {
		records, err := world.LoadCityFile(path)
		if err != nil {
			return nil, err
		}
		slog.Info("population table loaded", "path", path, "cities", len(records))
		return records, nil
	}
	gen := world.DefaultGenConfig()
	gen.Seed = seed
	records := world.Generate(gen)
	slog.Warn("EPIWORLD_POPULATION not set, generated a synthetic country", "cities", len(records))
	return records, nil
}

// loadCountry resumes from the checkpoint when one exists, otherwise seeds
// a fresh population.
func loadCountry(records []world.CityRecord, checkpointPath string) (*world.Country, uint32, error) {
	if !persistence.CheckpointExists(checkpointPath) {
		c, err := world.NewCountry(records, agents.NewSpawner())
		if err != nil {
			return nil, 0, err
		}
		return c, 0, nil
	}

	slog.Info("found checkpoint, resuming", "path", checkpointPath)
	c, err := world.NewCountry(records, nil)
	if err != nil {
		return nil, 0, err
	}
	day, n, err := persistence.LoadCheckpoint(checkpointPath, c)
	if err != nil {
		return nil, 0, err
	}
	if err := c.Audit(); err != nil {
		return nil, 0, fmt.Errorf("checkpoint audit: %w", err)
	}
	slog.Info("checkpoint restored", "day", day, "agents", n)
	return c, day, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBoolOrDefault(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
