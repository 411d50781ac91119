// Package api provides the HTTP API for observing the epidemic.
// GET endpoints are public and read published snapshots, frame files and
// the run history; they never touch the live country.
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/epiworld/internal/engine"
	"github.com/talgya/epiworld/internal/metrics"
	"github.com/talgya/epiworld/internal/persistence"
	"github.com/talgya/epiworld/internal/report"
)

// History is the run history the API reads from.
type History interface {
	StatsHistory(limit int) ([]engine.DayStats, error)
}

// Server serves the published epidemic state over HTTP.
type Server struct {
	Board    *engine.Board
	Eng      *engine.Engine
	History  History // nil disables history and chart endpoints
	FrameDir string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Launch starts the engine; wired to the same gate the control
	// server uses. It returns engine.ErrAlreadyStarted after the first call.
	Launch func() error

	// FileLimiter throttles the chart and frame endpoints. Nil uses a
	// default of 2 requests per second with a burst of 10 per client.
	FileLimiter *RateLimiter
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	limiter := s.FileLimiter
	if limiter == nil {
		limiter = NewRateLimiter(2, 10)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	s.route(mux, "GET /api/v1/status", s.handleStatus)
	s.route(mux, "GET /api/v1/cities", s.handleCities)
	s.route(mux, "GET /api/v1/stats/history", s.handleStatsHistory)
	s.route(mux, "GET /api/v1/chart.png", RateLimitMiddleware(limiter, s.handleChart))
	s.route(mux, "GET /api/v1/frame/{n}", RateLimitMiddleware(limiter, s.handleFrame))
	mux.Handle("GET /metrics", metrics.Handler())

	// Admin endpoints (POST, require bearer token).
	s.route(mux, "POST /api/v1/start", s.adminOnly(s.handleStart))
	s.route(mux, "POST /api/v1/stop", s.adminOnly(s.handleStop))
	s.route(mux, "POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	s.route(mux, "GET /api/v1/speed", s.handleSpeed)

	return corsMiddleware(mux)
}

// ListenAndServe serves the API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http api shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http api: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// route registers h under pattern and counts its responses by status code.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	_, path, _ := strings.Cut(pattern, " ")
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		metrics.RecordRequest(path, rec.code)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set EPIWORLD_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("EPIWORLD_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no EPIWORLD_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":    "epiworld",
		"day":     uint32(0),
		"started": false,
		"running": false,
		"speed":   0.0,
	}
	if s.Eng != nil {
		status["day"] = s.Eng.Day()
		status["started"] = s.Eng.Started()
		status["running"] = s.Eng.Running()
		status["speed"] = s.Eng.Speed()
	}
	if snap := s.Board.Latest(); snap != nil {
		status["snapshot_day"] = snap.Day
		status["published"] = snap.Published
		status["stats"] = snap.Stats
		status["cities"] = len(snap.Cities)
	}
	writeJSON(w, status)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	snap := s.Board.Latest()
	if snap == nil {
		writeJSON(w, []engine.CitySnapshot{})
		return
	}

	cities := snap.Cities
	if code := r.URL.Query().Get("city_id"); code != "" {
		v, err := strconv.ParseInt(code, 10, 32)
		if err != nil {
			http.Error(w, "invalid city_id", http.StatusBadRequest)
			return
		}
		for _, c := range cities {
			if c.Code == int32(v) {
				writeJSON(w, c)
				return
			}
		}
		http.Error(w, "city not found", http.StatusNotFound)
		return
	}
	writeJSON(w, cities)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 10000 {
			limit = v
		}
	}

	rows, err := s.History.StatsHistory(limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []engine.DayStats{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.History.StatsHistory(0)
	if err != nil {
		slog.Error("chart history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := report.RenderCurve(&buf, rows); err != nil {
		if errors.Is(err, report.ErrTooFewDays) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		slog.Error("chart render failed", "error", err)
		http.Error(w, "chart failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(r.PathValue("n"), 10, 32)
	if err != nil {
		http.Error(w, "invalid frame number", http.StatusBadRequest)
		return
	}
	data, err := persistence.ReadFrame(s.FrameDir, uint32(n))
	if err != nil {
		if errors.Is(err, persistence.ErrNoFrame) {
			http.Error(w, "frame not found", http.StatusNotFound)
			return
		}
		slog.Error("frame read failed", "frame", n, "error", err)
		http.Error(w, "frame unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Write(data)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.Launch == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if err := s.Launch(); err != nil {
		if errors.Is(err, engine.ErrAlreadyStarted) {
			http.Error(w, "already started", http.StatusConflict)
			return
		}
		slog.Error("engine start failed", "error", err)
		http.Error(w, "start failed", http.StatusInternalServerError)
		return
	}
	slog.Info("engine started via API")
	writeJSON(w, map[string]any{"started": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	s.Eng.Stop()
	slog.Info("engine stop requested via API", "day", s.Eng.Day())
	writeJSON(w, map[string]any{"stopping": true, "day": s.Eng.Day()})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
