// Package metrics exports the epidemic state and service activity to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/epiworld/internal/engine"
)

const (
	namespace = "epiworld"
)

var (
	// SimDay is the number of completed days.
	SimDay = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sim_day",
			Help:      "Number of completed simulated days",
		},
	)

	// Agents tracks end-of-day agent counts by status.
	Agents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Agents at the end of the last completed day",
		},
		[]string{"status"}, // susceptible/infected/recovered
	)

	// EventsTotal counts daily events.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Simulation events by kind",
		},
		[]string{"kind"}, // infection/recovery/immunity_lost/death/move/homecoming
	)

	// DayDuration measures wall time per simulated day.
	DayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "day_duration_seconds",
			Help:      "Wall time spent simulating one day",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30, 60},
		},
	)

	// CheckpointDuration measures checkpoint saves.
	CheckpointDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Checkpoint save latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"}, // success/error
	)

	// ControlCommands counts control protocol commands.
	ControlCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_commands_total",
			Help:      "Control protocol commands received",
		},
		[]string{"cmd"},
	)

	// ControlConnections tracks open control connections.
	ControlConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "control_connections",
			Help:      "Open control protocol connections",
		},
	)

	// HTTPRequests counts API requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// RecordDay publishes one completed day.
func RecordDay(st engine.DayStats, took time.Duration) {
	SimDay.Set(float64(st.Day))
	Agents.WithLabelValues("susceptible").Set(float64(st.Susceptible))
	Agents.WithLabelValues("infected").Set(float64(st.Infected))
	Agents.WithLabelValues("recovered").Set(float64(st.Recovered))

	EventsTotal.WithLabelValues("infection").Add(float64(st.NewInfections))
	EventsTotal.WithLabelValues("recovery").Add(float64(st.Recoveries))
	EventsTotal.WithLabelValues("immunity_lost").Add(float64(st.ImmunityLost))
	EventsTotal.WithLabelValues("death").Add(float64(st.Deaths))
	EventsTotal.WithLabelValues("move").Add(float64(st.Moves))
	EventsTotal.WithLabelValues("homecoming").Add(float64(st.Homecomings))

	if took > 0 {
		DayDuration.Observe(took.Seconds())
	}
}

// RecordCheckpoint records a checkpoint save.
func RecordCheckpoint(took time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CheckpointDuration.WithLabelValues(status).Observe(took.Seconds())
}

// RecordCommand counts a control command.
func RecordCommand(cmd string) {
	ControlCommands.WithLabelValues(cmd).Inc()
}

// RecordConnection adjusts the open control connection gauge by delta.
func RecordConnection(delta int) {
	ControlConnections.Add(float64(delta))
}

// RecordRequest counts an API request.
func RecordRequest(route string, code int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
