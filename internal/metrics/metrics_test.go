package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/talgya/epiworld/internal/engine"
)

// scrape renders the default registry the way Prometheus would see it.
func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestRecordDay(t *testing.T) {
	RecordDay(engine.DayStats{
		Day:         7,
		Susceptible: 900,
		Infected:    80,
		Recovered:   20,
		Deaths:      3,
	}, 50*time.Millisecond)

	out := scrape(t)
	for _, want := range []string{
		"epiworld_sim_day 7",
		`epiworld_agents{status="infected"} 80`,
		`epiworld_agents{status="susceptible"} 900`,
		`epiworld_events_total{kind="death"}`,
		"epiworld_day_duration_seconds_count",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestRecordCommandAndCheckpoint(t *testing.T) {
	RecordCommand("start")
	RecordCheckpoint(time.Second, nil)
	RecordCheckpoint(time.Second, errors.New("disk full"))

	out := scrape(t)
	for _, want := range []string{
		`epiworld_control_commands_total{cmd="start"}`,
		`epiworld_checkpoint_duration_seconds_count{status="success"}`,
		`epiworld_checkpoint_duration_seconds_count{status="error"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestRecordRequest(t *testing.T) {
	RecordConnection(1)
	RecordConnection(-1)
	RecordRequest("/api/v1/status", 200)

	out := scrape(t)
	if !strings.Contains(out, `epiworld_http_requests_total{code="200",route="/api/v1/status"}`) {
		t.Error("metrics output lacks the status request counter")
	}
	if !strings.Contains(out, "epiworld_control_connections 0") {
		t.Error("connection gauge did not return to 0")
	}
}
