// Package report renders the epidemic curve of a run.
package report

import (
	"errors"
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/talgya/epiworld/internal/engine"
)

// ErrTooFewDays is returned when the history cannot form a line.
var ErrTooFewDays = errors.New("at least two days are needed for a chart")

// Chart dimensions in pixels.
const (
	Width  = 960
	Height = 480
)

var (
	colorSusceptible = drawing.Color{R: 52, G: 101, B: 164, A: 255}
	colorInfected    = chart.ColorRed
	colorRecovered   = chart.ColorGreen
)

// RenderCurve writes a PNG line chart of susceptible, infected and
// recovered agents per day.
func RenderCurve(w io.Writer, history []engine.DayStats) error {
	if len(history) < 2 {
		return ErrTooFewDays
	}

	days := make([]float64, len(history))
	susceptible := make([]float64, len(history))
	infected := make([]float64, len(history))
	recovered := make([]float64, len(history))
	var peak float64
	for i, st := range history {
		days[i] = float64(st.Day)
		susceptible[i] = float64(st.Susceptible)
		infected[i] = float64(st.Infected)
		recovered[i] = float64(st.Recovered)
		peak = max(peak, susceptible[i], infected[i], recovered[i])
	}
	if peak == 0 {
		peak = 1
	}

	graph := chart.Chart{
		Width:  Width,
		Height: Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  "day",
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "agents",
			Style: chart.Style{FontSize: 10.0},
			Range: &chart.ContinuousRange{Min: 0, Max: peak * 1.05},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f", v.(float64))
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "susceptible",
				XValues: days,
				YValues: susceptible,
				Style:   chart.Style{StrokeColor: colorSusceptible, StrokeWidth: 2.0},
			},
			chart.ContinuousSeries{
				Name:    "infected",
				XValues: days,
				YValues: infected,
				Style:   chart.Style{StrokeColor: colorInfected, StrokeWidth: 3.0},
			},
			chart.ContinuousSeries{
				Name:    "recovered",
				XValues: days,
				YValues: recovered,
				Style:   chart.Style{StrokeColor: colorRecovered, StrokeWidth: 2.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.LegendThin(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render curve: %w", err)
	}
	return nil
}
