package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"pack_simulator/internal/sim"
	"pack_simulator/internal/sweep"
)

// RenderDashboard writes a standalone HTML page with interactive charts of
// the trace signals.
func RenderDashboard(w io.Writer, tr *sim.Trace, title string) error {
	recs := tr.Records()
	if len(recs) == 0 {
		return fmt.Errorf("report: empty trace")
	}

	xAxis := make([]string, len(recs))
	for i, r := range recs {
		xAxis[i] = fmt.Sprintf("%.0f", r.TimeS)
	}

	page := components.NewPage()
	page.PageTitle = title

	page.AddCharts(
		traceLine("Pack Voltage (V)", xAxis, recs, func(r sim.Record) float64 { return r.VoltageV }),
		traceLine("State of Charge", xAxis, recs, func(r sim.Record) float64 { return r.SOC }),
		traceLine("Hottest Node Temperature (K)", xAxis, recs, func(r sim.Record) float64 { return r.TempMaxK }),
		traceLine("Pack Power (W)", xAxis, recs, func(r sim.Record) float64 { return r.PowerW }),
	)
	return page.Render(w)
}

// SaveDashboard renders the dashboard to a file, creating parent
// directories.
func SaveDashboard(path string, tr *sim.Trace, title string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer f.Close()
	if err := RenderDashboard(f, tr, filepath.Base(path)); err != nil {
		return err
	}
	return f.Close()
}

func traceLine(title string, xAxis []string, recs []sim.Record, value func(sim.Record) float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)"}),
	)

	data := make([]opts.LineData, len(recs))
	for i, r := range recs {
		data[i] = opts.LineData{Value: value(r)}
	}
	line.SetXAxis(xAxis).AddSeries(title, data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false), ShowSymbol: opts.Bool(false)}))
	return line
}

// RenderSweep writes an HTML scatter of sweep outcomes: peak temperature
// against peak current, colored by round-trip efficiency. Points without a
// defined RTE are plotted at zero efficiency.
func RenderSweep(w io.Writer, points []sweep.Point, title string) error {
	if len(points) == 0 {
		return fmt.Errorf("report: no sweep points")
	}

	data := make([]opts.ScatterData, len(points))
	maxRTE := 0.0
	for i, pt := range points {
		rte := pt.RTEPercent
		if math.IsNaN(rte) {
			rte = 0
		}
		maxRTE = math.Max(maxRTE, rte)
		data[i] = opts.ScatterData{Value: []interface{}{pt.PeakCurrentA, pt.PeakTempK, rte}}
	}
	if maxRTE == 0 {
		maxRTE = 100
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("points=%d", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Peak current (A)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Peak temperature (K)"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxRTE),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("designs", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	return scatter.Render(w)
}
