// Package report renders simulation results as PNG plots and standalone
// HTML dashboards.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"pack_simulator/internal/limits"
	"pack_simulator/internal/sim"
)

var (
	lineBlue   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255}
	lineOrange = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 255}
	lineGreen  = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 255}
	lineRed    = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255}
)

// SaveTracePlots writes one PNG per signal (voltage, SOC, temperature,
// power) into dir and returns the file paths.
func SaveTracePlots(dir string, tr *sim.Trace) ([]string, error) {
	if tr.Len() == 0 {
		return nil, fmt.Errorf("report: empty trace")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}

	recs := tr.Records()
	signals := []struct {
		file, title, yLabel string
		color               color.Color
		value               func(sim.Record) float64
	}{
		{"voltage.png", "Pack Voltage", "Voltage (V)", lineBlue, func(r sim.Record) float64 { return r.VoltageV }},
		{"soc.png", "State of Charge", "SOC", lineGreen, func(r sim.Record) float64 { return r.SOC }},
		{"temperature.png", "Hottest Node Temperature", "Temperature (K)", lineRed, func(r sim.Record) float64 { return r.TempMaxK }},
		{"power.png", "Pack Power", "Power (W)", lineOrange, func(r sim.Record) float64 { return r.PowerW }},
	}

	paths := make([]string, 0, len(signals))
	for _, sig := range signals {
		p := plot.New()
		p.Title.Text = sig.title
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = sig.yLabel

		pts := make(plotter.XYs, len(recs))
		for i, r := range recs {
			pts[i] = plotter.XY{X: r.TimeS, Y: sig.value(r)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return paths, fmt.Errorf("report: %s: %w", sig.file, err)
		}
		line.Color = sig.color
		line.Width = vg.Points(1)
		p.Add(line)

		path := filepath.Join(dir, sig.file)
		if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("report: save %s: %w", sig.file, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SaveLimitsPlot draws the discharge and charge power envelope over SOC.
func SaveLimitsPlot(path string, curve []limits.PowerLimits) error {
	if len(curve) == 0 {
		return fmt.Errorf("report: empty limits curve")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Power Limits"
	p.X.Label.Text = "SOC"
	p.Y.Label.Text = "Power (W)"

	dis := make(plotter.XYs, len(curve))
	chg := make(plotter.XYs, len(curve))
	for i, pl := range curve {
		dis[i] = plotter.XY{X: pl.SOC, Y: pl.MaxDischargeW}
		chg[i] = plotter.XY{X: pl.SOC, Y: pl.MaxChargeW}
	}

	disLine, err := plotter.NewLine(dis)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	disLine.Color = lineBlue
	disLine.Width = vg.Points(1)

	chgLine, err := plotter.NewLine(chg)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	chgLine.Color = lineOrange
	chgLine.Width = vg.Points(1)

	p.Add(disLine, chgLine)
	p.Legend.Add("discharge", disLine)
	p.Legend.Add("charge", chgLine)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save limits plot: %w", err)
	}
	return nil
}
